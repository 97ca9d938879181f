// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scholar/pkg/answer"
	"github.com/kadirpekel/scholar/pkg/rag"
)

// fakeLibrary tracks ownership without a real index.
type fakeLibrary struct {
	mu     sync.Mutex
	nextID int
	docs   map[string]string // doc ID → owner
	failed bool
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{docs: make(map[string]string)}
}

func (f *fakeLibrary) Ingest(ctx context.Context, ownerID, name, text string) (*rag.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failed {
		return nil, fmt.Errorf("simulated ingestion failure")
	}
	f.nextID++
	id := fmt.Sprintf("doc-%d", f.nextID)
	f.docs[id] = ownerID
	return &rag.Document{ID: id, OwnerID: ownerID, Name: name, ChunkCount: 1}, nil
}

func (f *fakeLibrary) IngestFile(ctx context.Context, ownerID, path string) (*rag.Document, error) {
	return f.Ingest(ctx, ownerID, path, "file content")
}

func (f *fakeLibrary) DeleteOwnedBy(ctx context.Context, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, owner := range f.docs {
		if owner == ownerID {
			delete(f.docs, id)
		}
	}
	return nil
}

func (f *fakeLibrary) VisibleTo(ownerID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, owner := range f.docs {
		if owner == "" || owner == ownerID {
			ids = append(ids, id)
		}
	}
	return ids
}

// fakeRetriever returns canned hits when any document is visible.
type fakeRetriever struct {
	hits []rag.Hit
	err  error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, allowed []string) ([]rag.Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(allowed) == 0 {
		return nil, nil
	}
	return f.hits, nil
}

// fakeStrategy answers with a fixed label, failing for configured questions.
type fakeStrategy struct {
	kind    answer.Kind
	failFor map[string]bool
}

func (f *fakeStrategy) Answer(ctx context.Context, q answer.Question, hits []rag.Hit) (*answer.Draft, error) {
	if f.failFor[q.ID] {
		return nil, answer.NewAnswerGenerationError(q.ID, "unparseable model output", nil)
	}
	return &answer.Draft{
		Strategy:      f.kind,
		OptionLabel:   "B",
		Justification: "because",
		RawConfidence: 0.8,
		Samples:       1,
		Agreement:     1,
	}, nil
}

func (f *fakeStrategy) Kind() answer.Kind { return f.kind }

// fakeBank resolves a fixed set of questions.
type fakeBank map[string]answer.Question

func (f fakeBank) Question(id string) (answer.Question, bool) {
	q, ok := f[id]
	return q, ok
}

func testQuestion(id string) answer.Question {
	return answer.Question{
		ID:   id,
		Stem: "Which organelle produces ATP?",
		Options: []answer.Option{
			{Label: "A", Text: "Nucleus"},
			{Label: "B", Text: "Mitochondrion"},
		},
		Correct: "B",
	}
}

// testStrategies pairs a grounded strategy with a plain parametric fake,
// defaulting to grounded.
func testStrategies(grounded answer.Strategy) *answer.Strategies {
	return &answer.Strategies{
		Grounded:    grounded,
		Parametric:  &fakeStrategy{kind: answer.KindParametric, failFor: map[string]bool{}},
		DefaultKind: answer.KindGrounded,
	}
}

func newTestManager(bank fakeBank) (*Manager, *fakeLibrary) {
	lib := newFakeLibrary()
	retriever := &fakeRetriever{hits: []rag.Hit{
		{ChunkID: "c1", DocumentID: "doc-1", Content: "Mitochondria produce ATP.", Score: 0.9},
	}}
	grounded := &fakeStrategy{kind: answer.KindGrounded, failFor: map[string]bool{}}
	return NewManager(lib, retriever, testStrategies(grounded), bank), lib
}

func createAgent(t *testing.T, m *Manager, name string) *Agent {
	t.Helper()
	a, err := m.CreateAgent(name, "")
	require.NoError(t, err)
	return a
}

func TestAgentLifecycle(t *testing.T) {
	m, _ := newTestManager(fakeBank{})

	a := createAgent(t, m, "alice")
	require.NotEmpty(t, a.ID)
	assert.Equal(t, StateCreated, a.State)

	got, err := m.GetAgent(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)

	_, err = m.GetAgent("missing")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	doc, err := m.IngestDocument(context.Background(), a.ID, "notes.txt", "mitochondria facts")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)

	got, err = m.GetAgent(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, got.State)
	assert.Contains(t, got.DocumentIDs, doc.ID)
}

func TestAnswerQuestion(t *testing.T) {
	bank := fakeBank{"q-1": testQuestion("q-1")}
	m, _ := newTestManager(bank)
	ctx := context.Background()

	a := createAgent(t, m, "alice")
	_, err := m.IngestDocument(ctx, a.ID, "notes.txt", "material")
	require.NoError(t, err)

	msg, err := m.AnswerQuestion(ctx, a.ID, "q-1", AnswerOptions{})
	require.NoError(t, err)
	assert.Equal(t, "B", msg.OptionLabel)
	assert.Equal(t, "grounded", msg.Strategy)
	assert.False(t, msg.Failed)
	assert.Greater(t, msg.Confidence, 0.0)
	assert.LessOrEqual(t, msg.Confidence, 1.0)
	assert.Equal(t, []string{"c1"}, msg.RetrievedChunks)

	got, err := m.GetAgent(a.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, StateReady, got.State)
}

func TestAnswerQuestionUnknownAgent(t *testing.T) {
	m, _ := newTestManager(fakeBank{"q-1": testQuestion("q-1")})

	_, err := m.AnswerQuestion(context.Background(), "missing", "q-1", AnswerOptions{})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "agent", notFound.Kind)
}

func TestAnswerQuestionUnknownQuestion(t *testing.T) {
	m, _ := newTestManager(fakeBank{})
	a := createAgent(t, m, "alice")

	_, err := m.AnswerQuestion(context.Background(), a.ID, "missing", AnswerOptions{})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "question", notFound.Kind)
}

func TestAnswerQuestionsBatchResilience(t *testing.T) {
	bank := fakeBank{
		"q-1": testQuestion("q-1"),
		"q-2": testQuestion("q-2"),
		"q-3": testQuestion("q-3"),
	}
	lib := newFakeLibrary()
	retriever := &fakeRetriever{hits: []rag.Hit{{ChunkID: "c1", Content: "x", Score: 0.9}}}
	strategy := &fakeStrategy{kind: answer.KindGrounded, failFor: map[string]bool{"q-2": true}}
	m := NewManager(lib, retriever, testStrategies(strategy), bank)
	ctx := context.Background()

	a := createAgent(t, m, "alice")
	_, err := m.IngestDocument(ctx, a.ID, "notes.txt", "material")
	require.NoError(t, err)

	results, err := m.AnswerQuestions(ctx, a.ID, []string{"q-1", "q-2", "q-3"}, BatchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.False(t, results[0].Message.Failed)

	assert.Error(t, results[1].Err)
	require.NotNil(t, results[1].Message)
	assert.True(t, results[1].Message.Failed)
	assert.NotEmpty(t, results[1].Message.Error)

	// The failure must not abort the question after it
	assert.NoError(t, results[2].Err)
	assert.False(t, results[2].Message.Failed)

	got, err := m.GetAgent(a.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 3)
}

func TestAnswerQuestionsSequentialOrder(t *testing.T) {
	bank := fakeBank{
		"q-1": testQuestion("q-1"),
		"q-2": testQuestion("q-2"),
	}
	m, _ := newTestManager(bank)
	ctx := context.Background()

	a := createAgent(t, m, "alice")
	_, err := m.IngestDocument(ctx, a.ID, "notes.txt", "material")
	require.NoError(t, err)

	_, err = m.AnswerQuestions(ctx, a.ID, []string{"q-1", "q-2"}, BatchOptions{Sequential: true})
	require.NoError(t, err)

	got, err := m.GetAgent(a.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "q-1", got.Messages[0].QuestionID)
	assert.Equal(t, "q-2", got.Messages[1].QuestionID)
}

func TestAnswerConcurrentSameAgent(t *testing.T) {
	bank := fakeBank{}
	ids := make([]string, 20)
	for i := range ids {
		id := fmt.Sprintf("q-%d", i)
		bank[id] = testQuestion(id)
		ids[i] = id
	}
	m, _ := newTestManager(bank)
	ctx := context.Background()

	a := createAgent(t, m, "alice")
	_, err := m.IngestDocument(ctx, a.ID, "notes.txt", "material")
	require.NoError(t, err)

	results, err := m.AnswerQuestions(ctx, a.ID, ids, BatchOptions{})
	require.NoError(t, err)
	require.Len(t, results, len(ids))

	got, err := m.GetAgent(a.ID)
	require.NoError(t, err)
	// Every answer lands exactly once, order is completion order
	assert.Len(t, got.Messages, len(ids))
	seen := map[string]bool{}
	for _, msg := range got.Messages {
		assert.False(t, seen[msg.QuestionID], "duplicate message for %s", msg.QuestionID)
		seen[msg.QuestionID] = true
	}
	assert.Equal(t, StateReady, got.State)
}

func TestDeleteAgentCascades(t *testing.T) {
	m, lib := newTestManager(fakeBank{})
	ctx := context.Background()

	a := createAgent(t, m, "alice")
	_, err := m.IngestDocument(ctx, a.ID, "notes.txt", "material")
	require.NoError(t, err)
	require.NotEmpty(t, lib.VisibleTo(a.ID))

	require.NoError(t, m.DeleteAgent(ctx, a.ID))

	_, err = m.GetAgent(a.ID)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Empty(t, lib.VisibleTo(a.ID))

	// Idempotent
	require.NoError(t, m.DeleteAgent(ctx, a.ID))
}

func TestDeleteAgentKeepsSharedMaterial(t *testing.T) {
	m, lib := newTestManager(fakeBank{})
	ctx := context.Background()

	_, err := lib.Ingest(ctx, "", "shared.txt", "shared material")
	require.NoError(t, err)

	a := createAgent(t, m, "alice")
	_, err = m.IngestDocument(ctx, a.ID, "own.txt", "own material")
	require.NoError(t, err)

	require.NoError(t, m.DeleteAgent(ctx, a.ID))
	assert.Len(t, lib.VisibleTo("someone-else"), 1)
}

func TestFailedAnswerRecordedAndReturned(t *testing.T) {
	bank := fakeBank{"q-1": testQuestion("q-1")}
	lib := newFakeLibrary()
	retriever := &fakeRetriever{err: errors.New("vector store unavailable")}
	strategy := &fakeStrategy{kind: answer.KindGrounded, failFor: map[string]bool{}}
	m := NewManager(lib, retriever, testStrategies(strategy), bank)
	ctx := context.Background()

	a := createAgent(t, m, "alice")
	_, err := m.IngestDocument(ctx, a.ID, "notes.txt", "material")
	require.NoError(t, err)

	msg, err := m.AnswerQuestion(ctx, a.ID, "q-1", AnswerOptions{})
	require.Error(t, err)
	require.NotNil(t, msg)
	assert.True(t, msg.Failed)
	assert.Contains(t, msg.Error, "vector store unavailable")

	got, err := m.GetAgent(a.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.True(t, got.Messages[0].Failed)
}

func TestCreateAgentUnknownStrategy(t *testing.T) {
	m, _ := newTestManager(fakeBank{})

	_, err := m.CreateAgent("alice", "oracular")
	require.Error(t, err)
}

func TestParametricAgentSurvivesRetrieverOutage(t *testing.T) {
	// A parametric agent never consults retrieval, so a dead embedding
	// service must not fail its answers.
	bank := fakeBank{"q-1": testQuestion("q-1")}
	lib := newFakeLibrary()
	retriever := &fakeRetriever{err: errors.New("embedding service down")}
	grounded := &fakeStrategy{kind: answer.KindGrounded, failFor: map[string]bool{}}
	m := NewManager(lib, retriever, testStrategies(grounded), bank)
	ctx := context.Background()

	a, err := m.CreateAgent("bob", answer.KindParametric)
	require.NoError(t, err)

	msg, err := m.AnswerQuestion(ctx, a.ID, "q-1", AnswerOptions{})
	require.NoError(t, err)
	assert.False(t, msg.Failed)
	assert.Equal(t, "parametric", msg.Strategy)
	assert.Empty(t, msg.RetrievedChunks)

	// The grounded default still sees the outage
	alice := createAgent(t, m, "alice")
	msg, err = m.AnswerQuestion(ctx, alice.ID, "q-1", AnswerOptions{})
	require.Error(t, err)
	assert.True(t, msg.Failed)
}

func TestAnswerStrategyOverride(t *testing.T) {
	bank := fakeBank{"q-1": testQuestion("q-1")}
	m, _ := newTestManager(bank)
	ctx := context.Background()

	a := createAgent(t, m, "alice")
	_, err := m.IngestDocument(ctx, a.ID, "notes.txt", "material")
	require.NoError(t, err)

	// The same agent answers the same question both ways
	msg, err := m.AnswerQuestion(ctx, a.ID, "q-1", AnswerOptions{})
	require.NoError(t, err)
	assert.Equal(t, "grounded", msg.Strategy)

	msg, err = m.AnswerQuestion(ctx, a.ID, "q-1", AnswerOptions{Strategy: answer.KindParametric})
	require.NoError(t, err)
	assert.Equal(t, "parametric", msg.Strategy)

	_, err = m.AnswerQuestion(ctx, a.ID, "q-1", AnswerOptions{Strategy: "oracular"})
	require.Error(t, err)

	got, err := m.GetAgent(a.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
}

func TestDeletedAgentRefusesAnswers(t *testing.T) {
	bank := fakeBank{"q-1": testQuestion("q-1")}
	m, _ := newTestManager(bank)
	ctx := context.Background()

	a := createAgent(t, m, "alice")
	require.NoError(t, m.DeleteAgent(ctx, a.ID))

	_, err := m.AnswerQuestion(ctx, a.ID, "q-1", AnswerOptions{})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.NotContains(t, listIDs(m), a.ID)
}

func listIDs(m *Manager) []string {
	var ids []string
	for _, a := range m.ListAgents() {
		ids = append(ids, a.ID)
	}
	return ids
}
