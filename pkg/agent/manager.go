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
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/scholar/pkg/answer"
	"github.com/kadirpekel/scholar/pkg/rag"
)

// answerConcurrency bounds per-batch question fan-out.
const answerConcurrency = 4

// QuestionSource resolves question IDs, typically a loaded question bank.
type QuestionSource interface {
	Question(id string) (answer.Question, bool)
}

// DocumentLibrary is the slice of the document library the manager needs.
// Satisfied by *rag.Library.
type DocumentLibrary interface {
	Ingest(ctx context.Context, ownerID, name, text string) (*rag.Document, error)
	IngestFile(ctx context.Context, ownerID, path string) (*rag.Document, error)
	DeleteOwnedBy(ctx context.Context, ownerID string) error
	VisibleTo(ownerID string) []string
}

// Retriever finds context chunks for a question. Satisfied by *rag.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, allowedDocs []string) ([]rag.Hit, error)
}

// QuestionResult pairs a question with its message or failure in a batch.
type QuestionResult struct {
	QuestionID string   `json:"question_id"`
	Message    *Message `json:"message,omitempty"`
	Err        error    `json:"-"`
}

// AnswerOptions tune a single answer operation.
type AnswerOptions struct {
	// Strategy overrides the agent's strategy for this call; empty keeps
	// the agent's own (or the configured default).
	Strategy answer.Kind
}

// BatchOptions tune answer_questions behavior.
type BatchOptions struct {
	// Sequential answers questions one at a time in request order, so the
	// history order matches the request order. The default fans out
	// concurrently and appends in completion order.
	Sequential bool

	// Strategy overrides the agent's strategy for the whole batch.
	Strategy answer.Kind
}

// Manager owns the agent lifecycle and the answering pipeline: retrieval
// scoped to the agent's visible documents, the configured strategy, and
// confidence calibration.
//
// Message history appends are serialized per agent; concurrent answers for
// one agent land in completion order.
type Manager struct {
	store      *Store
	library    DocumentLibrary
	retriever  Retriever
	strategies *answer.Strategies
	questions  QuestionSource

	// inflight answer operations per agent, driving the ANSWERING state
	inflightMu sync.Mutex
	inflight   map[string]int
}

// NewManager creates a manager. questions may be nil when only direct
// Question values are answered.
func NewManager(library DocumentLibrary, retriever Retriever, strategies *answer.Strategies, questions QuestionSource) *Manager {
	return &Manager{
		store:      NewStore(),
		library:    library,
		retriever:  retriever,
		strategies: strategies,
		questions:  questions,
		inflight:   make(map[string]int),
	}
}

// CreateAgent registers a new agent. An empty strategy uses the configured
// default.
func (m *Manager) CreateAgent(name string, strategy answer.Kind) (*Agent, error) {
	if strategy != "" {
		if _, err := m.strategies.For(strategy); err != nil {
			return nil, err
		}
	}

	a := &Agent{
		ID:        uuid.NewString(),
		Name:      name,
		State:     StateCreated,
		CreatedAt: time.Now(),
		Strategy:  strategy,
	}
	m.store.Put(a)

	slog.Info("Created agent", "agent", a.ID, "name", name, "strategy", strategy)
	return snapshot(a), nil
}

// GetAgent returns an agent by ID. Deleted agents are gone.
func (m *Manager) GetAgent(id string) (*Agent, error) {
	a, ok := m.store.Get(id)
	if !ok || a.State == StateDeleted {
		return nil, NewNotFoundError("agent", id)
	}
	return a, nil
}

// ListAgents returns all live agents.
func (m *Manager) ListAgents() []*Agent {
	all := m.store.List()
	agents := all[:0]
	for _, a := range all {
		if a.State != StateDeleted {
			agents = append(agents, a)
		}
	}
	return agents
}

// DeleteAgent removes an agent and cascades removal of its owned documents,
// chunks and messages. Deleting an unknown agent is a no-op. Agents with
// answers in flight cannot be deleted.
func (m *Manager) DeleteAgent(ctx context.Context, id string) error {
	// The busy check and the deletion mark happen under the same lock as
	// beginAnswering's slot take, so no new answer can slip in between.
	m.inflightMu.Lock()
	a, ok := m.store.Get(id)
	if !ok {
		m.inflightMu.Unlock()
		return nil
	}
	if m.inflight[id] > 0 {
		m.inflightMu.Unlock()
		return NewStateError(id, StateAnswering, "delete")
	}
	m.store.Update(id, func(a *Agent) {
		a.State = StateDeleted
	})
	m.inflightMu.Unlock()

	if err := m.library.DeleteOwnedBy(ctx, id); err != nil {
		return err
	}
	m.store.Remove(id)

	slog.Info("Deleted agent", "agent", id, "name", a.Name)
	return nil
}

// IngestDocument has the agent study text under the given name. The agent
// passes through STUDYING and lands in READY.
func (m *Manager) IngestDocument(ctx context.Context, agentID, name, text string) (*rag.Document, error) {
	if _, ok := m.store.Get(agentID); !ok {
		return nil, NewNotFoundError("agent", agentID)
	}

	m.store.Update(agentID, func(a *Agent) {
		a.State = StateStudying
	})

	doc, err := m.library.Ingest(ctx, agentID, name, text)
	if err != nil {
		m.store.Update(agentID, func(a *Agent) {
			a.State = StateReady
		})
		return nil, err
	}

	m.store.Update(agentID, func(a *Agent) {
		a.DocumentIDs = appendUnique(a.DocumentIDs, doc.ID)
		a.State = StateReady
	})
	return doc, nil
}

// IngestDocumentFile has the agent study a file from disk.
func (m *Manager) IngestDocumentFile(ctx context.Context, agentID, path string) (*rag.Document, error) {
	if _, ok := m.store.Get(agentID); !ok {
		return nil, NewNotFoundError("agent", agentID)
	}

	m.store.Update(agentID, func(a *Agent) {
		a.State = StateStudying
	})

	doc, err := m.library.IngestFile(ctx, agentID, path)
	if err != nil {
		m.store.Update(agentID, func(a *Agent) {
			a.State = StateReady
		})
		return nil, err
	}

	m.store.Update(agentID, func(a *Agent) {
		a.DocumentIDs = appendUnique(a.DocumentIDs, doc.ID)
		a.State = StateReady
	})
	return doc, nil
}

// AnswerQuestion resolves a question by ID and answers it, appending the
// resulting message to the agent's history. A failed answer is appended as
// a failed message and the error is returned.
func (m *Manager) AnswerQuestion(ctx context.Context, agentID, questionID string, opts AnswerOptions) (*Message, error) {
	strat, err := m.strategyFor(agentID, opts.Strategy)
	if err != nil {
		return nil, err
	}

	q, err := m.resolveQuestion(questionID)
	if err != nil {
		return nil, err
	}

	if err := m.beginAnswering(agentID); err != nil {
		return nil, err
	}
	defer m.endAnswering(agentID)

	return m.answerOne(ctx, agentID, q, strat)
}

// Answer answers a directly supplied question, without a QuestionSource.
func (m *Manager) Answer(ctx context.Context, agentID string, q answer.Question, opts AnswerOptions) (*Message, error) {
	strat, err := m.strategyFor(agentID, opts.Strategy)
	if err != nil {
		return nil, err
	}

	if err := m.beginAnswering(agentID); err != nil {
		return nil, err
	}
	defer m.endAnswering(agentID)

	return m.answerOne(ctx, agentID, q, strat)
}

// AnswerQuestions answers a batch. One question's failure is recorded as a
// failed entry and never aborts the rest. Results come back in request
// order; the history reflects completion order unless Sequential is set.
func (m *Manager) AnswerQuestions(ctx context.Context, agentID string, questionIDs []string, opts BatchOptions) ([]QuestionResult, error) {
	strat, err := m.strategyFor(agentID, opts.Strategy)
	if err != nil {
		return nil, err
	}

	if err := m.beginAnswering(agentID); err != nil {
		return nil, err
	}
	defer m.endAnswering(agentID)

	results := make([]QuestionResult, len(questionIDs))

	if opts.Sequential {
		for i, id := range questionIDs {
			results[i] = m.answerByID(ctx, agentID, id, strat)
		}
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(answerConcurrency)
	for i, id := range questionIDs {
		g.Go(func() error {
			results[i] = m.answerByID(ctx, agentID, id, strat)
			return nil
		})
	}
	// Workers never return errors; failures live in the results
	_ = g.Wait()

	return results, nil
}

func (m *Manager) answerByID(ctx context.Context, agentID, questionID string, strat answer.Strategy) QuestionResult {
	q, err := m.resolveQuestion(questionID)
	if err != nil {
		msg := m.appendFailure(agentID, questionID, "", strat.Kind(), err)
		return QuestionResult{QuestionID: questionID, Message: msg, Err: err}
	}

	msg, err := m.answerOne(ctx, agentID, q, strat)
	return QuestionResult{QuestionID: questionID, Message: msg, Err: err}
}

// strategyFor resolves the strategy for one operation: the request override
// wins, then the agent's own, then the configured default.
func (m *Manager) strategyFor(agentID string, override answer.Kind) (answer.Strategy, error) {
	a, err := m.GetAgent(agentID)
	if err != nil {
		return nil, err
	}

	kind := override
	if kind == "" {
		kind = a.Strategy
	}
	return m.strategies.For(kind)
}

// answerOne runs retrieve → strategy → calibrate → append for one question.
// The caller must hold an inflight slot.
func (m *Manager) answerOne(ctx context.Context, agentID string, q answer.Question, strat answer.Strategy) (*Message, error) {
	// The parametric strategy never looks at context, so its answers must
	// not depend on the embedding service being reachable.
	var hits []rag.Hit
	if strat.Kind() != answer.KindParametric {
		var err error
		hits, err = m.retriever.Retrieve(ctx, q.Stem, m.library.VisibleTo(agentID))
		if err != nil {
			return m.appendFailure(agentID, q.ID, q.Stem, strat.Kind(), err), err
		}
	}

	draft, err := strat.Answer(ctx, q, hits)
	if err != nil {
		return m.appendFailure(agentID, q.ID, q.Stem, strat.Kind(), err), err
	}

	scores := make(map[string]float64, len(hits))
	chunkIDs := make([]string, len(hits))
	for i, h := range hits {
		scores[h.ChunkID] = float64(h.Score)
		chunkIDs[i] = h.ChunkID
	}

	confidence := answer.Calibrate(draft.RawConfidence, draft.Strategy,
		answer.MeanSimilarityOf(draft, scores))

	msg := &Message{
		ID:              uuid.NewString(),
		QuestionID:      q.ID,
		Query:           q.Stem,
		OptionLabel:     draft.OptionLabel,
		Justification:   draft.Justification,
		Confidence:      confidence,
		Strategy:        string(draft.Strategy),
		Comment:         draft.Comment,
		RetrievedChunks: chunkIDs,
		CreatedAt:       time.Now(),
	}
	m.appendMessage(agentID, msg)

	slog.Debug("Answered question",
		"agent", agentID,
		"question", q.ID,
		"answer", msg.OptionLabel,
		"confidence", msg.Confidence,
		"strategy", msg.Strategy)
	return msg, nil
}

func (m *Manager) resolveQuestion(id string) (answer.Question, error) {
	if m.questions == nil {
		return answer.Question{}, NewNotFoundError("question", id)
	}
	q, ok := m.questions.Question(id)
	if !ok {
		return answer.Question{}, NewNotFoundError("question", id)
	}
	return q, nil
}

// beginAnswering moves the agent into ANSWERING, counting re-entrant calls.
// The existence check shares inflightMu with DeleteAgent's busy check, so an
// answer cannot start against an agent whose deletion was just decided.
func (m *Manager) beginAnswering(agentID string) error {
	m.inflightMu.Lock()
	a, ok := m.store.Get(agentID)
	if !ok || a.State == StateDeleted {
		m.inflightMu.Unlock()
		return NewNotFoundError("agent", agentID)
	}
	m.inflight[agentID]++
	m.inflightMu.Unlock()

	m.store.Update(agentID, func(a *Agent) {
		a.State = StateAnswering
	})
	return nil
}

// endAnswering returns the agent to READY once the last in-flight answer
// finishes.
func (m *Manager) endAnswering(agentID string) {
	m.inflightMu.Lock()
	m.inflight[agentID]--
	idle := m.inflight[agentID] <= 0
	if idle {
		delete(m.inflight, agentID)
	}
	m.inflightMu.Unlock()

	if idle {
		m.store.Update(agentID, func(a *Agent) {
			if a.State == StateAnswering {
				a.State = StateReady
			}
		})
	}
}

// appendMessage appends to the agent's history under its per-agent lock, so
// concurrent answers serialize in completion order.
func (m *Manager) appendMessage(agentID string, msg *Message) {
	m.store.Update(agentID, func(a *Agent) {
		a.Messages = append(a.Messages, *msg)
	})
}

func (m *Manager) appendFailure(agentID, questionID, query string, kind answer.Kind, cause error) *Message {
	msg := &Message{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		Query:      query,
		Strategy:   string(kind),
		Failed:     true,
		Error:      cause.Error(),
		CreatedAt:  time.Now(),
	}
	m.appendMessage(agentID, msg)

	slog.Warn("Question failed",
		"agent", agentID,
		"question", questionID,
		"error", cause)
	return msg
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
