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

package answer

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/kadirpekel/scholar/pkg/config"
	"github.com/kadirpekel/scholar/pkg/llm"
	"github.com/kadirpekel/scholar/pkg/rag"
)

// fakeLLM replays scripted responses in order, repeating the last one.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
	prompts   []string
	systems   []string
	err       error
}

func (f *fakeLLM) Generate(ctx context.Context, system, prompt string, opts *llm.GenerateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}

	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeLLM) Model() string { return "fake-llm" }
func (f *fakeLLM) Close() error  { return nil }

var _ llm.Provider = (*fakeLLM)(nil)

func answerJSON(label string, confidence float64) string {
	return `{"answer": "` + label + `", "justification": "because the material says so", "confidence": ` +
		strconv.FormatFloat(confidence, 'f', -1, 64) + `}`
}

func someHits() []rag.Hit {
	return []rag.Hit{
		{ChunkID: "c1", DocumentID: "d1", Ordinal: 0, Content: "Mitochondria produce ATP.", Score: 0.9},
		{ChunkID: "c2", DocumentID: "d1", Ordinal: 1, Content: "The nucleus stores DNA.", Score: 0.4},
	}
}

func TestGroundedAnswer(t *testing.T) {
	model := &fakeLLM{responses: []string{answerJSON("B", 0.9)}}
	s := NewGroundedStrategy(model, 1, false, nil)

	draft, err := s.Answer(context.Background(), sampleQuestion(), someHits())
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if draft.Strategy != KindGrounded {
		t.Errorf("Strategy = %s", draft.Strategy)
	}
	if draft.OptionLabel != "B" {
		t.Errorf("OptionLabel = %q, want B", draft.OptionLabel)
	}
	if draft.RawConfidence != 0.9 {
		t.Errorf("RawConfidence = %v, want 0.9", draft.RawConfidence)
	}
	if len(draft.CitedChunks) != 2 {
		t.Errorf("CitedChunks = %v, want all hits absent explicit citations", draft.CitedChunks)
	}

	// The prompt must carry the context blocks and the question
	if !strings.Contains(model.prompts[0], "Mitochondria produce ATP.") {
		t.Error("prompt missing retrieved context")
	}
	if !strings.Contains(model.prompts[0], sampleQuestion().Stem) {
		t.Error("prompt missing question stem")
	}
}

func TestGroundedAnswerCitations(t *testing.T) {
	model := &fakeLLM{responses: []string{
		`{"answer": "B", "justification": "x", "confidence": 0.8, "citations": [1]}`,
	}}
	s := NewGroundedStrategy(model, 1, false, nil)

	draft, err := s.Answer(context.Background(), sampleQuestion(), someHits())
	if err != nil {
		t.Fatal(err)
	}
	if len(draft.CitedChunks) != 1 || draft.CitedChunks[0] != "c1" {
		t.Errorf("CitedChunks = %v, want [c1]", draft.CitedChunks)
	}
}

func TestGroundedEmptyContextRefuses(t *testing.T) {
	s := NewGroundedStrategy(&fakeLLM{responses: []string{answerJSON("B", 0.9)}}, 1, false, nil)

	_, err := s.Answer(context.Background(), sampleQuestion(), nil)
	if err == nil {
		t.Fatal("expected error on empty context")
	}
	var emptyErr *EmptyContextError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected *EmptyContextError, got %T", err)
	}
}

func TestGroundedEmptyContextFallsBack(t *testing.T) {
	model := &fakeLLM{responses: []string{answerJSON("B", 0.6)}}
	fallback := NewParametricStrategy(model, 1, false)
	s := NewGroundedStrategy(model, 1, false, fallback)

	draft, err := s.Answer(context.Background(), sampleQuestion(), nil)
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if draft.Strategy != KindParametric {
		t.Errorf("Strategy = %s, want parametric after fallback", draft.Strategy)
	}
}

func TestGroundedRetriesUnparseableOutput(t *testing.T) {
	model := &fakeLLM{responses: []string{
		"I think the answer is B.",
		answerJSON("B", 0.8),
	}}
	s := NewGroundedStrategy(model, 1, false, nil)

	draft, err := s.Answer(context.Background(), sampleQuestion(), someHits())
	if err != nil {
		t.Fatalf("Answer failed after retry: %v", err)
	}
	if draft.OptionLabel != "B" {
		t.Errorf("OptionLabel = %q", draft.OptionLabel)
	}
	if model.calls != 2 {
		t.Errorf("model called %d times, want 2", model.calls)
	}
	if !strings.Contains(model.systems[1], "could not be parsed") {
		t.Error("retry did not use the stricter instruction")
	}
}

func TestGroundedFailsAfterRetry(t *testing.T) {
	model := &fakeLLM{responses: []string{"no json here", "still no json"}}
	s := NewGroundedStrategy(model, 1, false, nil)

	_, err := s.Answer(context.Background(), sampleQuestion(), someHits())
	if err == nil {
		t.Fatal("expected error")
	}
	var genErr *AnswerGenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *AnswerGenerationError, got %T", err)
	}
	if genErr.QuestionID != "q-1" {
		t.Errorf("QuestionID = %q", genErr.QuestionID)
	}
}

func TestGroundedSamplingAgreement(t *testing.T) {
	// Three samples: two vote B, one votes A
	model := &fakeLLM{responses: []string{
		answerJSON("B", 0.9),
		answerJSON("A", 0.8),
		answerJSON("B", 0.7),
	}}
	s := NewGroundedStrategy(model, 3, false, nil)

	draft, err := s.Answer(context.Background(), sampleQuestion(), someHits())
	if err != nil {
		t.Fatal(err)
	}
	if draft.OptionLabel != "B" {
		t.Errorf("OptionLabel = %q, want majority B", draft.OptionLabel)
	}
	if draft.Samples != 3 {
		t.Errorf("Samples = %d, want 3", draft.Samples)
	}
	if draft.Agreement < 0.6 || draft.Agreement > 0.7 {
		t.Errorf("Agreement = %v, want 2/3", draft.Agreement)
	}
}

func TestGroundedSamplingTieBreaksDeterministically(t *testing.T) {
	// D and C tie at two votes each; the label seen first among the
	// samples must win, never map iteration order.
	model := &fakeLLM{responses: []string{
		answerJSON("A", 0.9),
		answerJSON("D", 0.8),
		answerJSON("D", 0.8),
		answerJSON("C", 0.7),
		answerJSON("C", 0.7),
	}}
	s := NewGroundedStrategy(model, 5, false, nil)

	draft, err := s.Answer(context.Background(), sampleQuestion(), someHits())
	if err != nil {
		t.Fatal(err)
	}
	if draft.OptionLabel != "D" {
		t.Errorf("OptionLabel = %q, want first-seen tied label D", draft.OptionLabel)
	}
	if draft.Agreement != 0.4 {
		t.Errorf("Agreement = %v, want 2/5", draft.Agreement)
	}
}

func TestParametricIgnoresContext(t *testing.T) {
	model := &fakeLLM{responses: []string{answerJSON("B", 0.7)}}
	s := NewParametricStrategy(model, 1, false)

	draft, err := s.Answer(context.Background(), sampleQuestion(), someHits())
	if err != nil {
		t.Fatal(err)
	}
	if draft.Strategy != KindParametric {
		t.Errorf("Strategy = %s", draft.Strategy)
	}
	if strings.Contains(model.prompts[0], "Mitochondria produce ATP.") {
		t.Error("parametric prompt leaked retrieved context")
	}
	if len(draft.CitedChunks) != 0 {
		t.Errorf("CitedChunks = %v, want none", draft.CitedChunks)
	}
}

func TestParametricAnswersWithoutContext(t *testing.T) {
	model := &fakeLLM{responses: []string{answerJSON("C", 0.5)}}
	s := NewParametricStrategy(model, 1, false)

	draft, err := s.Answer(context.Background(), sampleQuestion(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if draft.OptionLabel != "C" {
		t.Errorf("OptionLabel = %q", draft.OptionLabel)
	}
}

func TestCritiqueComment(t *testing.T) {
	model := &fakeLLM{responses: []string{
		answerJSON("B", 0.9),
		"The answer is well supported by the material.",
	}}
	s := NewGroundedStrategy(model, 1, true, nil)

	draft, err := s.Answer(context.Background(), sampleQuestion(), someHits())
	if err != nil {
		t.Fatal(err)
	}
	if draft.Comment == "" {
		t.Error("expected a critique comment")
	}
}

func TestNewStrategiesFromConfig(t *testing.T) {
	model := &fakeLLM{responses: []string{answerJSON("B", 0.9)}}

	set, err := NewStrategies(&config.AnswerConfig{Strategy: "parametric"}, model)
	if err != nil {
		t.Fatal(err)
	}
	if set.DefaultKind != KindParametric {
		t.Errorf("DefaultKind = %s", set.DefaultKind)
	}

	// Both strategies are built regardless of the default, so the same
	// question can be answered either way.
	s, err := set.For("")
	if err != nil {
		t.Fatal(err)
	}
	if s.Kind() != KindParametric {
		t.Errorf("default Kind = %s", s.Kind())
	}
	s, err = set.For(KindGrounded)
	if err != nil {
		t.Fatal(err)
	}
	if s.Kind() != KindGrounded {
		t.Errorf("Kind = %s", s.Kind())
	}

	if _, err := set.For("oracular"); err == nil {
		t.Error("expected an error for an unknown strategy kind")
	}

	set, err = NewStrategies(&config.AnswerConfig{Strategy: "grounded", EmptyContextFallback: "parametric"}, model)
	if err != nil {
		t.Fatal(err)
	}

	draft, err := set.Grounded.Answer(context.Background(), sampleQuestion(), nil)
	if err != nil {
		t.Fatalf("fallback answer failed: %v", err)
	}
	if draft.Strategy != KindParametric {
		t.Errorf("fallback draft Strategy = %s", draft.Strategy)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("grounded"); err != nil || k != KindGrounded {
		t.Errorf("ParseKind(grounded) = %v, %v", k, err)
	}
	if k, err := ParseKind("parametric"); err != nil || k != KindParametric {
		t.Errorf("ParseKind(parametric) = %v, %v", k, err)
	}
	if _, err := ParseKind("vibes"); err == nil {
		t.Error("expected an error for an unknown kind")
	}
}
