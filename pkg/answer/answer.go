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

// Package answer turns a question plus retrieved context into an option
// choice with a calibrated confidence.
//
// Two strategies are available: grounded (answers strictly from retrieved
// context) and parametric (answers from model knowledge, ignoring
// retrieval). Both produce a Draft whose raw confidence the calibrator
// normalizes onto one comparable scale.
package answer

import (
	"context"
	"fmt"

	"github.com/kadirpekel/scholar/pkg/config"
	"github.com/kadirpekel/scholar/pkg/llm"
	"github.com/kadirpekel/scholar/pkg/rag"
)

// Kind tags an answering strategy.
type Kind string

const (
	KindGrounded   Kind = "grounded"
	KindParametric Kind = "parametric"
)

// ParseKind parses a strategy name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindGrounded, KindParametric:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown answer strategy: %q", s)
}

// Option is one labeled answer choice.
type Option struct {
	Label string `yaml:"label" json:"label"`
	Text  string `yaml:"text" json:"text"`
}

// Question is a multiple-choice question. Questions are authored externally
// and never modified by the answering engine.
type Question struct {
	ID   string `yaml:"id" json:"id"`
	Week int    `yaml:"week,omitempty" json:"week,omitempty"`
	Stem string `yaml:"stem" json:"stem"`

	// Options in presentation order. Cardinality is not fixed.
	Options []Option `yaml:"options" json:"options"`

	// Correct is the correct option label, used only for scoring.
	Correct string `yaml:"correct,omitempty" json:"correct,omitempty"`
}

// HasOption reports whether label names one of the question's options.
func (q Question) HasOption(label string) bool {
	for _, o := range q.Options {
		if o.Label == label {
			return true
		}
	}
	return false
}

// Validate checks the question is answerable.
func (q Question) Validate() error {
	if q.Stem == "" {
		return fmt.Errorf("question %s has no stem", q.ID)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %s has %d options, need at least 2", q.ID, len(q.Options))
	}
	seen := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		if o.Label == "" {
			return fmt.Errorf("question %s has an unlabeled option", q.ID)
		}
		if seen[o.Label] {
			return fmt.Errorf("question %s has duplicate option label %q", q.ID, o.Label)
		}
		seen[o.Label] = true
	}
	return nil
}

// Draft is a strategy's raw output before calibration.
type Draft struct {
	// Strategy that actually produced the draft. Differs from the
	// configured strategy when the grounded strategy degraded to
	// parametric on empty context.
	Strategy Kind

	// OptionLabel is the chosen option.
	OptionLabel string

	// Justification is the model's free-text reasoning.
	Justification string

	// RawConfidence in [0,1], blending sampling agreement with the
	// model's self-reported certainty.
	RawConfidence float64

	// Samples drawn and Agreement among them for the chosen label.
	Samples   int
	Agreement float64

	// CitedChunks are the chunk IDs the justification relied on.
	CitedChunks []string

	// Comment is an optional self-critique of the answer.
	Comment string
}

// Strategy answers a question given optional retrieved context.
//
// Strategies form a closed set selected by configuration; there is no
// runtime strategy discovery.
type Strategy interface {
	// Answer produces a draft. The grounded strategy requires hits; the
	// parametric strategy ignores them.
	Answer(ctx context.Context, q Question, hits []rag.Hit) (*Draft, error)

	// Kind returns the strategy tag.
	Kind() Kind
}

// Strategies holds both strategy implementations, so callers can select per
// agent or per request and compare both answers for the same question.
type Strategies struct {
	Grounded   Strategy
	Parametric Strategy

	// DefaultKind applies when neither the agent nor the request names one.
	DefaultKind Kind
}

// For returns the strategy for kind, defaulting on empty.
func (s *Strategies) For(kind Kind) (Strategy, error) {
	if kind == "" {
		kind = s.DefaultKind
	}
	switch kind {
	case KindGrounded:
		if s.Grounded != nil {
			return s.Grounded, nil
		}
	case KindParametric:
		if s.Parametric != nil {
			return s.Parametric, nil
		}
	}
	return nil, fmt.Errorf("unknown answer strategy: %q", kind)
}

// NewStrategies builds both strategies from configuration.
//
// The grounded strategy's behavior on empty context follows the explicit
// empty_context_fallback setting: "refuse" fails with *EmptyContextError,
// "parametric" degrades to the parametric strategy and records that in the
// draft.
func NewStrategies(cfg *config.AnswerConfig, provider llm.Provider) (*Strategies, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid answer config: %w", err)
	}

	parametric := NewParametricStrategy(provider, cfg.Samples, cfg.Critique)

	var fallback *ParametricStrategy
	if cfg.EmptyContextFallback == "parametric" {
		fallback = parametric
	}

	return &Strategies{
		Grounded:    NewGroundedStrategy(provider, cfg.Samples, cfg.Critique, fallback),
		Parametric:  parametric,
		DefaultKind: Kind(cfg.Strategy),
	}, nil
}
