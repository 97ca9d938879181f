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

	"github.com/kadirpekel/scholar/pkg/llm"
	"github.com/kadirpekel/scholar/pkg/rag"
)

// ParametricStrategy answers from the model's general knowledge, ignoring
// retrieved context entirely. Its confidence reflects self-reported
// certainty and sampling agreement, never retrieval quality.
type ParametricStrategy struct {
	provider llm.Provider
	samples  int
	critique bool
}

// NewParametricStrategy creates a parametric strategy.
func NewParametricStrategy(provider llm.Provider, samples int, critique bool) *ParametricStrategy {
	if samples < 1 {
		samples = 1
	}
	return &ParametricStrategy{
		provider: provider,
		samples:  samples,
		critique: critique,
	}
}

// Kind returns the strategy tag.
func (s *ParametricStrategy) Kind() Kind {
	return KindParametric
}

// Answer produces a draft from model knowledge. Hits are ignored.
func (s *ParametricStrategy) Answer(ctx context.Context, q Question, _ []rag.Hit) (*Draft, error) {
	if err := q.Validate(); err != nil {
		return nil, NewAnswerGenerationError(q.ID, "invalid question", err)
	}

	prompt := buildParametricPrompt(q)
	samples, err := drawSamples(ctx, s.provider, parametricSystem, prompt, q, s.samples)
	if err != nil {
		return nil, err
	}

	chosen, agreement := consensus(samples)
	draft := &Draft{
		Strategy:      KindParametric,
		OptionLabel:   chosen.Answer,
		Justification: chosen.Justification,
		RawConfidence: rawConfidence(samples, chosen, agreement),
		Samples:       len(samples),
		Agreement:     agreement,
	}

	if s.critique {
		draft.Comment = critique(ctx, s.provider, q, draft)
	}

	return draft, nil
}

var _ Strategy = (*ParametricStrategy)(nil)
