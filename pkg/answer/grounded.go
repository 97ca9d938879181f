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
	"log/slog"

	"github.com/kadirpekel/scholar/pkg/llm"
	"github.com/kadirpekel/scholar/pkg/rag"
)

// GroundedStrategy answers strictly from retrieved context.
//
// With no context it either fails with *EmptyContextError or, when a
// fallback is configured, degrades to the parametric strategy and tags the
// draft accordingly so the switch stays auditable.
type GroundedStrategy struct {
	provider llm.Provider
	samples  int
	critique bool
	fallback *ParametricStrategy
}

// NewGroundedStrategy creates a grounded strategy. A nil fallback means
// empty context is refused.
func NewGroundedStrategy(provider llm.Provider, samples int, critique bool, fallback *ParametricStrategy) *GroundedStrategy {
	if samples < 1 {
		samples = 1
	}
	return &GroundedStrategy{
		provider: provider,
		samples:  samples,
		critique: critique,
		fallback: fallback,
	}
}

// Kind returns the strategy tag.
func (s *GroundedStrategy) Kind() Kind {
	return KindGrounded
}

// Answer produces a draft grounded in the supplied hits.
func (s *GroundedStrategy) Answer(ctx context.Context, q Question, hits []rag.Hit) (*Draft, error) {
	if err := q.Validate(); err != nil {
		return nil, NewAnswerGenerationError(q.ID, "invalid question", err)
	}

	if len(hits) == 0 {
		if s.fallback == nil {
			return nil, &EmptyContextError{QuestionID: q.ID}
		}
		slog.Info("No retrieved context, degrading to parametric strategy",
			"question", q.ID)
		return s.fallback.Answer(ctx, q, nil)
	}

	prompt := buildGroundedPrompt(q, hits)
	samples, err := drawSamples(ctx, s.provider, groundedSystem, prompt, q, s.samples)
	if err != nil {
		return nil, err
	}

	chosen, agreement := consensus(samples)
	draft := &Draft{
		Strategy:      KindGrounded,
		OptionLabel:   chosen.Answer,
		Justification: chosen.Justification,
		RawConfidence: rawConfidence(samples, chosen, agreement),
		Samples:       len(samples),
		Agreement:     agreement,
		CitedChunks:   citedChunks(chosen, hits),
	}

	if s.critique {
		draft.Comment = critique(ctx, s.provider, q, draft)
	}

	return draft, nil
}

// citedChunks maps the model's 1-based context block citations to chunk IDs.
// Without usable citations every supplied chunk counts as cited.
func citedChunks(ans *modelAnswer, hits []rag.Hit) []string {
	var ids []string
	for _, n := range ans.Citations {
		if n >= 1 && n <= len(hits) {
			ids = append(ids, hits[n-1].ChunkID)
		}
	}
	if len(ids) > 0 {
		return ids
	}

	ids = make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids
}

var _ Strategy = (*GroundedStrategy)(nil)
