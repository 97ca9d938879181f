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
	"strings"

	"github.com/kadirpekel/scholar/pkg/llm"
)

// sampleTemperature is used for the extra agreement samples; the primary
// draw runs at the provider's configured temperature.
const sampleTemperature = 0.8

// drawSamples generates n answers for the same prompt and parses each.
//
// The primary draw retries once with a stricter instruction before failing
// with *AnswerGenerationError. Extra draws exist only to measure agreement,
// so their parse failures are dropped.
func drawSamples(ctx context.Context, provider llm.Provider, system, prompt string, q Question, n int) ([]*modelAnswer, error) {
	primary, err := drawOne(ctx, provider, system, prompt, q, nil)
	if err != nil {
		return nil, err
	}

	samples := []*modelAnswer{primary}
	for i := 1; i < n; i++ {
		temp := sampleTemperature
		extra, err := drawOne(ctx, provider, system, prompt, q, &temp)
		if err != nil {
			slog.Debug("Dropping unparseable agreement sample",
				"question", q.ID,
				"sample", i,
				"error", err)
			continue
		}
		samples = append(samples, extra)
	}

	return samples, nil
}

// drawOne generates and parses a single answer, retrying once with a
// stricter instruction on parse failure.
func drawOne(ctx context.Context, provider llm.Provider, system, prompt string, q Question, temperature *float64) (*modelAnswer, error) {
	opts := &llm.GenerateOptions{JSONMode: true, Temperature: temperature}

	raw, err := provider.Generate(ctx, system, prompt, opts)
	if err != nil {
		return nil, NewAnswerGenerationError(q.ID, "model call failed", err)
	}

	ans, parseErr := parseModelAnswer(raw, q)
	if parseErr == nil {
		return ans, nil
	}

	slog.Debug("Retrying with stricter instruction",
		"question", q.ID,
		"error", parseErr)

	raw, err = provider.Generate(ctx, system+strictReminder, prompt, opts)
	if err != nil {
		return nil, NewAnswerGenerationError(q.ID, "model call failed on retry", err)
	}
	ans, parseErr = parseModelAnswer(raw, q)
	if parseErr != nil {
		return nil, NewAnswerGenerationError(q.ID, "unparseable model output", parseErr)
	}
	return ans, nil
}

// consensus picks the majority label among samples and measures agreement.
// Ties resolve to the label first seen among the samples, so the primary
// (first) sample wins any tie it is part of.
func consensus(samples []*modelAnswer) (chosen *modelAnswer, agreement float64) {
	votes := make(map[string]int, len(samples))
	var order []string
	for _, s := range samples {
		if votes[s.Answer] == 0 {
			order = append(order, s.Answer)
		}
		votes[s.Answer]++
	}

	best := order[0]
	for _, label := range order[1:] {
		if votes[label] > votes[best] {
			best = label
		}
	}

	for _, s := range samples {
		if s.Answer == best {
			chosen = s
			break
		}
	}

	return chosen, float64(votes[best]) / float64(len(samples))
}

// rawConfidence blends agreement across samples with the mean self-reported
// confidence of the samples voting for the chosen label. With a single
// sample there is no agreement signal, so self-report stands alone.
func rawConfidence(samples []*modelAnswer, chosen *modelAnswer, agreement float64) float64 {
	var sum float64
	var n int
	for _, s := range samples {
		if s.Answer == chosen.Answer {
			sum += s.Confidence
			n++
		}
	}
	selfReport := sum / float64(n)

	if len(samples) == 1 {
		return selfReport
	}
	return 0.5*agreement + 0.5*selfReport
}

// critique asks the model to review the draft. Failures are logged, never
// fatal.
func critique(ctx context.Context, provider llm.Provider, q Question, draft *Draft) string {
	comment, err := provider.Generate(ctx, critiqueSystem, buildCritiquePrompt(q, draft), nil)
	if err != nil {
		slog.Debug("Critique call failed", "question", q.ID, "error", err)
		return ""
	}
	return strings.TrimSpace(comment)
}
