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

// RetrievalStats summarize the retrieval behind a grounded answer.
type RetrievalStats struct {
	// MeanSimilarity of the cited chunks, in [0,1].
	MeanSimilarity float64

	// Hits retrieved for the question.
	Hits int
}

// Calibration bounds: calibrated confidence never reaches the extremes, so
// scores from different strategies stay comparable and no answer presents
// as certain.
const (
	calibrationFloor = 0.02
	calibrationSpan  = 0.96
)

// Calibrate normalizes a strategy's raw confidence onto a comparable [0,1]
// scale.
//
// Pure and deterministic: equal inputs yield equal outputs, and it is
// monotonic in both raw confidence and mean similarity. Grounded answers
// blend retrieval quality into the score; parametric answers carry their
// raw signal alone since retrieval played no part.
func Calibrate(raw float64, kind Kind, stats *RetrievalStats) float64 {
	raw = clamp01(raw)

	blended := raw
	if kind == KindGrounded && stats != nil && stats.Hits > 0 {
		blended = 0.5*raw + 0.5*clamp01(stats.MeanSimilarity)
	}

	return calibrationFloor + calibrationSpan*blended
}

// MeanSimilarityOf computes retrieval stats for the chunks a draft cited.
func MeanSimilarityOf(draft *Draft, scores map[string]float64) *RetrievalStats {
	if len(draft.CitedChunks) == 0 {
		return &RetrievalStats{Hits: len(scores)}
	}

	var sum float64
	var n int
	for _, id := range draft.CitedChunks {
		if score, ok := scores[id]; ok {
			sum += score
			n++
		}
	}

	stats := &RetrievalStats{Hits: len(scores)}
	if n > 0 {
		stats.MeanSimilarity = sum / float64(n)
	}
	return stats
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
