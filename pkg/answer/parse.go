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
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// modelAnswer is the JSON shape strategies ask the model to produce.
type modelAnswer struct {
	Answer        string  `json:"answer"`
	Justification string  `json:"justification"`
	Confidence    float64 `json:"confidence"`

	// Citations are 1-based context block numbers the answer relied on.
	Citations []int `json:"citations,omitempty"`
}

var (
	jsonFenceRe   = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	controlCharRe = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F-\x9F]`)
)

// parseModelAnswer extracts and validates the model's JSON answer.
// The chosen label must name one of the question's options.
func parseModelAnswer(raw string, q Question) (*modelAnswer, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var ans modelAnswer
	if err := json.Unmarshal([]byte(payload), &ans); err != nil {
		return nil, fmt.Errorf("malformed JSON in model output: %w", err)
	}

	ans.Answer = normalizeLabel(ans.Answer)
	if ans.Answer == "" {
		return nil, fmt.Errorf("model output has no answer label")
	}
	if !q.HasOption(ans.Answer) {
		// Tolerate case-only mismatches against the option labels
		for _, o := range q.Options {
			if strings.EqualFold(o.Label, ans.Answer) {
				ans.Answer = o.Label
				break
			}
		}
	}
	if !q.HasOption(ans.Answer) {
		return nil, fmt.Errorf("answer %q is not an option of question %s", ans.Answer, q.ID)
	}

	if ans.Confidence < 0 {
		ans.Confidence = 0
	}
	if ans.Confidence > 1 {
		ans.Confidence = 1
	}

	return &ans, nil
}

// extractJSON pulls a JSON object out of model output: a ```json fence if
// present, otherwise the first balanced {...} block. Control characters that
// models sometimes emit inside strings are stripped.
func extractJSON(raw string) string {
	text := raw
	if m := jsonFenceRe.FindStringSubmatch(raw); m != nil {
		text = m[1]
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return controlCharRe.ReplaceAllString(text[start:i+1], "")
			}
		}
	}

	return ""
}

// normalizeLabel strips whitespace and trailing punctuation from a label
// like "A." or " b) ".
func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimRight(label, ".):")
	return strings.TrimSpace(label)
}
