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
	"fmt"
	"strings"

	"github.com/kadirpekel/scholar/pkg/rag"
)

const groundedSystem = `You are a diligent student answering a multiple-choice question using ONLY the provided study material.
Rules:
- Choose exactly one option label from the question.
- Ground your justification in the numbered context blocks; do not use outside knowledge.
- If the material does not fully answer the question, pick the best-supported option and lower your confidence.
Respond with a single JSON object:
{"answer": "<option label>", "justification": "<one or two sentences>", "confidence": <0.0-1.0>, "citations": [<context block numbers used>]}`

const parametricSystem = `You are a knowledgeable student answering a multiple-choice question from memory.
Rules:
- Choose exactly one option label from the question.
- Base your justification on your general knowledge.
- Report your honest certainty as a confidence value.
Respond with a single JSON object:
{"answer": "<option label>", "justification": "<one or two sentences>", "confidence": <0.0-1.0>}`

// strictReminder is appended when the first response could not be parsed.
const strictReminder = `

Your previous response could not be parsed. Respond with ONLY the JSON object, no prose, no code fences, and the "answer" field must be exactly one of the option labels.`

const critiqueSystem = `You are reviewing a student's answer to a multiple-choice question.
In one sentence, note the main weakness or risk in the answer (or state that it is well supported).
Respond with plain text only.`

// buildQuestionBlock renders the stem and options.
func buildQuestionBlock(q Question) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(q.Stem)
	b.WriteString("\n\nOptions:\n")
	for _, o := range q.Options {
		fmt.Fprintf(&b, "%s) %s\n", o.Label, o.Text)
	}
	return b.String()
}

// buildGroundedPrompt renders numbered context blocks followed by the
// question.
func buildGroundedPrompt(q Question, hits []rag.Hit) string {
	var b strings.Builder
	b.WriteString("Study material:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, strings.TrimSpace(h.Content))
	}
	b.WriteString("\n")
	b.WriteString(buildQuestionBlock(q))
	return b.String()
}

// buildParametricPrompt renders the question alone.
func buildParametricPrompt(q Question) string {
	return buildQuestionBlock(q)
}

// buildCritiquePrompt renders the question and the chosen answer for review.
func buildCritiquePrompt(q Question, draft *Draft) string {
	var b strings.Builder
	b.WriteString(buildQuestionBlock(q))
	fmt.Fprintf(&b, "\nChosen answer: %s\nJustification: %s\n", draft.OptionLabel, draft.Justification)
	return b.String()
}
