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

// Package exam runs question banks against agents and logs scored results.
package exam

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/scholar/pkg/answer"
)

// Bank is an immutable set of questions loaded from a file.
type Bank struct {
	questions map[string]answer.Question
	order     []string
}

// bankFile is the on-disk shape: either a bare question list or a document
// with a questions key.
type bankFile struct {
	Questions []answer.Question `yaml:"questions" json:"questions"`
}

// LoadBank reads a YAML or JSON question bank. Questions without an ID get
// a positional one.
func LoadBank(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank: %w", err)
	}

	// YAML is a superset of JSON, so one decoder covers both
	var file bankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		var bare []answer.Question
		if bareErr := yaml.Unmarshal(data, &bare); bareErr != nil {
			return nil, fmt.Errorf("failed to parse question bank: %w", err)
		}
		file.Questions = bare
	}

	if len(file.Questions) == 0 {
		return nil, fmt.Errorf("question bank %s has no questions", path)
	}

	bank := &Bank{questions: make(map[string]answer.Question, len(file.Questions))}
	for i, q := range file.Questions {
		if q.ID == "" {
			q.ID = fmt.Sprintf("q-%d", i+1)
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("invalid question bank: %w", err)
		}
		if _, dup := bank.questions[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q in %s", q.ID, path)
		}
		bank.questions[q.ID] = q
		bank.order = append(bank.order, q.ID)
	}

	return bank, nil
}

// Question resolves a question by ID.
func (b *Bank) Question(id string) (answer.Question, bool) {
	q, ok := b.questions[id]
	return q, ok
}

// IDs returns question IDs in load order.
func (b *Bank) IDs() []string {
	return append([]string(nil), b.order...)
}

// Questions returns all questions in load order.
func (b *Bank) Questions() []answer.Question {
	out := make([]answer.Question, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.questions[id])
	}
	return out
}

// ForWeek returns the questions tagged with the given week, in load order.
func (b *Bank) ForWeek(week int) []answer.Question {
	var out []answer.Question
	for _, id := range b.order {
		if q := b.questions[id]; q.Week == week {
			out = append(out, q)
		}
	}
	return out
}

// Len returns the number of questions.
func (b *Bank) Len() int {
	return len(b.order)
}
