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

package exam

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Result is one scored answer row.
type Result struct {
	Student       string
	Strategy      string
	QuestionID    string
	Question      string
	Answer        string
	Justification string
	Confidence    float64
	Comment       string
	Correct       bool
}

var resultHeader = []string{
	"student", "strategy", "question_id", "question",
	"answer", "justification", "confidence", "comment", "correct",
}

// ResultWriter appends scored results to a semicolon-delimited CSV file,
// writing the header when the file is new. Safe for concurrent use.
type ResultWriter struct {
	mu   sync.Mutex
	path string
}

// NewResultWriter creates a writer for the given file path.
func NewResultWriter(path string) *ResultWriter {
	return &ResultWriter{path: path}
}

// Append writes results to the file, creating it with a header first.
func (w *ResultWriter) Append(results []Result) error {
	if len(results) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	_, statErr := os.Stat(w.path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open results file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	cw.Comma = ';'

	if isNew {
		if err := cw.Write(resultHeader); err != nil {
			return fmt.Errorf("failed to write results header: %w", err)
		}
	}

	for _, r := range results {
		row := []string{
			r.Student,
			r.Strategy,
			r.QuestionID,
			r.Question,
			r.Answer,
			r.Justification,
			strconv.FormatFloat(r.Confidence, 'f', 4, 64),
			r.Comment,
			strconv.FormatBool(r.Correct),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write result row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Path returns the results file path.
func (w *ResultWriter) Path() string {
	return w.path
}
