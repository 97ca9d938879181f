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

import "fmt"

// EmptyContextError means the grounded strategy was invoked with no
// retrieved chunks and no fallback is configured.
type EmptyContextError struct {
	QuestionID string
}

// Error implements the error interface.
func (e *EmptyContextError) Error() string {
	return fmt.Sprintf("no retrieved context for question %s and no fallback configured", e.QuestionID)
}

// AnswerGenerationError means the model output could not be turned into a
// valid option choice, even after a stricter retry.
type AnswerGenerationError struct {
	QuestionID string // Question ID
	Message    string // Error message
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *AnswerGenerationError) Error() string {
	msg := fmt.Sprintf("answer generation failed for question %s: %s", e.QuestionID, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *AnswerGenerationError) Unwrap() error {
	return e.Err
}

// NewAnswerGenerationError creates a new AnswerGenerationError.
func NewAnswerGenerationError(questionID, message string, err error) *AnswerGenerationError {
	return &AnswerGenerationError{
		QuestionID: questionID,
		Message:    message,
		Err:        err,
	}
}
