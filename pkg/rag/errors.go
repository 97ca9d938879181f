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

package rag

import "fmt"

// ChunkingError represents an error during document chunking.
// Fatal to that document's ingestion; other documents are unaffected.
type ChunkingError struct {
	DocumentID string // Document ID
	Message    string // Error message
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *ChunkingError) Error() string {
	msg := fmt.Sprintf("chunking failed for %s: %s", e.DocumentID, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ChunkingError) Unwrap() error {
	return e.Err
}

// NewChunkingError creates a new ChunkingError.
func NewChunkingError(documentID, message string, err error) *ChunkingError {
	return &ChunkingError{
		DocumentID: documentID,
		Message:    message,
		Err:        err,
	}
}

// ConfigError represents an invalid component configuration, such as querying
// with a different embedding space than the one used for ingestion.
type ConfigError struct {
	Component string // Component that rejected the configuration
	Message   string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("[%s] configuration error: %s", e.Component, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(component, message string) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
	}
}

// IndexError represents an error while indexing a document's chunks.
type IndexError struct {
	DocumentID string // Document ID
	Operation  string // Operation (e.g., "embed", "upsert", "delete")
	Message    string // Error message
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	msg := fmt.Sprintf("index %s failed for %s: %s", e.Operation, e.DocumentID, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *IndexError) Unwrap() error {
	return e.Err
}

// NewIndexError creates a new IndexError.
func NewIndexError(documentID, operation, message string, err error) *IndexError {
	return &IndexError{
		DocumentID: documentID,
		Operation:  operation,
		Message:    message,
		Err:        err,
	}
}
