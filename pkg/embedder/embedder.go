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

// Package embedder converts text to vectors.
//
// Ingestion and query must share one embedding space; the Fingerprint of an
// embedder is recorded at first ingest and checked on every query path.
package embedder

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings from text.
type Embedder interface {
	// Embed converts text to a vector embedding.
	// Deterministic for identical input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to vector embeddings.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// Model returns the model name being used.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Fingerprint identifies an embedding space. Only embedders with equal
// fingerprints produce comparable vectors.
type Fingerprint struct {
	Provider  string `yaml:"provider" json:"provider"`
	Model     string `yaml:"model" json:"model"`
	Dimension int    `yaml:"dimension" json:"dimension"`
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s/%s/%d", f.Provider, f.Model, f.Dimension)
}

// ServiceError represents an embedding service failure. Transport-level
// failures (timeouts, 5xx) are retryable under the caller's retry policy.
type ServiceError struct {
	Provider string // Provider name
	Message  string // Error message
	Err      error  // Underlying error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("[%s] embedding failed: %s", e.Provider, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(provider, message string, err error) *ServiceError {
	return &ServiceError{
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}
