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

// Package llm abstracts text generation behind a small provider interface.
package llm

import (
	"context"
	"fmt"
)

// GenerateOptions tune a single generation call. Nil fields fall back to the
// provider configuration.
type GenerateOptions struct {
	// Temperature overrides the configured sampling temperature.
	Temperature *float64

	// MaxTokens overrides the configured completion budget.
	MaxTokens int

	// JSONMode asks the provider for a JSON-formatted response where the
	// backing API supports it.
	JSONMode bool
}

// Provider generates text from a prompt.
type Provider interface {
	// Generate produces a completion for the prompt under the system
	// instruction. Deterministic when Temperature is zero.
	Generate(ctx context.Context, system, prompt string, opts *GenerateOptions) (string, error)

	// Model returns the model name being used.
	Model() string

	// Close releases any resources held by the provider.
	Close() error
}

// ServiceError represents a language model service failure. Transport-level
// failures (timeouts, 5xx, rate limits) are retryable under the caller's
// retry policy.
type ServiceError struct {
	Provider string // Provider name
	Message  string // Error message
	Err      error  // Underlying error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("[%s] generation failed: %s", e.Provider, e.Message)
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
