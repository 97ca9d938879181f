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

// Package extract turns study files into plain text.
//
// Built-in extractors cover PDF, DOCX, XLSX and plain text/markdown. An
// unsupported or corrupt file surfaces as *ExtractionError; empty content is
// not an error.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExtractionError represents a failed content extraction.
type ExtractionError struct {
	Extractor string // Extractor name
	FilePath  string // File path
	Message   string // Error message
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("[%s] extraction failed for %s: %s", e.Extractor, e.FilePath, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError creates a new ExtractionError.
func NewExtractionError(extractor, filePath, message string, err error) *ExtractionError {
	return &ExtractionError{
		Extractor: extractor,
		FilePath:  filePath,
		Message:   message,
		Err:       err,
	}
}

// Extractor extracts plain text from one family of file formats.
type Extractor interface {
	// CanExtract reports whether this extractor handles the file.
	CanExtract(filePath string) bool

	// Extract returns the plain text content of the file.
	Extract(ctx context.Context, filePath string) (string, error)

	// Extensions returns the supported file extensions.
	Extensions() []string
}

// Registry dispatches extraction to the first matching extractor.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry with the built-in extractors.
func NewRegistry() *Registry {
	return &Registry{
		extractors: []Extractor{
			&pdfExtractor{},
			&officeExtractor{},
			&textExtractor{},
		},
	}
}

// ExtractText finds the appropriate extractor and returns the file's text.
func (r *Registry) ExtractText(ctx context.Context, filePath string) (string, error) {
	for _, e := range r.extractors {
		if e.CanExtract(filePath) {
			return e.Extract(ctx, filePath)
		}
	}
	return "", NewExtractionError("registry", filePath,
		fmt.Sprintf("no extractor for file type %s", filepath.Ext(filePath)), nil)
}

// Supported reports whether any extractor handles the file.
func (r *Registry) Supported(filePath string) bool {
	for _, e := range r.extractors {
		if e.CanExtract(filePath) {
			return true
		}
	}
	return false
}

// Extensions returns all supported file extensions.
func (r *Registry) Extensions() []string {
	seen := make(map[string]bool)
	var result []string
	for _, e := range r.extractors {
		for _, ext := range e.Extensions() {
			if !seen[ext] {
				seen[ext] = true
				result = append(result, ext)
			}
		}
	}
	return result
}

// textExtractor handles plain text formats verbatim.
type textExtractor struct{}

func (e *textExtractor) CanExtract(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".txt", ".md", ".markdown", ".csv", ".log":
		return true
	}
	return false
}

func (e *textExtractor) Extensions() []string {
	return []string{".txt", ".md", ".markdown", ".csv", ".log"}
}

func (e *textExtractor) Extract(ctx context.Context, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", NewExtractionError("text", filePath, "failed to read file", err)
	}
	return string(data), nil
}
