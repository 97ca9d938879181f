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

// Package rag implements the retrieval pipeline: token-aware semantic
// chunking, a document library backed by an embedder and a vector store, and
// similarity retrieval scoped to a set of documents.
package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kadirpekel/scholar/pkg/config"
)

// Chunk is a bounded semantic slice of a document, the unit of embedding and
// retrieval.
//
// Content may begin with OverlapPrefixLen bytes repeated from the previous
// chunk's tail. Concatenating Content[OverlapPrefixLen:] over all chunks in
// ordinal order reproduces the source text exactly.
type Chunk struct {
	// ID is a deterministic identifier derived from the document, ordinal
	// and content, so re-ingestion is idempotent.
	ID string

	// DocumentID is the parent document.
	DocumentID string

	// Ordinal is the chunk's position within the document, starting at 0.
	Ordinal int

	// Content is the chunk text, including the leading overlap.
	Content string

	// OverlapPrefixLen is the byte length of the leading overlap.
	OverlapPrefixLen int

	// StartByte and EndByte delimit the chunk's own (non-overlap) span in
	// the source text.
	StartByte int
	EndByte   int

	// TokenCount is the token length of Content.
	TokenCount int
}

// Chunker splits document text into overlapping, semantically coherent
// chunks under a token budget.
//
// Splitting prefers paragraph boundaries, then sentence boundaries, then
// word boundaries; a hard rune-level split happens only for a single word
// exceeding the budget. The same input and parameters always produce the
// same boundaries.
type Chunker struct {
	maxTokens     int
	overlapTokens int
	counter       *TokenCounter
}

// NewChunker creates a chunker from configuration.
func NewChunker(cfg *config.ChunkerConfig) (*Chunker, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunker config: %w", err)
	}

	counter, err := NewTokenCounter(cfg.TokenizerModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	return &Chunker{
		maxTokens:     cfg.MaxTokens,
		overlapTokens: cfg.OverlapTokens,
		counter:       counter,
	}, nil
}

// Chunk splits text into chunks ordered by position in the source.
//
// Empty or whitespace-only text yields no chunks and no error. Text that is
// not valid UTF-8 fails with *ChunkingError.
func (c *Chunker) Chunk(documentID, text string) ([]Chunk, error) {
	if !utf8.ValidString(text) {
		return nil, NewChunkingError(documentID, "text is not valid UTF-8", nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	units, err := c.splitUnits(documentID, text)
	if err != nil {
		return nil, err
	}

	return c.pack(documentID, text, units), nil
}

// MaxTokens returns the configured token budget per chunk.
func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// spanBudget is the token budget for a chunk's own span. Room for the
// overlap prefix is reserved up front, so Content stays within MaxTokens on
// every chunk, not just the first.
func (c *Chunker) spanBudget() int {
	return c.maxTokens - c.overlapTokens
}

// unit is a byte span of the source text that fits the token budget on its
// own. Concatenated units cover the source exactly.
type unit struct {
	text   string
	tokens int
}

// splitUnits produces budget-sized units, preferring paragraph boundaries,
// then sentences, then words.
func (c *Chunker) splitUnits(documentID, text string) ([]unit, error) {
	var units []unit

	for _, para := range splitAfterRuns(text, isParagraphBoundary) {
		tokens := c.counter.Count(para)
		if tokens <= c.spanBudget() {
			units = append(units, unit{text: para, tokens: tokens})
			continue
		}

		for _, sentence := range splitSentences(para) {
			tokens := c.counter.Count(sentence)
			if tokens <= c.spanBudget() {
				units = append(units, unit{text: sentence, tokens: tokens})
				continue
			}

			sub, err := c.splitByWords(documentID, sentence)
			if err != nil {
				return nil, err
			}
			units = append(units, sub...)
		}
	}

	return units, nil
}

// splitByWords groups words into budget-sized units, falling back to a hard
// rune split for a single oversized word.
func (c *Chunker) splitByWords(documentID, text string) ([]unit, error) {
	var units []unit
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			units = append(units, unit{text: current.String(), tokens: currentTokens})
			current.Reset()
			currentTokens = 0
		}
	}

	for _, word := range splitAfterRuns(text, isWordBoundary) {
		tokens := c.counter.Count(word)

		if tokens > c.spanBudget() {
			// Pathological single word over the budget
			flush()
			hard, err := c.splitByRunes(documentID, word)
			if err != nil {
				return nil, err
			}
			units = append(units, hard...)
			continue
		}

		if currentTokens > 0 && currentTokens+tokens > c.spanBudget() {
			flush()
		}
		current.WriteString(word)
		currentTokens += tokens
	}
	flush()

	return units, nil
}

// splitByRunes greedily accumulates runes up to the token budget.
func (c *Chunker) splitByRunes(documentID, text string) ([]unit, error) {
	var units []unit
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if tokens := c.counter.Count(current.String()); tokens >= c.spanBudget() {
			units = append(units, unit{text: current.String(), tokens: tokens})
			current.Reset()
		}
	}
	if current.Len() > 0 {
		units = append(units, unit{text: current.String(), tokens: c.counter.Count(current.String())})
	}

	if len(units) == 0 {
		return nil, NewChunkingError(documentID, "failed to split oversized token run", nil)
	}
	return units, nil
}

// pack groups units into chunks under the token budget and attaches the
// configured overlap to each chunk after the first.
func (c *Chunker) pack(documentID, text string, units []unit) []Chunk {
	var chunks []Chunk

	var chunkUnits []unit
	chunkTokens := 0
	startByte := 0
	cursor := 0

	flush := func(endByte int) {
		if len(chunkUnits) == 0 {
			return
		}

		overlap := ""
		if len(chunks) > 0 && c.overlapTokens > 0 {
			overlap = c.overlapTail(chunks[len(chunks)-1].Content)
		}

		content := overlap + text[startByte:endByte]
		chunks = append(chunks, Chunk{
			ID:               ChunkID(documentID, len(chunks), content),
			DocumentID:       documentID,
			Ordinal:          len(chunks),
			Content:          content,
			OverlapPrefixLen: len(overlap),
			StartByte:        startByte,
			EndByte:          endByte,
			TokenCount:       c.counter.Count(content),
		})

		chunkUnits = nil
		chunkTokens = 0
		startByte = endByte
	}

	// Reserve room for the overlap prefix on every chunk after the first
	budget := c.spanBudget()

	for _, u := range units {
		effectiveBudget := budget
		if len(chunks) == 0 && len(chunkUnits) == 0 {
			effectiveBudget = c.maxTokens
		}
		if len(chunkUnits) > 0 && chunkTokens+u.tokens > effectiveBudget {
			flush(cursor)
		}
		chunkUnits = append(chunkUnits, u)
		chunkTokens += u.tokens
		cursor += len(u.text)
	}
	flush(cursor)

	return chunks
}

// overlapTail returns the trailing words of content whose token count stays
// within the overlap budget.
func (c *Chunker) overlapTail(content string) string {
	words := splitAfterRuns(content, isWordBoundary)

	tail := ""
	tokens := 0
	for i := len(words) - 1; i >= 0; i-- {
		wordTokens := c.counter.Count(words[i])
		if tokens+wordTokens > c.overlapTokens {
			break
		}
		tail = words[i] + tail
		tokens += wordTokens
	}

	return tail
}

// ChunkID derives a stable chunk identifier from document, position and
// content, so identical re-ingestion produces identical IDs.
func ChunkID(documentID string, ordinal int, content string) string {
	prefix := content
	if len(prefix) > 32 {
		prefix = prefix[:32]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", documentID, ordinal, prefix)))
	return hex.EncodeToString(sum[:16])
}

// splitAfterRuns splits text into spans whose concatenation equals text.
// A span ends where boundary reports true for the rune pair across the cut.
func splitAfterRuns(text string, boundary func(prev, next rune) bool) []string {
	if text == "" {
		return nil
	}

	var spans []string
	start := 0
	prev, prevSize := utf8.DecodeRuneInString(text)
	for i := prevSize; i < len(text); {
		next, size := utf8.DecodeRuneInString(text[i:])
		if boundary(prev, next) {
			spans = append(spans, text[start:i])
			start = i
		}
		prev = next
		i += size
	}
	spans = append(spans, text[start:])

	return spans
}

// isParagraphBoundary cuts after a run of newlines.
func isParagraphBoundary(prev, next rune) bool {
	return prev == '\n' && next != '\n'
}

// splitSentences splits text after sentence-ending punctuation followed by
// whitespace, keeping the whitespace with the preceding sentence. Spans
// concatenate back to text.
func splitSentences(text string) []string {
	if text == "" {
		return nil
	}

	var spans []string
	start := 0
	ended := false
	inSpace := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if ended && inSpace && i > start {
			spans = append(spans, text[start:i])
			start = i
		}
		ended = r == '.' || r == '!' || r == '?'
		inSpace = false
	}
	spans = append(spans, text[start:])

	return spans
}

// isWordBoundary cuts after a whitespace run, keeping the whitespace with the
// preceding word.
func isWordBoundary(prev, next rune) bool {
	return unicode.IsSpace(prev) && !unicode.IsSpace(next)
}
