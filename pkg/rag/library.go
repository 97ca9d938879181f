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

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/scholar/pkg/embedder"
	"github.com/kadirpekel/scholar/pkg/extract"
	"github.com/kadirpekel/scholar/pkg/vector"
)

// DefaultEmbedBatchSize is how many chunks are embedded per provider call.
const DefaultEmbedBatchSize = 64

// Document describes indexed study material.
type Document struct {
	// ID is the document identifier, stable across re-ingestion of the
	// same owner/name pair.
	ID string `json:"id"`

	// OwnerID is the agent that ingested the document. Empty for shared
	// material visible to every agent.
	OwnerID string `json:"owner_id,omitempty"`

	// Name is the display name, typically the source file name.
	Name string `json:"name"`

	// Source is the file path the text came from, or "inline".
	Source string `json:"source,omitempty"`

	ChunkCount int `json:"chunk_count"`
	TokenCount int `json:"token_count"`

	// Checksum of the source text, used to skip unchanged re-ingestion.
	Checksum string `json:"checksum,omitempty"`

	IngestedAt time.Time `json:"ingested_at"`
}

// Library owns the indexed document corpus: it chunks, embeds and upserts
// text into the vector store and tracks document metadata.
//
// Documents become visible only after all their chunks are indexed; a failed
// ingestion leaves no partial document behind.
type Library struct {
	chunker    *Chunker
	embedder   embedder.Embedder
	store      vector.Provider
	collection string

	// fingerprint of the embedding space all indexed vectors live in
	fingerprint embedder.Fingerprint

	retryer    *Retryer
	extractors *extract.Registry

	mu   sync.RWMutex
	docs map[string]*Document

	// registryPath persists docs next to the vector index; empty keeps the
	// registry in memory only.
	registryPath string
}

// NewLibrary creates a library over the given chunker, embedder and store.
func NewLibrary(chunker *Chunker, emb embedder.Embedder, store vector.Provider, collection string, fp embedder.Fingerprint) *Library {
	return &Library{
		chunker:     chunker,
		embedder:    emb,
		store:       store,
		collection:  collection,
		fingerprint: fp,
		retryer:     NewRetryer(DefaultRetryConfig()),
		extractors:  extract.NewRegistry(),
		docs:        make(map[string]*Document),
	}
}

// Fingerprint returns the embedding space the library indexes into.
func (l *Library) Fingerprint() embedder.Fingerprint {
	return l.fingerprint
}

// registryState is the on-disk shape of the document registry. The
// fingerprint records the embedding space the persisted vectors were
// ingested under.
type registryState struct {
	Fingerprint string      `json:"fingerprint"`
	Documents   []*Document `json:"documents"`
}

// Restore attaches a registry file persisted next to the vector index and
// loads the documents recorded in it, so a persistent store survives process
// restarts with its checksums and ownership intact. A registry written under
// a different embedding space fails with *ConfigError instead of silently
// querying vectors from another space. Later mutations are written back to
// the file.
func (l *Library) Restore(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registryPath = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Fresh index: record the embedding space right away
		return l.saveRegistryLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read document registry: %w", err)
	}

	var state registryState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse document registry %s: %w", path, err)
	}
	if state.Fingerprint != l.fingerprint.String() {
		return NewConfigError("library", fmt.Sprintf(
			"index at %s was ingested with embedding space %s but %s is configured; re-ingest or restore the previous embedder",
			path, state.Fingerprint, l.fingerprint))
	}

	for _, doc := range state.Documents {
		l.docs[doc.ID] = doc
	}
	slog.Info("Restored document registry",
		"path", path,
		"documents", len(state.Documents))
	return nil
}

// saveRegistryLocked writes the registry atomically. Callers hold l.mu.
func (l *Library) saveRegistryLocked() error {
	if l.registryPath == "" {
		return nil
	}

	state := registryState{
		Fingerprint: l.fingerprint.String(),
		Documents:   make([]*Document, 0, len(l.docs)),
	}
	for _, doc := range l.docs {
		state.Documents = append(state.Documents, doc)
	}
	sort.Slice(state.Documents, func(i, j int) bool {
		return state.Documents[i].ID < state.Documents[j].ID
	})

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document registry: %w", err)
	}
	tmp := l.registryPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document registry: %w", err)
	}
	return os.Rename(tmp, l.registryPath)
}

// persistRegistryLocked saves the registry after a mutation. The index write
// already succeeded, so a registry write failure is logged rather than
// failing the operation; the registry heals on the next successful save.
func (l *Library) persistRegistryLocked() {
	if err := l.saveRegistryLocked(); err != nil {
		slog.Warn("Failed to persist document registry",
			"path", l.registryPath,
			"error", err)
	}
}

// Ingest chunks, embeds and indexes text as a document owned by ownerID.
// An empty ownerID marks shared material visible to every agent.
//
// Re-ingesting an unchanged owner/name pair is a no-op returning the existing
// document. Changed text replaces the previous version under the same ID.
func (l *Library) Ingest(ctx context.Context, ownerID, name, text string) (*Document, error) {
	return l.ingest(ctx, ownerID, name, "inline", text)
}

// IngestFile extracts text from a file and ingests it.
func (l *Library) IngestFile(ctx context.Context, ownerID, path string) (*Document, error) {
	text, err := l.extractors.ExtractText(ctx, path)
	if err != nil {
		return nil, err
	}
	return l.ingest(ctx, ownerID, filepath.Base(path), path, text)
}

func (l *Library) ingest(ctx context.Context, ownerID, name, source, text string) (*Document, error) {
	checksum := textChecksum(text)

	docID := uuid.NewString()
	if existing := l.findByName(ownerID, name); existing != nil {
		if existing.Checksum == checksum {
			slog.Debug("Document unchanged, skipping ingestion",
				"document", existing.ID,
				"name", name)
			return existing, nil
		}
		// Replace under the same ID so references stay valid
		docID = existing.ID
		if err := l.deleteChunks(ctx, docID); err != nil {
			return nil, err
		}
	}

	chunks, err := l.chunker.Chunk(docID, text)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		ID:         docID,
		OwnerID:    ownerID,
		Name:       name,
		Source:     source,
		ChunkCount: len(chunks),
		Checksum:   checksum,
		IngestedAt: time.Now(),
	}
	for _, ch := range chunks {
		doc.TokenCount += ch.TokenCount
	}

	if len(chunks) == 0 {
		l.register(doc)
		slog.Info("Ingested empty document",
			"document", docID,
			"name", name)
		return doc, nil
	}

	if err := l.index(ctx, doc, chunks); err != nil {
		// Leave no partial document behind
		if cleanupErr := l.deleteChunks(context.WithoutCancel(ctx), docID); cleanupErr != nil {
			slog.Warn("Failed to clean up after failed ingestion",
				"document", docID,
				"error", cleanupErr)
		}
		return nil, err
	}

	l.register(doc)
	slog.Info("Ingested document",
		"document", docID,
		"name", name,
		"owner", ownerID,
		"chunks", len(chunks),
		"tokens", doc.TokenCount)
	return doc, nil
}

// index embeds chunks in batches and upserts them into the store.
func (l *Library) index(ctx context.Context, doc *Document, chunks []Chunk) error {
	for start := 0; start < len(chunks); start += DefaultEmbedBatchSize {
		end := start + DefaultEmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}

		vectors, err := DoWithResult(ctx, l.retryer, "embed chunks", func() ([][]float32, error) {
			return l.embedder.EmbedBatch(ctx, texts)
		})
		if err != nil {
			return NewIndexError(doc.ID, "embed", "embedding batch failed", err)
		}
		if len(vectors) != len(batch) {
			return NewIndexError(doc.ID, "embed",
				fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)), nil)
		}

		for i, ch := range batch {
			if got := len(vectors[i]); got != l.fingerprint.Dimension {
				return NewIndexError(doc.ID, "embed",
					fmt.Sprintf("vector dimension %d does not match embedding space %s",
						got, l.fingerprint), nil)
			}

			metadata := map[string]any{
				"content":            ch.Content,
				"document_id":        ch.DocumentID,
				"owner_id":           doc.OwnerID,
				"ordinal":            ch.Ordinal,
				"overlap_prefix_len": ch.OverlapPrefixLen,
				"token_count":        ch.TokenCount,
			}

			err := l.retryer.Do(ctx, "upsert chunk", func() error {
				return l.store.Upsert(ctx, l.collection, ch.ID, vectors[i], metadata)
			})
			if err != nil {
				return NewIndexError(doc.ID, "upsert",
					fmt.Sprintf("chunk %d", ch.Ordinal), err)
			}
		}
	}

	return nil
}

// Delete removes a document and its chunks. Unknown IDs are a no-op.
func (l *Library) Delete(ctx context.Context, docID string) error {
	l.mu.RLock()
	_, exists := l.docs[docID]
	l.mu.RUnlock()
	if !exists {
		return nil
	}

	if err := l.deleteChunks(ctx, docID); err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.docs, docID)
	l.persistRegistryLocked()
	l.mu.Unlock()

	slog.Info("Deleted document", "document", docID)
	return nil
}

// DeleteOwnedBy removes every document owned by ownerID, used when an agent
// is deleted. Shared material (empty owner) is never touched through here.
func (l *Library) DeleteOwnedBy(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return nil
	}

	if err := l.store.DeleteByFilter(ctx, l.collection, map[string]any{
		"owner_id": ownerID,
	}); err != nil {
		return NewIndexError("", "delete", fmt.Sprintf("owner %s", ownerID), err)
	}

	l.mu.Lock()
	removed := 0
	for id, doc := range l.docs {
		if doc.OwnerID == ownerID {
			delete(l.docs, id)
			removed++
		}
	}
	if removed > 0 {
		l.persistRegistryLocked()
	}
	l.mu.Unlock()

	if removed > 0 {
		slog.Info("Deleted owned documents", "owner", ownerID, "count", removed)
	}
	return nil
}

// Document returns a document by ID.
func (l *Library) Document(docID string) (*Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	doc, ok := l.docs[docID]
	if !ok {
		return nil, false
	}
	copy := *doc
	return &copy, true
}

// Documents returns all documents, shared first, then by name.
func (l *Library) Documents() []*Document {
	l.mu.RLock()
	out := make([]*Document, 0, len(l.docs))
	for _, doc := range l.docs {
		copy := *doc
		out = append(out, &copy)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// VisibleTo returns the IDs of documents an agent may retrieve from: shared
// material plus its own.
func (l *Library) VisibleTo(ownerID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var ids []string
	for id, doc := range l.docs {
		if doc.OwnerID == "" || doc.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (l *Library) register(doc *Document) {
	l.mu.Lock()
	l.docs[doc.ID] = doc
	l.persistRegistryLocked()
	l.mu.Unlock()
}

func (l *Library) findByName(ownerID, name string) *Document {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, doc := range l.docs {
		if doc.OwnerID == ownerID && doc.Name == name {
			copy := *doc
			return &copy
		}
	}
	return nil
}

func (l *Library) deleteChunks(ctx context.Context, docID string) error {
	err := l.store.DeleteByFilter(ctx, l.collection, map[string]any{
		"document_id": docID,
	})
	if err != nil {
		return NewIndexError(docID, "delete", "failed to remove chunks", err)
	}
	return nil
}

func textChecksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
