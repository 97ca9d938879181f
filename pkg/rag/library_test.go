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
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestLibrary(t *testing.T) (*Library, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	lib := NewLibrary(newTestChunker(t, 48, 8), &fakeEmbedder{}, store, "chunks", fakeFingerprint())
	return lib, store
}

func TestLibraryIngest(t *testing.T) {
	lib, store := newTestLibrary(t)

	doc, err := lib.Ingest(context.Background(), "agent-1", "notes.txt", lectureText())
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if doc.ChunkCount == 0 {
		t.Fatal("expected chunks to be indexed")
	}
	if store.count() != doc.ChunkCount {
		t.Errorf("store holds %d vectors, document reports %d chunks", store.count(), doc.ChunkCount)
	}
	if doc.OwnerID != "agent-1" {
		t.Errorf("OwnerID = %q", doc.OwnerID)
	}

	got, ok := lib.Document(doc.ID)
	if !ok {
		t.Fatal("document not registered")
	}
	if got.Name != "notes.txt" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestLibraryIngestEmptyDocument(t *testing.T) {
	lib, store := newTestLibrary(t)

	doc, err := lib.Ingest(context.Background(), "", "empty.txt", "   \n\n  ")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if doc.ChunkCount != 0 {
		t.Errorf("ChunkCount = %d, want 0", doc.ChunkCount)
	}
	if store.count() != 0 {
		t.Errorf("store holds %d vectors, want 0", store.count())
	}
	if _, ok := lib.Document(doc.ID); !ok {
		t.Error("empty document should still be registered")
	}
}

func TestLibraryIngestUnchangedIsNoop(t *testing.T) {
	lib, store := newTestLibrary(t)
	ctx := context.Background()

	first, err := lib.Ingest(ctx, "", "notes.txt", lectureText())
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	before := store.count()

	second, err := lib.Ingest(ctx, "", "notes.txt", lectureText())
	if err != nil {
		t.Fatalf("re-Ingest failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("re-ingestion changed document ID: %s vs %s", second.ID, first.ID)
	}
	if store.count() != before {
		t.Errorf("store grew from %d to %d on unchanged re-ingestion", before, store.count())
	}
}

func TestLibraryIngestChangedReplaces(t *testing.T) {
	lib, store := newTestLibrary(t)
	ctx := context.Background()

	first, err := lib.Ingest(ctx, "", "notes.txt", "Original content about enzymes.")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	second, err := lib.Ingest(ctx, "", "notes.txt", "Revised content about enzyme kinetics.")
	if err != nil {
		t.Fatalf("re-Ingest failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("replacement changed document ID")
	}
	if store.count() != second.ChunkCount {
		t.Errorf("store holds %d vectors, want %d", store.count(), second.ChunkCount)
	}
}

func TestLibraryIngestFailureLeavesNoPartialDocument(t *testing.T) {
	store := newFakeStore()
	store.failAt = 1
	lib := NewLibrary(newTestChunker(t, 48, 8), &fakeEmbedder{}, store, "chunks", fakeFingerprint())

	_, err := lib.Ingest(context.Background(), "", "notes.txt", lectureText())
	if err == nil {
		t.Fatal("expected ingestion to fail")
	}

	var idxErr *IndexError
	if !errors.As(err, &idxErr) {
		t.Fatalf("expected *IndexError, got %T", err)
	}
	if len(lib.Documents()) != 0 {
		t.Error("failed ingestion registered a document")
	}
	if store.count() != 0 {
		t.Errorf("store holds %d orphan vectors", store.count())
	}
}

func TestLibraryIngestFile(t *testing.T) {
	lib, _ := newTestLibrary(t)

	path := filepath.Join(t.TempDir(), "lecture.md")
	if err := os.WriteFile(path, []byte("# Week 3\n\nThe Krebs cycle oxidizes acetyl-CoA."), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := lib.IngestFile(context.Background(), "", path)
	if err != nil {
		t.Fatalf("IngestFile failed: %v", err)
	}
	if doc.Name != "lecture.md" {
		t.Errorf("Name = %q", doc.Name)
	}
	if doc.Source != path {
		t.Errorf("Source = %q, want %q", doc.Source, path)
	}
}

func TestLibraryDelete(t *testing.T) {
	lib, store := newTestLibrary(t)
	ctx := context.Background()

	doc, err := lib.Ingest(ctx, "", "notes.txt", lectureText())
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if err := lib.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.count() != 0 {
		t.Errorf("store holds %d vectors after delete", store.count())
	}
	if _, ok := lib.Document(doc.ID); ok {
		t.Error("document still registered after delete")
	}

	// Deleting again is a no-op
	if err := lib.Delete(ctx, doc.ID); err != nil {
		t.Errorf("second Delete returned error: %v", err)
	}
}

func TestLibraryDeleteOwnedBy(t *testing.T) {
	lib, store := newTestLibrary(t)
	ctx := context.Background()

	shared, err := lib.Ingest(ctx, "", "shared.txt", "Shared course material on glycolysis.")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Ingest(ctx, "agent-1", "own.txt", "Private notes on glycolysis."); err != nil {
		t.Fatal(err)
	}

	if err := lib.DeleteOwnedBy(ctx, "agent-1"); err != nil {
		t.Fatalf("DeleteOwnedBy failed: %v", err)
	}

	if _, ok := lib.Document(shared.ID); !ok {
		t.Error("shared document was removed by owner cascade")
	}
	if store.count() != shared.ChunkCount {
		t.Errorf("store holds %d vectors, want shared only (%d)", store.count(), shared.ChunkCount)
	}
}

func TestLibraryRestoreAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	path := filepath.Join(t.TempDir(), "chunks.registry.json")

	first := NewLibrary(newTestChunker(t, 48, 8), &fakeEmbedder{}, store, "chunks", fakeFingerprint())
	if err := first.Restore(path); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	doc, err := first.Ingest(ctx, "agent-1", "notes.txt", lectureText())
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	before := store.count()

	// A fresh library over the same store and registry sees the documents
	second := NewLibrary(newTestChunker(t, 48, 8), &fakeEmbedder{}, store, "chunks", fakeFingerprint())
	if err := second.Restore(path); err != nil {
		t.Fatalf("Restore after restart failed: %v", err)
	}

	got, ok := second.Document(doc.ID)
	if !ok {
		t.Fatal("restored registry lost the document")
	}
	if got.Checksum != doc.Checksum {
		t.Errorf("Checksum = %q, want %q", got.Checksum, doc.Checksum)
	}
	if visible := second.VisibleTo("agent-1"); len(visible) != 1 {
		t.Fatalf("VisibleTo returned %d docs, want 1", len(visible))
	}

	// Re-ingesting the unchanged file stays a no-op, not a duplicate
	again, err := second.Ingest(ctx, "agent-1", "notes.txt", lectureText())
	if err != nil {
		t.Fatalf("re-Ingest failed: %v", err)
	}
	if again.ID != doc.ID {
		t.Errorf("re-ingestion after restart minted a new ID: %s vs %s", again.ID, doc.ID)
	}
	if store.count() != before {
		t.Errorf("store grew from %d to %d on unchanged re-ingestion", before, store.count())
	}
}

func TestLibraryRestoreRejectsChangedEmbeddingSpace(t *testing.T) {
	store := newFakeStore()
	path := filepath.Join(t.TempDir(), "chunks.registry.json")

	first := NewLibrary(newTestChunker(t, 48, 8), &fakeEmbedder{}, store, "chunks", fakeFingerprint())
	if err := first.Restore(path); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if _, err := first.Ingest(context.Background(), "", "notes.txt", lectureText()); err != nil {
		t.Fatal(err)
	}

	changed := fakeFingerprint()
	changed.Model = "fake-model-v2"
	second := NewLibrary(newTestChunker(t, 48, 8), &fakeEmbedder{}, store, "chunks", changed)

	err := second.Restore(path)
	if err == nil {
		t.Fatal("expected an error for a changed embedding space")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
}

func TestLibraryVisibleTo(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	shared, _ := lib.Ingest(ctx, "", "shared.txt", "Shared material.")
	mine, _ := lib.Ingest(ctx, "agent-1", "mine.txt", "My notes.")
	if _, err := lib.Ingest(ctx, "agent-2", "theirs.txt", "Someone else's notes."); err != nil {
		t.Fatal(err)
	}

	visible := lib.VisibleTo("agent-1")
	if len(visible) != 2 {
		t.Fatalf("VisibleTo returned %d docs, want 2", len(visible))
	}
	seen := map[string]bool{}
	for _, id := range visible {
		seen[id] = true
	}
	if !seen[shared.ID] || !seen[mine.ID] {
		t.Error("visible set missing shared or own document")
	}
}
