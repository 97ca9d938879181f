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
	"testing"

	"github.com/kadirpekel/scholar/pkg/config"
	"github.com/kadirpekel/scholar/pkg/embedder"
)

func newTestRetriever(t *testing.T, lib *Library, topK int) *Retriever {
	t.Helper()
	return NewRetriever(lib, &fakeEmbedder{}, fakeFingerprint(), &config.RetrievalConfig{TopK: topK})
}

func TestRetrieveEmptyAllowedSet(t *testing.T) {
	lib, _ := newTestLibrary(t)
	r := newTestRetriever(t, lib, 5)

	hits, err := r.Retrieve(context.Background(), "what is osmosis", nil)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits, want 0", len(hits))
	}
}

func TestRetrieveScopedToAllowedDocs(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	allowed, err := lib.Ingest(ctx, "", "allowed.txt", "Osmosis moves water across membranes.")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Ingest(ctx, "", "other.txt", "Osmosis moves water across membranes."); err != nil {
		t.Fatal(err)
	}

	r := newTestRetriever(t, lib, 10)
	hits, err := r.Retrieve(ctx, "osmosis", []string{allowed.ID})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits from the allowed document")
	}
	for _, h := range hits {
		if h.DocumentID != allowed.ID {
			t.Errorf("hit from document %s outside allowed set", h.DocumentID)
		}
	}
}

func TestRetrieveOrderingAndTopK(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	doc, err := lib.Ingest(ctx, "", "notes.txt", lectureText())
	if err != nil {
		t.Fatal(err)
	}

	r := newTestRetriever(t, lib, 3)
	hits, err := r.Retrieve(ctx, "oxidative phosphorylation", []string{doc.ID})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(hits) > 3 {
		t.Errorf("got %d hits, want at most topK=3", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not sorted by score: %v then %v", hits[i-1].Score, hits[i].Score)
		}
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	doc, err := lib.Ingest(ctx, "", "notes.txt", lectureText())
	if err != nil {
		t.Fatal(err)
	}

	r := newTestRetriever(t, lib, 5)
	first, err := r.Retrieve(ctx, "cristae surface area", []string{doc.ID})
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Retrieve(ctx, "cristae surface area", []string{doc.ID})
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("hit %d differs between identical queries", i)
		}
	}
}

func TestRetrieveThreshold(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	doc, err := lib.Ingest(ctx, "", "notes.txt", lectureText())
	if err != nil {
		t.Fatal(err)
	}

	r := NewRetriever(lib, &fakeEmbedder{}, fakeFingerprint(),
		&config.RetrievalConfig{TopK: 10, Threshold: 0.999999})
	hits, err := r.Retrieve(ctx, "completely unrelated query text", []string{doc.ID})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	for _, h := range hits {
		if float64(h.Score) < 0.999999 {
			t.Errorf("hit below threshold survived: %v", h.Score)
		}
	}
}

func TestRetrieveFingerprintMismatch(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	doc, err := lib.Ingest(ctx, "", "notes.txt", "Some study material.")
	if err != nil {
		t.Fatal(err)
	}

	wrongSpace := embedder.Fingerprint{Provider: "fake", Model: "other-model", Dimension: fakeDimension}
	r := NewRetriever(lib, &fakeEmbedder{}, wrongSpace, &config.RetrievalConfig{TopK: 5})

	_, err = r.Retrieve(ctx, "anything", []string{doc.ID})
	if err == nil {
		t.Fatal("expected embedding space mismatch error")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
}

func TestRetrieveHitContent(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	text := "Enzymes lower activation energy."
	doc, err := lib.Ingest(ctx, "", "notes.txt", text)
	if err != nil {
		t.Fatal(err)
	}

	r := newTestRetriever(t, lib, 5)
	hits, err := r.Retrieve(ctx, "activation energy", []string{doc.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Content != text {
		t.Errorf("Content = %q, want source text", hits[0].Content)
	}
	if hits[0].Ordinal != 0 {
		t.Errorf("Ordinal = %d, want 0", hits[0].Ordinal)
	}
}
