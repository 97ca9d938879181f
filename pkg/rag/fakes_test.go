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
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kadirpekel/scholar/pkg/embedder"
	"github.com/kadirpekel/scholar/pkg/vector"
)

const fakeDimension = 8

// fakeEmbedder derives deterministic unit vectors from a text hash.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	f.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, fakeDimension)
	var norm float64
	for i := range vec {
		vec[i] = float32(sum[i]) + 1
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return fakeDimension }
func (f *fakeEmbedder) Model() string  { return "fake-model" }
func (f *fakeEmbedder) Close() error   { return nil }

var _ embedder.Embedder = (*fakeEmbedder)(nil)

func fakeFingerprint() embedder.Fingerprint {
	return embedder.Fingerprint{Provider: "fake", Model: "fake-model", Dimension: fakeDimension}
}

// fakeStore is an in-memory vector.Provider with cosine search.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]fakeRecord
	upserts int
	failAt  int // fail the Nth upsert (1-based), 0 disables
}

type fakeRecord struct {
	vector   []float32
	metadata map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]fakeRecord)}
}

func (s *fakeStore) Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upserts++
	if s.failAt > 0 && s.upserts == s.failAt {
		return fmt.Errorf("simulated storage failure")
	}

	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	s.records[id] = fakeRecord{vector: append([]float32(nil), vec...), metadata: md}
	return nil
}

func (s *fakeStore) Search(ctx context.Context, collection string, vec []float32, topK int) ([]vector.Result, error) {
	return s.SearchWithFilter(ctx, collection, vec, topK, nil)
}

func (s *fakeStore) SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]vector.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []vector.Result
	for id, rec := range s.records {
		if !matches(rec.metadata, filter) {
			continue
		}
		results = append(results, vector.Result{
			ID:       id,
			Score:    cosine(vec, rec.vector),
			Content:  fmt.Sprint(rec.metadata["content"]),
			Metadata: rec.metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *fakeStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *fakeStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if matches(rec.metadata, filter) {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *fakeStore) CreateCollection(ctx context.Context, collection string, dim int) error { return nil }
func (s *fakeStore) DeleteCollection(ctx context.Context, collection string) error          { return nil }
func (s *fakeStore) Name() string                                                           { return "fake" }
func (s *fakeStore) Close() error                                                           { return nil }

var _ vector.Provider = (*fakeStore)(nil)

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func matches(metadata, filter map[string]any) bool {
	for k, v := range filter {
		if fmt.Sprint(metadata[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
