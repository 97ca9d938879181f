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
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/kadirpekel/scholar/pkg/config"
	"github.com/kadirpekel/scholar/pkg/embedder"
)

// Hit is a retrieved chunk with its similarity score.
type Hit struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Content    string
	Score      float32
}

// Retriever finds the chunks most similar to a query, restricted to an
// explicit set of documents.
//
// Results are ordered by score descending; ties break by document ID and
// ordinal so identical queries return identical orderings.
type Retriever struct {
	library   *Library
	embedder  embedder.Embedder
	space     embedder.Fingerprint
	topK      int
	threshold float64
	retryer   *Retryer
}

// NewRetriever creates a retriever querying the library's index.
func NewRetriever(lib *Library, emb embedder.Embedder, space embedder.Fingerprint, cfg *config.RetrievalConfig) *Retriever {
	cfg.SetDefaults()

	return &Retriever{
		library:   lib,
		embedder:  emb,
		space:     space,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
		retryer:   NewRetryer(DefaultRetryConfig()),
	}
}

// Retrieve returns up to topK chunks from allowedDocs ranked by similarity
// to the query. An empty allowed set yields no hits and no error.
//
// Querying with an embedder from a different embedding space than the one
// the library indexed with fails with *ConfigError.
func (r *Retriever) Retrieve(ctx context.Context, query string, allowedDocs []string) ([]Hit, error) {
	if len(allowedDocs) == 0 {
		return nil, nil
	}

	if indexed := r.library.Fingerprint(); r.space != indexed {
		return nil, NewConfigError("retriever",
			fmt.Sprintf("query embedding space %s does not match indexed space %s",
				r.space, indexed))
	}

	queryVec, err := DoWithResult(ctx, r.retryer, "embed query", func() ([]float32, error) {
		return r.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var hits []Hit
	for _, docID := range allowedDocs {
		results, err := r.library.store.SearchWithFilter(ctx, r.library.collection,
			queryVec, r.topK, map[string]any{"document_id": docID})
		if err != nil {
			return nil, fmt.Errorf("search failed for document %s: %w", docID, err)
		}

		for _, res := range results {
			hits = append(hits, Hit{
				ChunkID:    res.ID,
				DocumentID: metaString(res.Metadata, "document_id"),
				Ordinal:    metaInt(res.Metadata, "ordinal"),
				Content:    hitContent(res.Content, res.Metadata),
				Score:      res.Score,
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})

	filtered := hits[:0]
	for _, h := range hits {
		if float64(h.Score) >= r.threshold {
			filtered = append(filtered, h)
		}
	}
	hits = filtered

	if len(hits) > r.topK {
		hits = hits[:r.topK]
	}

	slog.Debug("Retrieved chunks",
		"documents", len(allowedDocs),
		"hits", len(hits))
	return hits, nil
}

// TopK returns the configured result limit.
func (r *Retriever) TopK() int {
	return r.topK
}

func hitContent(content string, metadata map[string]any) string {
	if content != "" {
		return content
	}
	return metaString(metadata, "content")
}

func metaString(metadata map[string]any, key string) string {
	if v, ok := metadata[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func metaInt(metadata map[string]any, key string) int {
	switch v := metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
