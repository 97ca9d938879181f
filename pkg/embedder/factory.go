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

package embedder

import (
	"fmt"

	"github.com/kadirpekel/scholar/pkg/config"
)

// NewFromConfig creates an embedder from configuration.
func NewFromConfig(cfg *config.EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "ollama", "":
		return NewOllamaEmbedder(cfg)

	case "openai":
		return NewOpenAIEmbedder(cfg)

	default:
		return nil, fmt.Errorf("unknown embedder type: %q", cfg.Type)
	}
}

// FingerprintFor returns the embedding-space fingerprint of a configuration.
func FingerprintFor(cfg *config.EmbedderConfig) Fingerprint {
	return Fingerprint{
		Provider:  cfg.Type,
		Model:     cfg.Model,
		Dimension: cfg.Dimension,
	}
}
