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

package vector

import (
	"fmt"

	"github.com/kadirpekel/scholar/pkg/config"
)

// ProviderType identifies a vector provider implementation.
type ProviderType string

const (
	// ProviderChromem uses chromem-go for embedded vector storage.
	ProviderChromem ProviderType = "chromem"

	// ProviderQdrant uses a remote Qdrant deployment.
	ProviderQdrant ProviderType = "qdrant"
)

// NewFromConfig creates a vector provider from configuration.
func NewFromConfig(cfg *config.VectorConfig) (Provider, error) {
	switch ProviderType(cfg.Type) {
	case ProviderChromem, "":
		return NewChromemProvider(cfg.Chromem.PersistPath, cfg.Chromem.Compress)

	case ProviderQdrant:
		return NewQdrantProvider(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.APIKey, cfg.Qdrant.UseTLS)

	default:
		return nil, fmt.Errorf("unknown vector provider type: %q", cfg.Type)
	}
}
