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

package llm

import (
	"context"
	"fmt"

	"github.com/kadirpekel/scholar/pkg/config"
)

// NewFromConfig creates an LLM provider from configuration.
func NewFromConfig(ctx context.Context, cfg *config.LLMConfig) (Provider, error) {
	switch cfg.Type {
	case "ollama", "":
		return NewOllamaProvider(cfg)

	case "openai":
		return NewOpenAIProvider(cfg)

	case "gemini":
		return NewGeminiProvider(ctx, cfg)

	default:
		return nil, fmt.Errorf("unknown llm type: %q", cfg.Type)
	}
}
