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

// Package config defines the YAML configuration surface of scholar.
//
// Every section carries SetDefaults and Validate so that a zero config file
// still produces a runnable (embedded, local-model) setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Embedder  EmbedderConfig  `yaml:"embedder,omitempty"`
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	Vector    VectorConfig    `yaml:"vector,omitempty"`
	Chunker   ChunkerConfig   `yaml:"chunker,omitempty"`
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty"`
	Answer    AnswerConfig    `yaml:"answer,omitempty"`
	Study     StudyConfig     `yaml:"study,omitempty"`
	Exam      ExamConfig      `yaml:"exam,omitempty"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Type is the provider: "ollama" or "openai".
	Type string `yaml:"type,omitempty"`

	Model  string `yaml:"model,omitempty"`
	Host   string `yaml:"host,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`

	// Dimension of the embedding vectors produced by Model.
	Dimension int `yaml:"dimension,omitempty"`

	// Timeout per request in seconds.
	Timeout    int `yaml:"timeout,omitempty"`
	MaxRetries int `yaml:"max_retries,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "ollama"
	}
	if c.Model == "" {
		switch c.Type {
		case "openai":
			c.Model = "text-embedding-3-small"
		default:
			c.Model = "nomic-embed-text"
		}
	}
	if c.Host == "" && c.Type == "ollama" {
		c.Host = "http://localhost:11434"
	}
	if c.Dimension == 0 {
		switch c.Type {
		case "openai":
			c.Dimension = 1536
		default:
			c.Dimension = 768
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.APIKey == "" {
		c.APIKey = ProviderAPIKey(c.Type)
	}
}

func (c *EmbedderConfig) Validate() error {
	switch c.Type {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown embedder type: %q", c.Type)
	}
	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("embedder type %q requires api_key (or OPENAI_API_KEY)", c.Type)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("embedder dimension must be positive, got %d", c.Dimension)
	}
	return nil
}

// LLMConfig configures the language model provider.
type LLMConfig struct {
	// Type is the provider: "ollama", "openai" or "gemini".
	Type string `yaml:"type,omitempty"`

	Model  string `yaml:"model,omitempty"`
	Host   string `yaml:"host,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`

	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`

	// Timeout per request in seconds.
	Timeout    int `yaml:"timeout,omitempty"`
	MaxRetries int `yaml:"max_retries,omitempty"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "ollama"
	}
	if c.Model == "" {
		switch c.Type {
		case "openai":
			c.Model = "gpt-4o-mini"
		case "gemini":
			c.Model = "gemini-2.0-flash"
		default:
			c.Model = "llama3.2"
		}
	}
	if c.Host == "" && c.Type == "ollama" {
		c.Host = "http://localhost:11434"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.APIKey == "" {
		c.APIKey = ProviderAPIKey(c.Type)
	}
}

func (c *LLMConfig) Validate() error {
	switch c.Type {
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unknown llm type: %q", c.Type)
	}
	if (c.Type == "openai" || c.Type == "gemini") && c.APIKey == "" {
		return fmt.Errorf("llm type %q requires api_key", c.Type)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0,2], got %v", c.Temperature)
	}
	return nil
}

// VectorConfig configures the vector store.
type VectorConfig struct {
	// Type is the provider: "chromem" (embedded, default) or "qdrant".
	Type string `yaml:"type,omitempty"`

	Chromem ChromemConfig `yaml:"chromem,omitempty"`
	Qdrant  QdrantConfig  `yaml:"qdrant,omitempty"`

	// Collection name for chunk vectors.
	Collection string `yaml:"collection,omitempty"`

	// RegistryPath persists the document registry (ownership, checksums and
	// the embedding-space fingerprint) next to the vectors, so a persistent
	// store stays consistent across restarts. Defaults into the chromem
	// persist directory when that is set.
	RegistryPath string `yaml:"registry_path,omitempty"`
}

// ChromemConfig configures the embedded chromem store.
type ChromemConfig struct {
	// PersistPath for file persistence. Empty keeps vectors in memory only.
	PersistPath string `yaml:"persist_path,omitempty"`
	Compress    bool   `yaml:"compress,omitempty"`
}

// QdrantConfig configures a remote Qdrant deployment.
type QdrantConfig struct {
	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

func (c *VectorConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Collection == "" {
		c.Collection = "study_chunks"
	}
	if c.Type == "qdrant" {
		if c.Qdrant.Host == "" {
			c.Qdrant.Host = "localhost"
		}
		if c.Qdrant.Port == 0 {
			c.Qdrant.Port = 6334
		}
	}
	if c.RegistryPath == "" && c.Type == "chromem" && c.Chromem.PersistPath != "" {
		c.RegistryPath = filepath.Join(c.Chromem.PersistPath, c.Collection+".registry.json")
	}
}

func (c *VectorConfig) Validate() error {
	switch c.Type {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vector store type: %q", c.Type)
	}
	return nil
}

// ChunkerConfig configures document chunking.
type ChunkerConfig struct {
	// MaxTokens is the token budget per chunk.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// OverlapTokens of trailing context carried into the next chunk.
	OverlapTokens int `yaml:"overlap_tokens,omitempty"`

	// TokenizerModel selects the tiktoken encoding (cl100k_base fallback).
	TokenizerModel string `yaml:"tokenizer_model,omitempty"`
}

func (c *ChunkerConfig) SetDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 256
	}
	if c.OverlapTokens == 0 {
		c.OverlapTokens = 32
	}
	if c.TokenizerModel == "" {
		c.TokenizerModel = "gpt-4"
	}
}

func (c *ChunkerConfig) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.OverlapTokens < 0 {
		return fmt.Errorf("overlap_tokens must be non-negative, got %d", c.OverlapTokens)
	}
	if c.OverlapTokens >= c.MaxTokens {
		return fmt.Errorf("overlap_tokens (%d) must be less than max_tokens (%d)",
			c.OverlapTokens, c.MaxTokens)
	}
	return nil
}

// RetrievalConfig configures chunk retrieval.
type RetrievalConfig struct {
	// TopK chunks returned per query.
	TopK int `yaml:"top_k,omitempty"`

	// Threshold is the minimum similarity; results below it are dropped.
	Threshold float64 `yaml:"threshold,omitempty"`
}

func (c *RetrievalConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
}

func (c *RetrievalConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v", c.Threshold)
	}
	return nil
}

// AnswerConfig configures answer generation.
type AnswerConfig struct {
	// Strategy is the default per-agent strategy: "grounded" or "parametric".
	Strategy string `yaml:"strategy,omitempty"`

	// EmptyContextFallback decides what the grounded strategy does when
	// retrieval returns nothing: "refuse" (default) or "parametric".
	EmptyContextFallback string `yaml:"empty_context_fallback,omitempty"`

	// Samples drawn per question to measure answer agreement.
	Samples int `yaml:"samples,omitempty"`

	// Critique asks the model for a short self-critique after answering.
	Critique bool `yaml:"critique,omitempty"`
}

func (c *AnswerConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = "grounded"
	}
	if c.EmptyContextFallback == "" {
		c.EmptyContextFallback = "refuse"
	}
	if c.Samples == 0 {
		c.Samples = 3
	}
}

func (c *AnswerConfig) Validate() error {
	switch c.Strategy {
	case "grounded", "parametric":
	default:
		return fmt.Errorf("unknown answer strategy: %q", c.Strategy)
	}
	switch c.EmptyContextFallback {
	case "refuse", "parametric":
	default:
		return fmt.Errorf("unknown empty_context_fallback: %q (want refuse or parametric)",
			c.EmptyContextFallback)
	}
	if c.Samples < 1 {
		return fmt.Errorf("samples must be at least 1, got %d", c.Samples)
	}
	return nil
}

// StudyConfig configures shared study material.
type StudyConfig struct {
	// Dirs are folders whose files are ingested into the shared library.
	Dirs []string `yaml:"dirs,omitempty"`

	// Watch re-ingests files when they change on disk.
	Watch bool `yaml:"watch,omitempty"`
}

func (c *StudyConfig) SetDefaults() {}

func (c *StudyConfig) Validate() error { return nil }

// ExamConfig configures the exam runner.
type ExamConfig struct {
	// QuestionsFile is a YAML or JSON question bank.
	QuestionsFile string `yaml:"questions_file,omitempty"`

	// ResultsFile is the CSV results log (appended).
	ResultsFile string `yaml:"results_file,omitempty"`
}

func (c *ExamConfig) SetDefaults() {
	if c.ResultsFile == "" {
		c.ResultsFile = "results.csv"
	}
}

func (c *ExamConfig) Validate() error { return nil }

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Embedder.SetDefaults()
	c.LLM.SetDefaults()
	c.Vector.SetDefaults()
	c.Chunker.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Answer.SetDefaults()
	c.Study.SetDefaults()
	c.Exam.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.Server, &c.Embedder, &c.LLM, &c.Vector,
		&c.Chunker, &c.Retrieval, &c.Answer, &c.Study, &c.Exam,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads a YAML config file, expands environment references in string
// values, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	expanded, err := yaml.Marshal(ExpandEnvVarsInData(normalizeKeys(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// normalizeKeys converts map[interface{}]interface{} nodes (yaml.v3 emits
// map[string]interface{}, but nested custom tags may not) to string-keyed maps
// so ExpandEnvVarsInData can walk them.
func normalizeKeys(data interface{}) interface{} {
	switch v := data.(type) {
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[fmt.Sprint(key)] = normalizeKeys(value)
		}
		return result
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = normalizeKeys(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = normalizeKeys(item)
		}
		return result
	default:
		return v
	}
}
