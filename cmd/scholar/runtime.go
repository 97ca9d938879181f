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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kadirpekel/scholar/pkg/agent"
	"github.com/kadirpekel/scholar/pkg/answer"
	"github.com/kadirpekel/scholar/pkg/config"
	"github.com/kadirpekel/scholar/pkg/embedder"
	"github.com/kadirpekel/scholar/pkg/exam"
	"github.com/kadirpekel/scholar/pkg/llm"
	"github.com/kadirpekel/scholar/pkg/logger"
	"github.com/kadirpekel/scholar/pkg/rag"
	"github.com/kadirpekel/scholar/pkg/vector"
)

// runtime wires the full answering pipeline from configuration.
type runtime struct {
	cfg     *config.Config
	library *rag.Library
	manager *agent.Manager
	bank    *exam.Bank

	closers []func() error
}

func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	emb, err := embedder.NewFromConfig(&cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	rt.closers = append(rt.closers, emb.Close)

	store, err := vector.NewFromConfig(&cfg.Vector)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	rt.closers = append(rt.closers, store.Close)

	model, err := llm.NewFromConfig(ctx, &cfg.LLM)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to create llm provider: %w", err)
	}
	rt.closers = append(rt.closers, model.Close)

	chunker, err := rag.NewChunker(&cfg.Chunker)
	if err != nil {
		rt.close()
		return nil, err
	}

	space := embedder.FingerprintFor(&cfg.Embedder)
	rt.library = rag.NewLibrary(chunker, emb, store, cfg.Vector.Collection, space)
	if cfg.Vector.RegistryPath != "" {
		if err := rt.library.Restore(cfg.Vector.RegistryPath); err != nil {
			rt.close()
			return nil, err
		}
	}
	retriever := rag.NewRetriever(rt.library, emb, space, &cfg.Retrieval)

	strategies, err := answer.NewStrategies(&cfg.Answer, model)
	if err != nil {
		rt.close()
		return nil, err
	}

	var questions agent.QuestionSource
	if cfg.Exam.QuestionsFile != "" {
		bank, err := exam.LoadBank(cfg.Exam.QuestionsFile)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.bank = bank
		questions = bank
	}

	rt.manager = agent.NewManager(rt.library, retriever, strategies, questions)

	slog.Info("Runtime ready",
		"embedder", cfg.Embedder.Type,
		"embedding_space", space.String(),
		"llm", cfg.LLM.Type,
		"vector_store", cfg.Vector.Type,
		"strategy", cfg.Answer.Strategy)
	return rt, nil
}

// close releases providers in reverse creation order.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			slog.Warn("Failed to close component", "error", err)
		}
	}
	rt.closers = nil
}

// initLogging configures slog from the global flags. The returned cleanup
// closes the log file, if any.
func initLogging(g Globals) (func(), error) {
	level, err := logger.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if g.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(g.LogFile)
		if err != nil {
			return nil, err
		}
		output = file
		cleanup = closeFile
	}

	logger.Init(level, output, g.LogFormat)
	return cleanup, nil
}
