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

// Command scholar runs the student knowledge agent: an HTTP API, a shared
// study library and an exam runner over retrieval-augmented answering.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/scholar/pkg/agent"
	"github.com/kadirpekel/scholar/pkg/answer"
	"github.com/kadirpekel/scholar/pkg/config"
	"github.com/kadirpekel/scholar/pkg/exam"
	"github.com/kadirpekel/scholar/pkg/rag"
	"github.com/kadirpekel/scholar/pkg/server"
)

// version is set at build time via -ldflags.
var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config    string `help:"Path to the YAML config file." short:"c" type:"path"`
	LogLevel  string `help:"Log level: debug, info, warn, error." default:"info"`
	LogFile   string `help:"Write logs to this file instead of stderr." type:"path"`
	LogFormat string `help:"Log format: simple, verbose." default:"simple"`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" help:"Start the HTTP API server."`
	Ingest  IngestCmd  `cmd:"" help:"Ingest files or directories into the shared study library."`
	Exam    ExamCmd    `cmd:"" help:"Answer a question bank with one or more agents and log scored results."`
	Version VersionCmd `cmd:"" help:"Print the version."`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("scholar"),
		kong.Description("Student knowledge agent with retrieval-augmented answering."),
		kong.UsageOnError(),
	)

	cleanup, err := initLogging(cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Println("scholar", version)
	return nil
}

// ServeCmd starts the HTTP API server.
type ServeCmd struct{}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(g.Config)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	if len(cfg.Study.Dirs) > 0 {
		if cfg.Study.Watch {
			watcher, err := rag.NewWatcher(rt.library, cfg.Study.Dirs)
			if err != nil {
				return fmt.Errorf("failed to create study watcher: %w", err)
			}
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("failed to start study watcher: %w", err)
			}
			defer watcher.Stop()
		} else {
			for _, dir := range cfg.Study.Dirs {
				if err := ingestPath(ctx, rt.library, dir); err != nil {
					return err
				}
			}
		}
	}

	srv := server.New(&cfg.Server, rt.manager, rt.library)
	return srv.Start(ctx)
}

// IngestCmd ingests files into the shared study library and persists the
// index.
type IngestCmd struct {
	Paths []string `arg:"" help:"Files or directories to ingest." type:"path"`
}

func (c *IngestCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(g.Config)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	for _, path := range c.Paths {
		if err := ingestPath(ctx, rt.library, path); err != nil {
			return err
		}
	}

	docs := rt.library.Documents()
	fmt.Printf("ingested %d document(s)\n", len(docs))
	return nil
}

// ExamCmd answers a question bank with fresh agents and logs scored rows.
type ExamCmd struct {
	Students   []string `help:"Student agent names to examine." default:"student"`
	Questions  string   `help:"Question bank file, overriding the config." type:"path"`
	Results    string   `help:"Results CSV file, overriding the config." type:"path"`
	Strategy   string   `help:"Answer strategy for the exam: grounded or parametric. Defaults to the configured one."`
	Sequential bool     `help:"Answer questions in order instead of concurrently."`
}

func (c *ExamCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(g.Config)
	if err != nil {
		return err
	}
	if c.Questions != "" {
		cfg.Exam.QuestionsFile = c.Questions
	}
	if c.Results != "" {
		cfg.Exam.ResultsFile = c.Results
	}
	if cfg.Exam.QuestionsFile == "" {
		return fmt.Errorf("no question bank configured (set exam.questions_file or --questions)")
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.bank == nil {
		return fmt.Errorf("question bank failed to load")
	}

	for _, dir := range cfg.Study.Dirs {
		if err := ingestPath(ctx, rt.library, dir); err != nil {
			return err
		}
	}

	var strategy answer.Kind
	if c.Strategy != "" {
		strategy, err = answer.ParseKind(c.Strategy)
		if err != nil {
			return err
		}
	}

	agentIDs := make([]string, len(c.Students))
	for i, name := range c.Students {
		a, err := rt.manager.CreateAgent(name, strategy)
		if err != nil {
			return err
		}
		agentIDs[i] = a.ID
	}

	runner := exam.NewRunner(rt.manager, rt.bank, exam.NewResultWriter(cfg.Exam.ResultsFile))
	summary, err := runner.Run(ctx, agentIDs, agent.BatchOptions{Sequential: c.Sequential})
	if err != nil {
		return err
	}

	fmt.Printf("%d/%d correct (%.0f%% of answered), %d failed, results in %s\n",
		summary.Correct, summary.Total, summary.Accuracy()*100,
		summary.Failed, cfg.Exam.ResultsFile)
	return nil
}

// loadConfig reads the config file, or builds defaults when none is given.
// Env files load first so ${VAR} references in the config resolve.
func loadConfig(path string) (*config.Config, error) {
	config.LoadEnvFiles()

	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// ingestPath ingests a file, or every supported file under a directory.
func ingestPath(ctx context.Context, library *rag.Library, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		_, err := library.IngestFile(ctx, "", path)
		return err
	}

	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		// Unsupported files inside a directory are skipped, not fatal
		if _, err := library.IngestFile(ctx, "", p); err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", p, err)
		}
		return nil
	})
}
