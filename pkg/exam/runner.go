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

package exam

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/scholar/pkg/agent"
)

// Answerer is the slice of the agent manager the runner needs. Satisfied by
// *agent.Manager.
type Answerer interface {
	GetAgent(id string) (*agent.Agent, error)
	AnswerQuestions(ctx context.Context, agentID string, questionIDs []string, opts agent.BatchOptions) ([]agent.QuestionResult, error)
}

// Summary aggregates one exam run.
type Summary struct {
	Agents  int `json:"agents"`
	Total   int `json:"total"`
	Correct int `json:"correct"`
	Failed  int `json:"failed"`
}

// Accuracy is the share of non-failed answers that were correct.
func (s Summary) Accuracy() float64 {
	answered := s.Total - s.Failed
	if answered == 0 {
		return 0
	}
	return float64(s.Correct) / float64(answered)
}

// Runner answers a question bank with one or more agents and logs scored
// rows to the results file.
type Runner struct {
	manager Answerer
	bank    *Bank
	writer  *ResultWriter
}

// NewRunner creates a runner.
func NewRunner(manager Answerer, bank *Bank, writer *ResultWriter) *Runner {
	return &Runner{manager: manager, bank: bank, writer: writer}
}

// Run answers every bank question with every agent. Per-question failures
// are scored as incorrect and logged; only infrastructure errors abort.
func (r *Runner) Run(ctx context.Context, agentIDs []string, opts agent.BatchOptions) (*Summary, error) {
	summary := &Summary{Agents: len(agentIDs)}
	ids := r.bank.IDs()

	for _, agentID := range agentIDs {
		a, err := r.manager.GetAgent(agentID)
		if err != nil {
			return nil, err
		}

		results, err := r.manager.AnswerQuestions(ctx, agentID, ids, opts)
		if err != nil {
			return nil, fmt.Errorf("exam failed for agent %s: %w", agentID, err)
		}

		rows := make([]Result, 0, len(results))
		for _, res := range results {
			q, _ := r.bank.Question(res.QuestionID)
			row := Result{
				Student:    a.Name,
				QuestionID: res.QuestionID,
				Question:   q.Stem,
			}

			summary.Total++
			if res.Message != nil {
				row.Strategy = res.Message.Strategy
				row.Answer = res.Message.OptionLabel
				row.Justification = res.Message.Justification
				row.Confidence = res.Message.Confidence
				row.Comment = res.Message.Comment

				if res.Message.Failed {
					summary.Failed++
					row.Comment = res.Message.Error
				} else if res.Message.OptionLabel == q.Correct {
					row.Correct = true
					summary.Correct++
				}
			} else {
				summary.Failed++
			}

			rows = append(rows, row)
		}

		if err := r.writer.Append(rows); err != nil {
			return nil, err
		}

		slog.Info("Agent finished exam",
			"agent", agentID,
			"student", a.Name,
			"questions", len(results))
	}

	slog.Info("Exam complete",
		"agents", summary.Agents,
		"total", summary.Total,
		"correct", summary.Correct,
		"failed", summary.Failed,
		"accuracy", fmt.Sprintf("%.2f", summary.Accuracy()))
	return summary, nil
}
