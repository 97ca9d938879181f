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

// Package agent manages student agents: their lifecycle, studied documents
// and answer history.
package agent

import (
	"time"

	"github.com/kadirpekel/scholar/pkg/answer"
)

// State is an agent's lifecycle state.
type State string

const (
	// StateCreated is the initial state, before any studying.
	StateCreated State = "created"

	// StateStudying means documents are being chunked and indexed.
	StateStudying State = "studying"

	// StateReady means the agent can answer questions.
	StateReady State = "ready"

	// StateAnswering means one or more answers are in flight. Re-entrant:
	// concurrent answer operations share this state.
	StateAnswering State = "answering"

	// StateDeleted is terminal. Owned documents, chunks and messages are
	// removed when it is entered.
	StateDeleted State = "deleted"
)

// Agent is one student with its own studied material and answer history.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`

	// Strategy is this agent's answering strategy; empty uses the
	// configured default. Individual requests may override it.
	Strategy answer.Kind `json:"strategy,omitempty"`

	// DocumentIDs the agent has studied (its own, not shared material).
	DocumentIDs []string `json:"document_ids,omitempty"`

	// Messages is the append-only answer history, ordered by completion.
	Messages []Message `json:"messages,omitempty"`
}

// Message is one persisted question/answer interaction. Append-only; never
// mutated after creation.
type Message struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`

	// Query is the question stem as asked.
	Query string `json:"query"`

	// OptionLabel is the chosen option; empty for failed answers.
	OptionLabel   string  `json:"option_label,omitempty"`
	Justification string  `json:"justification,omitempty"`
	Confidence    float64 `json:"confidence"`

	// Strategy that produced the answer, which may differ from the
	// configured one after an empty-context fallback.
	Strategy string `json:"strategy"`

	// Comment is an optional self-critique.
	Comment string `json:"comment,omitempty"`

	// RetrievedChunks are the chunk IDs supplied as context.
	RetrievedChunks []string `json:"retrieved_chunks,omitempty"`

	// Failed marks a question whose answering errored; Error carries the
	// reason. Failed entries still count as history.
	Failed bool   `json:"failed,omitempty"`
	Error  string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
