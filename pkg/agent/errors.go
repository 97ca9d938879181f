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

package agent

import "fmt"

// NotFoundError means an agent or question does not exist.
type NotFoundError struct {
	Kind string // "agent" or "question"
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// StateError means an operation is not allowed in the agent's current state.
type StateError struct {
	AgentID   string
	State     State
	Operation string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("agent %s is %s, cannot %s", e.AgentID, e.State, e.Operation)
}

// NewStateError creates a new StateError.
func NewStateError(agentID string, state State, operation string) *StateError {
	return &StateError{AgentID: agentID, State: state, Operation: operation}
}
