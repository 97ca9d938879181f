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

import (
	"sort"
	"sync"
)

// Store holds agents in memory.
//
// Each agent carries its own mutex entry so history appends serialize per
// agent without a global write lock across unrelated agents.
type Store struct {
	mu     sync.RWMutex
	agents map[string]*Agent

	// locks serializes mutations per agent (single-writer discipline for
	// the message history)
	locks map[string]*sync.Mutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		agents: make(map[string]*Agent),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Put registers an agent.
func (s *Store) Put(a *Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents[a.ID] = a
	if _, ok := s.locks[a.ID]; !ok {
		s.locks[a.ID] = &sync.Mutex{}
	}
}

// Get returns a snapshot copy of an agent.
func (s *Store) Get(id string) (*Agent, bool) {
	s.mu.RLock()
	a, ok := s.agents[id]
	lock := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	lock.Lock()
	defer lock.Unlock()
	return snapshot(a), true
}

// List returns snapshot copies of all agents, sorted by creation time then ID.
func (s *Store) List() []*Agent {
	s.mu.RLock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]*Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.Get(id); ok {
			out = append(out, a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Remove deletes an agent. Unknown IDs are a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.agents, id)
	delete(s.locks, id)
}

// Update runs fn against the live agent under its per-agent lock. Returns
// false if the agent no longer exists.
func (s *Store) Update(id string, fn func(a *Agent)) bool {
	s.mu.RLock()
	a, ok := s.agents[id]
	lock := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	lock.Lock()
	defer lock.Unlock()
	fn(a)
	return true
}

func snapshot(a *Agent) *Agent {
	copy := *a
	copy.DocumentIDs = append([]string(nil), a.DocumentIDs...)
	copy.Messages = append([]Message(nil), a.Messages...)
	return &copy
}
