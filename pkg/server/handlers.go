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

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/scholar/pkg/agent"
	"github.com/kadirpekel/scholar/pkg/answer"
	"github.com/kadirpekel/scholar/pkg/rag"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var notFound *agent.NotFoundError
	var stateErr *agent.StateError
	var genErr *answer.AnswerGenerationError
	var emptyErr *answer.EmptyContextError
	var chunkErr *rag.ChunkingError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &stateErr):
		status = http.StatusConflict
	case errors.As(err, &genErr), errors.As(err, &emptyErr), errors.As(err, &chunkErr):
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createAgentRequest struct {
	Name string `json:"name"`

	// Strategy fixes the agent's answering strategy; empty uses the
	// configured default.
	Strategy string `json:"strategy,omitempty"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}

	kind, ok := parseStrategy(w, req.Strategy)
	if !ok {
		return
	}

	a, err := s.manager.CreateAgent(req.Name, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// parseStrategy validates an optional strategy name, writing a 400 on
// failure.
func parseStrategy(w http.ResponseWriter, name string) (answer.Kind, bool) {
	if name == "" {
		return "", true
	}
	kind, err := answer.ParseKind(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return "", false
	}
	return kind, true
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.ListAgents())
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.manager.GetAgent(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteAgent(r.Context(), chi.URLParam(r, "agentID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ingestRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`

	// Path ingests a file from the server's filesystem instead of inline
	// text.
	Path string `json:"path,omitempty"`
}

func (req *ingestRequest) validate() string {
	if req.Path == "" && (req.Name == "" || req.Text == "") {
		return "either path or name and text are required"
	}
	return ""
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	var doc *rag.Document
	var err error
	if req.Path != "" {
		doc, err = s.manager.IngestDocumentFile(r.Context(), agentID, req.Path)
	} else {
		doc, err = s.manager.IngestDocument(r.Context(), agentID, req.Name, req.Text)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	documentsIngested.Inc()
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleIngestShared(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	var doc *rag.Document
	var err error
	if req.Path != "" {
		doc, err = s.library.IngestFile(r.Context(), "", req.Path)
	} else {
		doc, err = s.library.Ingest(r.Context(), "", req.Name, req.Text)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	documentsIngested.Inc()
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	type lister interface {
		Documents() []*rag.Document
	}
	if l, ok := s.library.(lister); ok {
		writeJSON(w, http.StatusOK, l.Documents())
		return
	}
	writeJSON(w, http.StatusOK, []*rag.Document{})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	a, err := s.manager.GetAgent(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	messages := a.Messages
	if messages == nil {
		messages = []agent.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type answerRequest struct {
	// QuestionID answers one bank question; QuestionIDs answers a batch.
	QuestionID  string   `json:"question_id,omitempty"`
	QuestionIDs []string `json:"question_ids,omitempty"`

	// Question answers an inline question instead of a bank reference.
	Question *answer.Question `json:"question,omitempty"`

	// Sequential forces in-order answering for batches.
	Sequential bool `json:"sequential,omitempty"`

	// Strategy overrides the agent's strategy for this request.
	Strategy string `json:"strategy,omitempty"`
}

type batchAnswerResponse struct {
	Results []batchAnswerItem `json:"results"`
}

type batchAnswerItem struct {
	QuestionID string         `json:"question_id"`
	Message    *agent.Message `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	kind, ok := parseStrategy(w, req.Strategy)
	if !ok {
		return
	}

	switch {
	case req.Question != nil:
		msg, err := s.manager.Answer(r.Context(), agentID, *req.Question,
			agent.AnswerOptions{Strategy: kind})
		s.respondAnswer(w, msg, err)

	case req.QuestionID != "":
		msg, err := s.manager.AnswerQuestion(r.Context(), agentID, req.QuestionID,
			agent.AnswerOptions{Strategy: kind})
		s.respondAnswer(w, msg, err)

	case len(req.QuestionIDs) > 0:
		results, err := s.manager.AnswerQuestions(r.Context(), agentID, req.QuestionIDs,
			agent.BatchOptions{Sequential: req.Sequential, Strategy: kind})
		if err != nil {
			writeError(w, err)
			return
		}

		resp := batchAnswerResponse{Results: make([]batchAnswerItem, len(results))}
		for i, res := range results {
			item := batchAnswerItem{QuestionID: res.QuestionID, Message: res.Message}
			if res.Err != nil {
				item.Error = res.Err.Error()
			}
			resp.Results[i] = item
			recordAnswerMetric(res.Message)
		}
		writeJSON(w, http.StatusOK, resp)

	default:
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "question, question_id or question_ids is required"})
	}
}

func (s *Server) respondAnswer(w http.ResponseWriter, msg *agent.Message, err error) {
	recordAnswerMetric(msg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func recordAnswerMetric(msg *agent.Message) {
	if msg == nil {
		return
	}
	outcome := "answered"
	if msg.Failed {
		outcome = "failed"
	}
	answersTotal.WithLabelValues(msg.Strategy, outcome).Inc()
}
