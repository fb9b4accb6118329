// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
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
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Nitish-Garikoti/databahn/pkg/agent"
	"github.com/Nitish-Garikoti/databahn/pkg/state"
)

const maxBodyBytes = 1 << 20

const (
	msgNotReady = "provider sessions are not ready, retry shortly"
	msgInternal = "internal server error"
)

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id"`
}

// QueryResponse is the reply to POST /query.
type QueryResponse struct {
	Response string       `json:"response"`
	State    *state.State `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	answer, st, err := s.pipeline.ProcessQuery(r.Context(), req.Query, req.ThreadID)
	switch {
	case errors.Is(err, agent.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, msgNotReady)
		return
	case err != nil:
		slog.Error("Query failed",
			"thread_id", req.ThreadID,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{Response: answer, State: st})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.pipeline.Ready() {
		writeError(w, http.StatusServiceUnavailable, msgNotReady)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
