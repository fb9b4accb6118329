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

// Package state defines the conversation state threaded through a turn and
// the stores that persist it by thread id.
//
// The persisted layout is exactly:
//
//	{
//	  "user_message": "...",
//	  "orchestrator": {"chat_history": [...], "results": [...]},
//	  "response":     {"chat_history": [...]}
//	}
package state

import (
	"encoding/json"

	"github.com/Nitish-Garikoti/databahn/pkg/model"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

// DefaultHistoryLimit is the number of messages kept per phase when a turn
// begins.
const DefaultHistoryLimit = 5

// State is the conversation state of one thread.
type State struct {
	UserMessage  string       `json:"user_message"`
	Orchestrator Orchestrator `json:"orchestrator"`
	Response     Response     `json:"response"`
}

// Orchestrator is the orchestrator phase's part of the state.
type Orchestrator struct {
	ChatHistory []model.Message `json:"chat_history"`
	Results     []tool.Result   `json:"results"`
}

// Response is the response phase's part of the state.
type Response struct {
	ChatHistory []model.Message `json:"chat_history"`
}

// New returns an empty state.
func New() *State {
	return &State{
		Orchestrator: Orchestrator{
			ChatHistory: []model.Message{},
			Results:     []tool.Result{},
		},
		Response: Response{ChatHistory: []model.Message{}},
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return New()
	}
	c := New()
	c.UserMessage = s.UserMessage
	c.Orchestrator.ChatHistory = append(c.Orchestrator.ChatHistory, s.Orchestrator.ChatHistory...)
	c.Orchestrator.Results = append(c.Orchestrator.Results, s.Orchestrator.Results...)
	c.Response.ChatHistory = append(c.Response.ChatHistory, s.Response.ChatHistory...)
	return c
}

// BeginTurn prepares a loaded state for a new turn: histories are cut to
// the last limit messages, the previous turn's results are dropped and the
// user message is set. It does not append the message to any history.
func (s *State) BeginTurn(userMessage string, limit int) {
	s.Truncate(limit)
	s.UserMessage = userMessage
	s.Orchestrator.Results = []tool.Result{}
}

// Truncate keeps the last limit messages of each phase's history. A
// non-positive limit keeps nothing.
func (s *State) Truncate(limit int) {
	s.Orchestrator.ChatHistory = lastN(s.Orchestrator.ChatHistory, limit)
	s.Response.ChatHistory = lastN(s.Response.ChatHistory, limit)
}

func lastN(msgs []model.Message, n int) []model.Message {
	if n < 0 {
		n = 0
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

// AppendOrchestrator appends a message to the orchestrator history.
func (s *State) AppendOrchestrator(msg model.Message) {
	s.Orchestrator.ChatHistory = append(s.Orchestrator.ChatHistory, msg)
}

// AppendResponse appends a message to the response history.
func (s *State) AppendResponse(msg model.Message) {
	s.Response.ChatHistory = append(s.Response.ChatHistory, msg)
}

// Map returns the state as generic JSON data, the form prompt templates
// resolve keys against.
func (s *State) Map() map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// UnmarshalJSON fills missing collections with empty ones so a decoded
// state always marshals back to the full layout.
func (s *State) UnmarshalJSON(data []byte) error {
	type plain State
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = State(p)
	if s.Orchestrator.ChatHistory == nil {
		s.Orchestrator.ChatHistory = []model.Message{}
	}
	if s.Orchestrator.Results == nil {
		s.Orchestrator.Results = []tool.Result{}
	}
	if s.Response.ChatHistory == nil {
		s.Response.ChatHistory = []model.Message{}
	}
	return nil
}
