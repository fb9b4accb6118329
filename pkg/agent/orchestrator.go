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

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/Nitish-Garikoti/databahn/pkg/model"
	"github.com/Nitish-Garikoti/databahn/pkg/prompt"
	"github.com/Nitish-Garikoti/databahn/pkg/state"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

// Phase names used in model requests, spans and metrics.
const (
	PhaseOrchestrator = "orchestrator"
	PhaseResponse     = "response"
)

// ErrNoModelOutput is returned when the model produced neither prose nor
// tool calls.
var ErrNoModelOutput = errors.New("model returned neither content nor tool calls")

// PromptSource yields the active prompt set. *prompt.Store satisfies it.
type PromptSource interface {
	Current() *prompt.Set
}

// StaticPrompts serves a fixed prompt set.
type StaticPrompts struct {
	Set *prompt.Set
}

func (s StaticPrompts) Current() *prompt.Set { return s.Set }

// Decision is the orchestrator's outcome: either prose (Text) or tool calls.
type Decision struct {
	Text  string
	Calls []tool.CallRequest
}

// Terminal reports whether the turn ends without dispatch.
func (d *Decision) Terminal() bool {
	return len(d.Calls) == 0
}

// Orchestrator decides which tools to call for the current user message.
type Orchestrator struct {
	llm     model.LLM
	prompts PromptSource
	catalog *tool.Catalog
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(llm model.LLM, prompts PromptSource, catalog *tool.Catalog) *Orchestrator {
	return &Orchestrator{llm: llm, prompts: prompts, catalog: catalog}
}

// Decide prompts the model with the catalog built for st.UserMessage. The
// rendered user prompt and the model's answer are appended to the
// orchestrator history; tool calls are recorded as one assistant entry
// mapping each tool name to its raw arguments.
func (o *Orchestrator) Decide(ctx context.Context, st *state.State, providers []tool.Provider) (*Decision, error) {
	set := o.prompts.Current()
	userPrompt := prompt.Substitute(set.OrchestratorUser, st.Map(), prompt.OrchestratorKeys)
	st.AppendOrchestrator(model.Message{Role: model.RoleUser, Content: userPrompt})

	tools := o.catalog.Tools(ctx, st.UserMessage, providers)
	slog.Debug("Calling orchestrator", "tools", len(tools), "history", len(st.Orchestrator.ChatHistory))

	resp, err := o.llm.Generate(ctx, &model.Request{
		System:   set.OrchestratorSystem,
		Messages: st.Orchestrator.ChatHistory,
		Tools:    tools,
		Phase:    PhaseOrchestrator,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case resp.HasContent():
		st.AppendOrchestrator(model.Message{Role: model.RoleAssistant, Content: resp.Content})
		if resp.HasToolCalls() {
			slog.Warn("Orchestrator returned prose and tool calls, ignoring tool calls", "tool_calls", len(resp.ToolCalls))
		}
		return &Decision{Text: resp.Content}, nil

	case resp.HasToolCalls():
		st.AppendOrchestrator(model.Message{Role: model.RoleAssistant, Content: encodeCalls(resp.ToolCalls)})
		return &Decision{Calls: resp.ToolCalls}, nil

	default:
		return nil, ErrNoModelOutput
	}
}

// encodeCalls renders calls as [{"tool_name": "raw arguments"}, ...].
func encodeCalls(calls []tool.CallRequest) string {
	entries := make([]map[string]string, len(calls))
	for i, c := range calls {
		entries[i] = map[string]string{c.Name: c.Arguments}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "[]"
	}
	return string(data)
}
