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
	"log/slog"

	"github.com/Nitish-Garikoti/databahn/pkg/model"
	"github.com/Nitish-Garikoti/databahn/pkg/prompt"
	"github.com/Nitish-Garikoti/databahn/pkg/state"
)

// FallbackMessage is the answer given when a turn cannot produce one.
const FallbackMessage = "Looks like something went wrong. Please try again"

// Responder turns dispatch results into the final answer.
type Responder struct {
	llm     model.LLM
	prompts PromptSource
}

// NewResponder creates a responder.
func NewResponder(llm model.LLM, prompts PromptSource) *Responder {
	return &Responder{llm: llm, prompts: prompts}
}

// Respond asks the model, with no tools attached, to answer from
// st.Orchestrator.Results. It returns the answer and whether it came from
// the model; on failure the answer is FallbackMessage and no assistant
// message is recorded.
func (r *Responder) Respond(ctx context.Context, st *state.State) (string, bool) {
	set := r.prompts.Current()
	userPrompt := prompt.Substitute(set.ResponseUser, st.Map(), prompt.ResponseKeys)
	st.AppendResponse(model.Message{Role: model.RoleUser, Content: userPrompt})

	resp, err := r.llm.Generate(ctx, &model.Request{
		System:   set.ResponseSystem,
		Messages: st.Response.ChatHistory,
		Phase:    PhaseResponse,
	})
	if err != nil {
		slog.Error("Response phase failed", "retryable", model.IsRetryable(err), "error", err)
		return FallbackMessage, false
	}
	if !resp.HasContent() {
		slog.Warn("Response phase returned no content")
		return FallbackMessage, false
	}

	answer := model.Message{Role: model.RoleAssistant, Content: resp.Content}
	st.AppendResponse(answer)
	st.AppendOrchestrator(answer)
	return resp.Content, true
}
