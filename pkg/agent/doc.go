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

// Package agent implements the two-phase question answering pipeline.
//
// # Phases
//
// A turn runs the Orchestrator, which sees the tool catalog and decides
// what to call, then the Dispatcher, then the Responder, which turns the
// tool results into prose with no tools attached:
//
//	state -> Orchestrator.Decide -> dispatch.Invoke -> Responder.Respond -> answer
//
// When the orchestrator answers in prose the turn ends there and the prose
// is the answer.
//
// # Failure
//
// A turn always completes. Model failures and contract violations produce
// FallbackMessage instead of an error; only an unready provider pool or a
// broken state store surface as errors from Pipeline.ProcessQuery.
//
// # Usage
//
//	p := agent.NewPipeline(agent.PipelineConfig{
//	    LLM:        llm,
//	    Prompts:    promptStore,
//	    Catalog:    catalog,
//	    Dispatcher: dispatcher,
//	    Providers:  pool,
//	    Store:      state.NewMemoryStore(),
//	})
//	answer, st, err := p.ProcessQuery(ctx, "what CVEs affect WinRAR?", threadID)
package agent
