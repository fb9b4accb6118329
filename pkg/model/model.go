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

// Package model defines the language-model contract shared by the
// orchestrator and response phases.
//
// A Generate call takes a system prompt, the phase's chat history and an
// optional tool catalog. The model answers with prose, tool calls, or
// (in violation of the contract) neither.
package model

import (
	"context"

	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

// LLM generates one complete response per call.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Generate calls the model once. Implementations bound the call with
	// their own timeout and return *Error for classified failures.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Roles of chat history entries.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the input to a model call.
type Request struct {
	// System is prepended to the conversation.
	System string

	// Messages is the chat history, oldest first.
	Messages []Message

	// Tools offered to the model. Empty means prose only.
	Tools []tool.Schema

	// Phase labels the call for tracing and metrics.
	Phase string
}

// Response is a complete model answer.
type Response struct {
	// Content is the prose answer; empty when the model returned none.
	Content string

	ToolCalls []tool.CallRequest

	FinishReason string

	Usage Usage
}

// Usage reports token counts.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// HasContent reports whether the model returned prose.
func (r *Response) HasContent() bool {
	return r != nil && r.Content != ""
}

// HasToolCalls reports whether the model requested tool calls.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}
