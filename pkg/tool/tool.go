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

// Package tool defines the uniform description of invocable tools and the
// catalog that merges locally implemented tools with tools advertised by
// provider sessions.
//
// Every tool is described by a Schema. A Schema has exactly one Provenance:
//
//	Local  - implemented in-process, registered in a Registry
//	Remote - advertised by a Provider session, refreshed every turn
//
// Invocation always yields an Outcome, which normalizes to a Result with a
// guaranteed text field.
package tool

import (
	"context"
	"time"
)

// Provenance identifies where a tool is implemented.
type Provenance int

const (
	ProvenanceLocal Provenance = iota
	ProvenanceRemote
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceLocal:
		return "local"
	case ProvenanceRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Schema describes a tool to the language model.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Provenance  Provenance     `json:"-"`

	// Provider names the owning session for remote tools.
	Provider string `json:"-"`
}

// PropertyCount returns the number of declared parameters.
func (s Schema) PropertyCount() int {
	props, _ := s.Parameters["properties"].(map[string]any)
	return len(props)
}

// CallRequest is a tool invocation requested by the model.
type CallRequest struct {
	ID        string `json:"call_id"`
	Name      string `json:"tool_name"`
	Arguments string `json:"arguments_json"`
}

// Result is a normalized tool result. An empty Text means the call produced
// nothing usable, whether or not it failed.
type Result struct {
	CallID string `json:"call_id"`
	Text   string `json:"text"`
}

// Content is one item of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Outcome is the raw output of a local or remote tool.
type Outcome struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextOutcome wraps text as a single content item.
func TextOutcome(text string) *Outcome {
	return &Outcome{Content: []Content{{Type: "text", Text: text}}}
}

// Text returns the first content item's text, or "" when there is none.
// It is safe to call on a nil Outcome.
func (o *Outcome) Text() string {
	if o == nil || len(o.Content) == 0 {
		return ""
	}
	return o.Content[0].Text
}

// Normalize converts the outcome into a Result for callID. Provider-signaled
// failures normalize to empty text.
func (o *Outcome) Normalize(callID string) Result {
	if o == nil || o.IsError {
		return Result{CallID: callID}
	}
	return Result{CallID: callID, Text: o.Text()}
}

// Local is a tool implemented in-process.
type Local interface {
	Schema() Schema
	Invoke(ctx context.Context, args map[string]any) (*Outcome, error)
}

// Provider is a live session with a remote tool source.
type Provider interface {
	Name() string
	ListTools(ctx context.Context) ([]Schema, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*Outcome, error)
}

// ListWithTimeout lists p's tools, giving up after timeout when it is
// positive.
func ListWithTimeout(ctx context.Context, p Provider, timeout time.Duration) ([]Schema, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return p.ListTools(ctx)
}
