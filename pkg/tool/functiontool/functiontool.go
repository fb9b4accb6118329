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

// Package functiontool builds local tools from typed Go functions. The
// parameter schema is reflected from the argument struct's json and
// jsonschema tags.
//
//	type LookupArgs struct {
//	    SQLQuery string `json:"sql_query" jsonschema:"required,description=SQL to run"`
//	}
//
//	lookup, err := functiontool.New(
//	    functiontool.Config{Name: "lookup", Description: "Query the database"},
//	    func(ctx context.Context, args LookupArgs) (*tool.Outcome, error) { ... },
//	)
package functiontool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

// Config names and describes a function tool.
type Config struct {
	Name        string
	Description string
}

// New creates a local tool from fn.
func New[Args any](cfg Config, fn func(context.Context, Args) (*tool.Outcome, error)) (tool.Local, error) {
	return NewWithValidation(cfg, fn, nil)
}

// NewWithValidation creates a local tool whose arguments are checked by
// validate before fn runs.
func NewWithValidation[Args any](
	cfg Config,
	fn func(context.Context, Args) (*tool.Outcome, error),
	validate func(Args) error,
) (tool.Local, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return nil, fmt.Errorf("tool description is required")
	}

	params, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{
		schema: tool.Schema{
			Name:        cfg.Name,
			Description: cfg.Description,
			Parameters:  params,
			Provenance:  tool.ProvenanceLocal,
		},
		fn:       fn,
		validate: validate,
	}, nil
}

type functionTool[Args any] struct {
	schema   tool.Schema
	fn       func(context.Context, Args) (*tool.Outcome, error)
	validate func(Args) error
}

func (t *functionTool[Args]) Schema() tool.Schema {
	return t.schema
}

func (t *functionTool[Args]) Invoke(ctx context.Context, args map[string]any) (*tool.Outcome, error) {
	typed, err := t.decode(args)
	if err != nil {
		return nil, err
	}
	if t.validate != nil {
		if err := t.validate(typed); err != nil {
			return nil, fmt.Errorf("validation failed for %s: %w", t.schema.Name, err)
		}
	}
	return t.fn(ctx, typed)
}

// decode round-trips the loose argument map through JSON into Args. No
// arguments leave Args at its zero value.
func (t *functionTool[Args]) decode(args map[string]any) (Args, error) {
	var typed Args
	if len(args) == 0 {
		return typed, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return typed, fmt.Errorf("%s: arguments are not JSON-encodable: %w", t.schema.Name, err)
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return typed, fmt.Errorf("%s: arguments do not match the parameter schema: %w", t.schema.Name, err)
	}
	return typed, nil
}

var _ tool.Local = (*functionTool[struct{}])(nil)
