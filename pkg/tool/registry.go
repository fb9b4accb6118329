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

package tool

import (
	"fmt"
)

// Registry holds local tools in registration order.
type Registry struct {
	order []string
	tools map[string]Local
}

// NewRegistry registers tools, rejecting duplicate names.
func NewRegistry(tools ...Local) (*Registry, error) {
	r := &Registry{tools: make(map[string]Local, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool.
func (r *Registry) Register(t Local) error {
	name := t.Schema().Name
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.order = append(r.order, name)
	r.tools[name] = t
	return nil
}

// Lookup finds a tool by name.
func (r *Registry) Lookup(name string) (Local, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Local {
	if r == nil {
		return nil
	}
	out := make([]Local, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}
