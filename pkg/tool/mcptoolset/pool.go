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

package mcptoolset

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

// Pool holds the provider sessions shared by every turn. It becomes ready
// once Connect has run, even if some providers failed to connect. Once
// closed, it closes any session handed to it.
type Pool struct {
	mu       sync.RWMutex
	sessions []*Session
	closed   bool
	ready    atomic.Bool
}

// NewPool returns an empty, not yet ready pool.
func NewPool() *Pool {
	return &Pool{}
}

// Connect establishes all configured sessions concurrently. Providers that
// fail are logged and left out; the rest keep configuration order.
func (p *Pool) Connect(ctx context.Context, cfgs []config.ProviderConfig) {
	connected := make([]*Session, len(cfgs))

	var g errgroup.Group
	for i, cfg := range cfgs {
		g.Go(func() error {
			s, err := Connect(ctx, cfg)
			if err != nil {
				slog.Error("Failed to connect provider, skipping", "provider", cfg.Name, "error", err)
				return nil
			}
			connected[i] = s
			return nil
		})
	}
	_ = g.Wait()

	if !p.add(connected, true) {
		slog.Info("Pool closed while connecting, late sessions released", "configured", len(cfgs))
		return
	}
	slog.Info("Provider sessions established", "connected", p.Len(), "configured", len(cfgs))
}

// Add appends sessions, ignoring nils. After Close they are closed
// instead.
func (p *Pool) Add(sessions ...*Session) {
	p.add(sessions, false)
}

// add reports false when the pool was already closed.
func (p *Pool) add(sessions []*Session, markReady bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if p.closed {
			if err := s.Close(); err != nil {
				slog.Warn("Failed to close late provider session", "provider", s.Name(), "error", err)
			}
			continue
		}
		p.sessions = append(p.sessions, s)
	}
	if p.closed {
		return false
	}
	if markReady {
		p.ready.Store(true)
	}
	return true
}

// MarkReady flags the pool as ready without connecting anything.
func (p *Pool) MarkReady() {
	p.ready.Store(true)
}

// Ready reports whether Connect has completed.
func (p *Pool) Ready() bool {
	return p.ready.Load()
}

// Len returns the number of live sessions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Providers returns the sessions as tool providers, in order.
func (p *Pool) Providers() []tool.Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]tool.Provider, len(p.sessions))
	for i, s := range p.sessions {
		out[i] = s
	}
	return out
}

// Close closes every session.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, s := range p.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.sessions = nil
	p.closed = true
	p.ready.Store(false)
	return errors.Join(errs...)
}
