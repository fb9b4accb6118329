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

package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 100 * time.Millisecond

// Store serves the current prompt set and swaps it atomically when the
// template directory changes.
type Store struct {
	dir     string
	current atomic.Pointer[Set]

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewStore loads templates from dir (empty means embedded defaults).
func NewStore(dir string) (*Store, error) {
	set, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	s := &Store{dir: dir}
	s.current.Store(set)
	return s, nil
}

// Current returns the active prompt set.
func (s *Store) Current() *Set {
	return s.current.Load()
}

// Reload re-reads the directory. On failure the previous set stays active.
func (s *Store) Reload() error {
	set, err := LoadDir(s.dir)
	if err != nil {
		return err
	}
	s.current.Store(set)
	return nil
}

// Watch reloads templates whenever one of them changes, until ctx ends.
// The returned channel receives after each successful reload.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	if s.dir == "" {
		return nil, fmt.Errorf("no prompt directory to watch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil, fmt.Errorf("already watching %s", s.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(absDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", absDir, err)
	}
	s.watcher = watcher

	ch := make(chan struct{}, 1)
	go s.watchLoop(ctx, watcher, ch)

	slog.Info("Watching prompt templates", "dir", absDir)
	return ch, nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, ch chan<- struct{}) {
	defer close(ch)
	defer func() {
		s.mu.Lock()
		s.watcher = nil
		s.mu.Unlock()
		watcher.Close()
	}()

	var debounceTimer *time.Timer
	reload := func() {
		if err := s.Reload(); err != nil {
			slog.Error("Failed to reload prompts, keeping previous set", "dir", s.dir, "error", err)
			return
		}
		slog.Info("Prompt templates reloaded", "dir", s.dir)
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !IsTemplateFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Prompt watcher error", "error", err)
		}
	}
}
