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

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/Nitish-Garikoti/databahn/pkg/state"
)

// ChatCmd runs an interactive session against the pipeline.
type ChatCmd struct {
	Thread string `help:"Thread id to continue (default: a new one)."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, cleanup, err := loadConfig(cli)
	defer cleanup()
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, appOptions{store: state.NewMemoryStore()})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	a.Start(ctx)

	threadID := c.Thread
	if threadID == "" {
		threadID = uuid.NewString()
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("databahn chat (thread %s)\n", threadID)
		fmt.Println("Type a question, or 'exit' to quit.")
		fmt.Println()
	}

	if err := waitReady(ctx, a); err != nil {
		return err
	}
	return chatLoop(ctx, a.pipeline, threadID, os.Stdin, os.Stdout, interactive)
}

// waitReady blocks until provider sessions are connected.
func waitReady(ctx context.Context, a *app) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !a.pipeline.Ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

type querier interface {
	ProcessQuery(ctx context.Context, query, threadID string) (string, *state.State, error)
}

func chatLoop(ctx context.Context, p querier, threadID string, in io.Reader, out io.Writer, prompt bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if prompt {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			if prompt {
				fmt.Fprintln(out)
			}
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		answer, _, err := p.ProcessQuery(ctx, input, threadID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, answer)
		if prompt {
			fmt.Fprintln(out)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
