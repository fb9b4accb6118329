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

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

const marker = "No currently active accountId"

type fakeLocal struct {
	name string
	fn   func(args map[string]any) (*tool.Outcome, error)
}

func (f *fakeLocal) Schema() tool.Schema {
	return tool.Schema{Name: f.name, Parameters: map[string]any{"type": "object"}}
}

func (f *fakeLocal) Invoke(_ context.Context, args map[string]any) (*tool.Outcome, error) {
	return f.fn(args)
}

type fakeProvider struct {
	name       string
	tools      []string
	serialized bool
	hangList   bool
	handler    func(ctx context.Context, name string, args map[string]any) (*tool.Outcome, error)

	mu       sync.Mutex
	calls    []string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *fakeProvider) Name() string     { return p.name }
func (p *fakeProvider) Serialized() bool { return p.serialized }

func (p *fakeProvider) ListTools(ctx context.Context) ([]tool.Schema, error) {
	if p.hangList {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	out := make([]tool.Schema, len(p.tools))
	for i, n := range p.tools {
		out[i] = tool.Schema{Name: n}
	}
	return out, nil
}

func (p *fakeProvider) CallTool(ctx context.Context, name string, args map[string]any) (*tool.Outcome, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	p.mu.Lock()
	p.calls = append(p.calls, name)
	p.mu.Unlock()
	return p.handler(ctx, name, args)
}

func (p *fakeProvider) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.calls...)
}

func echoProvider(name string, tools ...string) *fakeProvider {
	return &fakeProvider{
		name:  name,
		tools: tools,
		handler: func(_ context.Context, tn string, _ map[string]any) (*tool.Outcome, error) {
			return tool.TextOutcome(name + ":" + tn), nil
		},
	}
}

func newDispatcher(t *testing.T, cfg Config, locals ...tool.Local) *Dispatcher {
	t.Helper()
	reg, err := tool.NewRegistry(locals...)
	require.NoError(t, err)
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 4
	}
	return New(reg, cfg)
}

func defaultRecovery() Recovery {
	return RecoveryFromConfig(config.RecoveryConfig{})
}

func call(id, name, args string) tool.CallRequest {
	return tool.CallRequest{ID: id, Name: name, Arguments: args}
}

func TestInvokeAlignment(t *testing.T) {
	lookup := &fakeLocal{name: "lookup_cyber_security_data", fn: func(args map[string]any) (*tool.Outcome, error) {
		return tool.TextOutcome(fmt.Sprint(args["sql_query"])), nil
	}}
	broken := &fakeLocal{name: "broken", fn: func(map[string]any) (*tool.Outcome, error) {
		return nil, errors.New("disk on fire")
	}}
	panicky := &fakeLocal{name: "panicky", fn: func(map[string]any) (*tool.Outcome, error) {
		panic("boom")
	}}
	remote := &fakeProvider{
		name:  "search",
		tools: []string{"internet_search", "flaky"},
		handler: func(_ context.Context, name string, _ map[string]any) (*tool.Outcome, error) {
			switch name {
			case "flaky":
				return &tool.Outcome{Content: []tool.Content{{Type: "text", Text: "rate limited"}}, IsError: true}, nil
			default:
				return tool.TextOutcome("results"), nil
			}
		},
	}

	d := newDispatcher(t, Config{}, lookup, broken, panicky)
	calls := []tool.CallRequest{
		call("c1", "lookup_cyber_security_data", `{"sql_query":"SELECT 1"}`),
		call("c2", "lookup_cyber_security_data", `{"sql_query":`),
		call("c3", "delete_everything", `{}`),
		call("c4", "broken", `{}`),
		call("c5", "internet_search", `{"query":"winrar"}`),
		call("c6", "panicky", `{}`),
		call("c7", "flaky", `{}`),
		call("c8", "internet_search", ``),
	}

	results := d.Invoke(context.Background(), calls, []tool.Provider{remote})

	require.Len(t, results, len(calls))
	for i, c := range calls {
		assert.Equal(t, c.ID, results[i].CallID)
	}
	assert.Equal(t, "SELECT 1", results[0].Text)
	assert.Equal(t, "", results[1].Text)
	assert.Equal(t, "", results[2].Text)
	assert.Equal(t, "", results[3].Text)
	assert.Equal(t, "results", results[4].Text)
	assert.Equal(t, "", results[5].Text)
	assert.Equal(t, "", results[6].Text)
	assert.Equal(t, "", results[7].Text)
}

func TestInvokeUnknownToolContactsNoSession(t *testing.T) {
	p := echoProvider("accounts", "accounts_list", "list_findings")
	d := newDispatcher(t, Config{Recovery: defaultRecovery()})

	results := d.Invoke(context.Background(), []tool.CallRequest{call("c1", "delete_everything", `{}`)}, []tool.Provider{p})

	assert.Equal(t, []tool.Result{{CallID: "c1", Text: ""}}, results)
	assert.Empty(t, p.callLog())
}

func TestInvokeEmptyBatch(t *testing.T) {
	d := newDispatcher(t, Config{})
	assert.Empty(t, d.Invoke(context.Background(), nil, nil))
}

func TestRoutingPrecedence(t *testing.T) {
	first := echoProvider("first", "lookup")
	second := echoProvider("second", "lookup", "only_second")
	local := &fakeLocal{name: "shadowed", fn: func(map[string]any) (*tool.Outcome, error) {
		return tool.TextOutcome("local"), nil
	}}
	shadowing := echoProvider("shadowing", "shadowed")

	d := newDispatcher(t, Config{}, local)
	results := d.Invoke(context.Background(), []tool.CallRequest{
		call("c1", "lookup", `{}`),
		call("c2", "only_second", `{}`),
		call("c3", "shadowed", `{}`),
	}, []tool.Provider{first, second, shadowing})

	assert.Equal(t, "first:lookup", results[0].Text)
	assert.Equal(t, "second:only_second", results[1].Text)
	assert.Equal(t, "local", results[2].Text)
	assert.Empty(t, shadowing.callLog())
}

// accountProvider mimics a provider whose tools need an active account.
type accountProvider struct {
	*fakeProvider
	active atomic.Bool
}

func newAccountProvider(listing string, activates bool) *accountProvider {
	ap := &accountProvider{}
	ap.fakeProvider = &fakeProvider{
		name:       "cloud",
		tools:      []string{"accounts_list", "set_active_account", "list_findings"},
		serialized: false,
		handler: func(_ context.Context, name string, args map[string]any) (*tool.Outcome, error) {
			switch name {
			case "accounts_list":
				return tool.TextOutcome(listing), nil
			case "set_active_account":
				if activates && args["activeAccountIdParam"] == "acc-1" {
					ap.active.Store(true)
				}
				return tool.TextOutcome("ok"), nil
			default:
				if !ap.active.Load() {
					return tool.TextOutcome("Error: " + marker + " set"), nil
				}
				return tool.TextOutcome("3 findings"), nil
			}
		},
	}
	return ap
}

func TestRecoverySucceeds(t *testing.T) {
	p := newAccountProvider(`{"accounts":[{"id":"acc-1"},{"id":"acc-2"}]}`, true)
	d := newDispatcher(t, Config{Recovery: defaultRecovery()})

	results := d.Invoke(context.Background(), []tool.CallRequest{call("c1", "list_findings", `{"severity":"high"}`)}, []tool.Provider{p})

	assert.Equal(t, "3 findings", results[0].Text)
	assert.Equal(t, []string{"list_findings", "accounts_list", "set_active_account", "list_findings"}, p.callLog())
}

func TestRecoveryIsBounded(t *testing.T) {
	p := newAccountProvider(`{"accounts":[{"id":"acc-1"}]}`, false)
	d := newDispatcher(t, Config{Recovery: defaultRecovery()})

	results := d.Invoke(context.Background(), []tool.CallRequest{call("c1", "list_findings", `{}`)}, []tool.Provider{p})

	assert.Contains(t, results[0].Text, marker)
	assert.Equal(t, []string{"list_findings", "accounts_list", "set_active_account", "list_findings"}, p.callLog())
}

func TestRecoveryAbandoned(t *testing.T) {
	tests := []struct {
		name    string
		listing string
	}{
		{"no accounts", `{"accounts":[]}`},
		{"missing id", `{"accounts":[{"name":"prod"}]}`},
		{"malformed", `accounts: prod`},
		{"wrong shape", `{"accounts":"prod"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newAccountProvider(tt.listing, true)
			d := newDispatcher(t, Config{Recovery: defaultRecovery()})

			results := d.Invoke(context.Background(), []tool.CallRequest{call("c1", "list_findings", `{}`)}, []tool.Provider{p})

			assert.Contains(t, results[0].Text, marker)
			assert.Equal(t, []string{"list_findings", "accounts_list"}, p.callLog())
		})
	}
}

func TestRecoveryOnlyForDesignatedProvider(t *testing.T) {
	other := &fakeProvider{
		name:  "other",
		tools: []string{"describe"},
		handler: func(context.Context, string, map[string]any) (*tool.Outcome, error) {
			return tool.TextOutcome(marker), nil
		},
	}
	accounts := newAccountProvider(`{"accounts":[{"id":"acc-1"}]}`, true)
	d := newDispatcher(t, Config{Recovery: defaultRecovery()})

	results := d.Invoke(context.Background(), []tool.CallRequest{call("c1", "describe", `{}`)}, []tool.Provider{other, accounts})

	assert.Equal(t, marker, results[0].Text)
	assert.Equal(t, []string{"describe"}, other.callLog())
	assert.Empty(t, accounts.callLog())
}

func TestRecoveryDisabled(t *testing.T) {
	p := newAccountProvider(`{"accounts":[{"id":"acc-1"}]}`, true)
	no := false
	d := newDispatcher(t, Config{Recovery: RecoveryFromConfig(config.RecoveryConfig{Enabled: &no})})

	d.Invoke(context.Background(), []tool.CallRequest{call("c1", "list_findings", `{}`)}, []tool.Provider{p})
	assert.Equal(t, []string{"list_findings"}, p.callLog())
}

func TestSerializedProviderNeverOverlaps(t *testing.T) {
	p := &fakeProvider{
		name:       "stdio",
		tools:      []string{"slow"},
		serialized: true,
		handler: func(context.Context, string, map[string]any) (*tool.Outcome, error) {
			time.Sleep(10 * time.Millisecond)
			return tool.TextOutcome("done"), nil
		},
	}
	d := newDispatcher(t, Config{MaxConcurrency: 8})

	calls := make([]tool.CallRequest, 6)
	for i := range calls {
		calls[i] = call(fmt.Sprintf("c%d", i), "slow", `{}`)
	}
	results := d.Invoke(context.Background(), calls, []tool.Provider{p})

	for _, r := range results {
		assert.Equal(t, "done", r.Text)
	}
	assert.Equal(t, int32(1), p.peak.Load())
}

func TestConcurrentCallsRunInParallel(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	go func() {
		started.Wait()
		close(release)
	}()

	p := &fakeProvider{
		name:  "http",
		tools: []string{"wait"},
		handler: func(ctx context.Context, _ string, _ map[string]any) (*tool.Outcome, error) {
			started.Done()
			select {
			case <-release:
				return tool.TextOutcome("ok"), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	d := newDispatcher(t, Config{MaxConcurrency: 2, CallTimeout: 5 * time.Second})

	results := d.Invoke(context.Background(), []tool.CallRequest{call("a", "wait", `{}`), call("b", "wait", `{}`)}, []tool.Provider{p})
	assert.Equal(t, "ok", results[0].Text)
	assert.Equal(t, "ok", results[1].Text)
}

func TestCallTimeout(t *testing.T) {
	p := &fakeProvider{
		name:  "hung",
		tools: []string{"hang"},
		handler: func(ctx context.Context, _ string, _ map[string]any) (*tool.Outcome, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	d := newDispatcher(t, Config{CallTimeout: 20 * time.Millisecond})

	results := d.Invoke(context.Background(), []tool.CallRequest{call("c1", "hang", `{}`)}, []tool.Provider{p})
	assert.Equal(t, []tool.Result{{CallID: "c1"}}, results)
}

func TestUnresponsiveListingIsSkipped(t *testing.T) {
	hung := echoProvider("hung", "find")
	hung.hangList = true
	live := echoProvider("live", "find")
	d := newDispatcher(t, Config{CallTimeout: 50 * time.Millisecond})

	done := make(chan []tool.Result, 1)
	go func() {
		done <- d.Invoke(context.Background(), []tool.CallRequest{call("c1", "find", `{}`)}, []tool.Provider{hung, live})
	}()

	select {
	case results := <-done:
		assert.Equal(t, []tool.Result{{CallID: "c1", Text: "live:find"}}, results)
	case <-time.After(2 * time.Second):
		t.Fatal("Invoke did not return while a provider's tool listing hung")
	}
	assert.Empty(t, hung.callLog())
}
