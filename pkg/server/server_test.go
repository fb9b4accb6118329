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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nitish-Garikoti/databahn/pkg/agent"
	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/model"
	"github.com/Nitish-Garikoti/databahn/pkg/state"
)

type fakePipeline struct {
	ready bool
	err   error
	panic bool

	query, threadID string
}

func (f *fakePipeline) Ready() bool { return f.ready }

func (f *fakePipeline) ProcessQuery(_ context.Context, query, threadID string) (string, *state.State, error) {
	if f.panic {
		panic("boom")
	}
	f.query, f.threadID = query, threadID
	if f.err != nil {
		return "", nil, f.err
	}
	st := state.New()
	st.UserMessage = query
	st.AppendOrchestrator(model.Message{Role: model.RoleUser, Content: query})
	return "answer to " + query, st, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQuery(t *testing.T) {
	p := &fakePipeline{ready: true}
	h := New(config.ServerConfig{}, p).Handler()

	rec := do(t, h, http.MethodPost, "/query", `{"query":"what CVEs affect WinRAR?","thread_id":"t-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var resp struct {
		Response string         `json:"response"`
		State    map[string]any `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "answer to what CVEs affect WinRAR?", resp.Response)
	assert.Equal(t, "what CVEs affect WinRAR?", resp.State["user_message"])
	assert.Contains(t, resp.State, "orchestrator")
	assert.Contains(t, resp.State, "response")
	assert.Equal(t, "t-1", p.threadID)
}

func TestQueryBadRequest(t *testing.T) {
	h := New(config.ServerConfig{}, &fakePipeline{ready: true}).Handler()

	for _, body := range []string{
		`not json`,
		`{"thread_id":"t"}`,
		`{"query":"q"}`,
	} {
		rec := do(t, h, http.MethodPost, "/query", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestQueryNotReady(t *testing.T) {
	h := New(config.ServerConfig{}, &fakePipeline{err: agent.ErrNotReady}).Handler()

	rec := do(t, h, http.MethodPost, "/query", `{"query":"q","thread_id":"t"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"provider sessions are not ready, retry shortly"}`, rec.Body.String())
}

func TestQueryInternalError(t *testing.T) {
	h := New(config.ServerConfig{}, &fakePipeline{ready: true, err: errors.New("disk full")}).Handler()

	rec := do(t, h, http.MethodPost, "/query", `{"query":"q","thread_id":"t"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestQueryPanicRecovered(t *testing.T) {
	h := New(config.ServerConfig{}, &fakePipeline{ready: true, panic: true}).Handler()

	rec := do(t, h, http.MethodPost, "/query", `{"query":"q","thread_id":"t"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	p := &fakePipeline{}
	h := New(config.ServerConfig{}, p).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	p.ready = true
	rec = do(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("databahn_turns_total 1\n"))
	})
	h := New(config.ServerConfig{}, &fakePipeline{}, WithMetricsHandler("/metrics", metrics)).Handler()

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "databahn_turns_total")

	h = New(config.ServerConfig{}, &fakePipeline{}).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code)
}

func TestServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(config.ServerConfig{}, &fakePipeline{ready: true})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
