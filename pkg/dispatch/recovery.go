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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Nitish-Garikoti/databahn/pkg/config"
	"github.com/Nitish-Garikoti/databahn/pkg/observability"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

// Recovery describes the active-account recovery sequence of a stateful
// provider: when a call's first content text contains Marker, the
// dispatcher lists accounts with ListTool, activates the first one with
// SetTool and retries the call once.
type Recovery struct {
	Enabled       bool
	Marker        string
	ListTool      string
	SetTool       string
	SetParam      string
	AccountsField string
	IDField       string
}

// RecoveryFromConfig converts the configuration section, applying defaults.
func RecoveryFromConfig(cfg config.RecoveryConfig) Recovery {
	cfg.SetDefaults()
	return Recovery{
		Enabled:       cfg.IsEnabled(),
		Marker:        cfg.Marker,
		ListTool:      cfg.ListTool,
		SetTool:       cfg.SetTool,
		SetParam:      cfg.SetParam,
		AccountsField: cfg.AccountsField,
		IDField:       cfg.IDField,
	}
}

// Matches reports whether out signals a missing active account. The raw
// first content text is checked, whether or not the provider flagged the
// result as an error.
func (r Recovery) Matches(out *tool.Outcome) bool {
	return r.Enabled && r.Marker != "" && strings.Contains(out.Text(), r.Marker)
}

// recover runs the recovery sequence once. The caller holds the session
// lock. On any failure the original outcome is returned.
func (d *Dispatcher) recover(ctx context.Context, p tool.Provider, call tool.CallRequest, args map[string]any, original *tool.Outcome) *tool.Outcome {
	rc := d.cfg.Recovery
	log := slog.With("call_id", call.ID, "tool", call.Name, "provider", p.Name())
	log.Info("Active account not set, attempting recovery")

	abandon := func(reason string, attrs ...any) *tool.Outcome {
		log.Error("Recovery abandoned: "+reason, attrs...)
		d.metrics.RecordRecovery(ctx, observability.OutcomeError)
		return original
	}

	listed, err := d.callProvider(ctx, p, rc.ListTool, map[string]any{})
	if err != nil {
		return abandon("listing accounts failed", "error", err)
	}
	if listed.IsError {
		return abandon("listing accounts returned an error")
	}

	accountID, err := rc.firstAccountID(listed.Text())
	if err != nil {
		return abandon("no usable account", "error", err)
	}

	set, err := d.callProvider(ctx, p, rc.SetTool, map[string]any{rc.SetParam: accountID})
	if err != nil {
		return abandon("setting active account failed", "account_id", accountID, "error", err)
	}
	if set.IsError {
		return abandon("setting active account returned an error", "account_id", accountID)
	}

	log.Info("Active account set, retrying call", "account_id", accountID)
	retried, err := d.callProvider(ctx, p, call.Name, args)
	if err != nil {
		return abandon("retry failed", "error", err)
	}

	outcome := observability.OutcomeSuccess
	if rc.Matches(retried) {
		log.Warn("Retry still reports no active account")
		outcome = observability.OutcomeError
	}
	d.metrics.RecordRecovery(ctx, outcome)
	return retried
}

// firstAccountID extracts listing[AccountsField][0][IDField].
func (r Recovery) firstAccountID(listing string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(listing), &data); err != nil {
		return nil, fmt.Errorf("malformed account listing: %w", err)
	}
	accounts, _ := data[r.AccountsField].([]any)
	if len(accounts) == 0 {
		return nil, fmt.Errorf("listing has no %q entries", r.AccountsField)
	}
	first, ok := accounts[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("first account is not an object")
	}
	id, ok := first[r.IDField]
	if !ok || id == nil || id == "" {
		return nil, fmt.Errorf("first account has no %q", r.IDField)
	}
	return id, nil
}
