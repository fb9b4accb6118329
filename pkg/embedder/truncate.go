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

package embedder

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const embeddingEncoding = "cl100k_base"

// Truncator cuts text down to a token budget. The encoding is loaded on
// first use; if it cannot be loaded, text passes through unchanged.
type Truncator struct {
	maxTokens int

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTruncator creates a truncator for maxTokens tokens.
func NewTruncator(maxTokens int) *Truncator {
	return &Truncator{maxTokens: maxTokens}
}

// Truncate returns text limited to the token budget.
func (t *Truncator) Truncate(text string) string {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(embeddingEncoding)
		if err != nil {
			slog.Warn("Token encoding unavailable, embedding input will not be truncated",
				"encoding", embeddingEncoding, "error", err)
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return text
	}

	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= t.maxTokens {
		return text
	}
	slog.Debug("Truncating embedding input", "tokens", len(tokens), "max", t.maxTokens)
	return t.enc.Decode(tokens[:t.maxTokens])
}
