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

package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ParseOpenAIHeaders extracts rate limit info from OpenAI API headers.
func ParseOpenAIHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{RetryAfter: ParseRetryAfter(headers)}

	for _, header := range []string{"x-ratelimit-reset-tokens", "x-ratelimit-reset-requests"} {
		resetStr := headers.Get(header)
		if resetStr == "" {
			continue
		}
		// OpenAI reports resets as durations ("6m0s", "20ms").
		if d, err := time.ParseDuration(resetStr); err == nil && info.RetryAfter == 0 {
			info.RetryAfter = d
			break
		}
		if ts, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
			info.ResetTime = ts
			break
		}
	}

	if remaining := headers.Get("x-ratelimit-remaining-requests"); remaining != "" {
		_, _ = fmt.Sscanf(remaining, "%d", &info.RequestsRemaining)
	}
	if remaining := headers.Get("x-ratelimit-remaining-tokens"); remaining != "" {
		_, _ = fmt.Sscanf(remaining, "%d", &info.TokensRemaining)
	}

	return info
}

// ParseRetryAfter reads a Retry-After header given in seconds.
func ParseRetryAfter(headers http.Header) time.Duration {
	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}
