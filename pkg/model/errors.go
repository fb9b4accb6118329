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

package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Nitish-Garikoti/databahn/pkg/httpclient"
)

// ErrorKind separates failures worth retrying from permanent ones.
type ErrorKind int

const (
	Fatal ErrorKind = iota
	Retryable
)

func (k ErrorKind) String() string {
	if k == Retryable {
		return "retryable"
	}
	return "fatal"
}

// Error is a classified model or provider failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with an explicit kind.
func NewError(op string, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classify wraps err as *Error, inferring its kind. Deadlines and
// exhausted HTTP retries are retryable; everything else is fatal. An
// already classified error is returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return err
	}
	kind := Fatal
	if errors.Is(err, context.DeadlineExceeded) || httpclient.IsRetryable(err) {
		kind = Retryable
	}
	return NewError(op, kind, err)
}

// KindForStatus classifies an HTTP status code.
func KindForStatus(status int) ErrorKind {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return Retryable
	}
	return Fatal
}

// IsRetryable reports whether err is a retryable failure.
func IsRetryable(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == Retryable
	}
	return errors.Is(err, context.DeadlineExceeded) || httpclient.IsRetryable(err)
}
