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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/Nitish-Garikoti/databahn/pkg/httpclient"
)

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// MaxInputTokens truncates inputs longer than this many tokens.
	// Zero disables truncation.
	MaxInputTokens int

	HTTPClient *httpclient.Client
}

// OpenAI embeds text with the OpenAI embeddings endpoint.
type OpenAI struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	truncator *Truncator
}

// NewOpenAI builds an embedder from cfg.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.New(
			httpclient.WithMaxRetries(3),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = cfg.HTTPClient

	e := &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
	if cfg.MaxInputTokens > 0 {
		e.truncator = NewTruncator(cfg.MaxInputTokens)
	}
	return e, nil
}

// Model returns the embedding model name.
func (e *OpenAI) Model() string {
	return e.model
}

// Embed embeds a single text.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := texts
	if e.truncator != nil {
		input = make([]string, len(texts))
		for i, t := range texts {
			input[i] = e.truncator.Truncate(t)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: input,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding request timed out after %v: %w", e.timeout, err)
		}
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty embedding for input %d", i)
		}
	}
	return out, nil
}
