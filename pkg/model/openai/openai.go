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

// Package openai implements model.LLM over the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Nitish-Garikoti/databahn/pkg/httpclient"
	"github.com/Nitish-Garikoti/databahn/pkg/model"
	"github.com/Nitish-Garikoti/databahn/pkg/observability"
	"github.com/Nitish-Garikoti/databahn/pkg/tool"
)

const (
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 4096
	defaultTimeout   = 60 * time.Second
)

// Config configures the OpenAI client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int

	// HTTPClient overrides the retrying client built from MaxRetries.
	HTTPClient *httpclient.Client
	Metrics    observability.Metrics
}

// Client is an OpenAI chat-completions model.
type Client struct {
	client      *openai.Client
	modelName   string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	metrics     observability.Metrics
}

// New creates a new OpenAI client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.New(
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = cfg.HTTPClient

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		modelName:   cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: wireTemperature(cfg.Temperature),
		timeout:     cfg.Timeout,
		metrics:     cfg.Metrics,
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string {
	return c.modelName
}

// Generate performs one chat completion.
func (c *Client) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	ctx, span := observability.Tracer().Start(ctx, observability.SpanLLMGenerate,
		trace.WithAttributes(
			attribute.String(observability.AttrModel, c.modelName),
			attribute.String(observability.AttrPhase, req.Phase),
			attribute.Int("databahn.llm.tools", len(req.Tools)),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req))
	duration := time.Since(start)

	if err != nil {
		err = c.classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.RecordLLMCall(ctx, req.Phase, observability.OutcomeError, duration, 0, 0)
		slog.Error("LLM call failed", "phase", req.Phase, "model", c.modelName,
			"retryable", model.IsRetryable(err), "error", err)
		return nil, err
	}

	out := parseResponse(resp)
	outcome := observability.OutcomeSuccess
	if !out.HasContent() && !out.HasToolCalls() {
		outcome = observability.OutcomeEmpty
	}
	c.metrics.RecordLLMCall(ctx, req.Phase, outcome, duration, out.Usage.PromptTokens, out.Usage.CompletionTokens)
	span.SetAttributes(
		attribute.Int("databahn.llm.tool_calls", len(out.ToolCalls)),
		attribute.Int("databahn.llm.prompt_tokens", out.Usage.PromptTokens),
		attribute.Int("databahn.llm.completion_tokens", out.Usage.CompletionTokens),
	)
	return out, nil
}

func (c *Client) buildRequest(req *model.Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       c.modelName,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if len(req.Tools) > 0 {
		apiReq.Tools = convertTools(req.Tools)
		apiReq.ToolChoice = "auto"
	}
	return apiReq
}

// wireTemperature maps 0 to the smallest positive float32, which go-openai
// still sends; a literal zero is omitted from the request.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func convertTools(tools []tool.Schema) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func parseResponse(resp openai.ChatCompletionResponse) *model.Response {
	out := &model.Response{
		Usage: model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	out.FinishReason = string(choice.FinishReason)
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, tool.CallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func (c *Client) classify(err error) error {
	const op = "openai chat completion"

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return model.NewError(op, model.KindForStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return model.NewError(op, model.KindForStatus(reqErr.HTTPStatusCode), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewError(op, model.Retryable, fmt.Errorf("timed out after %v: %w", c.timeout, err))
	}
	return model.Classify(op, err)
}

var _ model.LLM = (*Client)(nil)
