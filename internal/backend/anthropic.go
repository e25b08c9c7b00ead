// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package backend

import (
	"context"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 1024

// anthropicAdapter calls the Messages API through the official SDK. SDK-level
// retries are disabled; the router owns retry policy.
type anthropicAdapter struct {
	spec   Spec
	client anthropic.Client
}

func newAnthropicAdapter(spec Spec, httpClient *http.Client) *anthropicAdapter {
	opts := []option.RequestOption{
		option.WithAPIKey(spec.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(httpClient),
	}
	if spec.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(spec.BaseURL))
	}
	return &anthropicAdapter{spec: spec, client: anthropic.NewClient(opts...)}
}

func (a *anthropicAdapter) Call(ctx context.Context, req *Request) (Reply, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.spec.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Kind: KindAnthropic, Anthropic: message}, nil
}
