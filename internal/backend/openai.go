// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// openAIAdapter talks to any OpenAI-compatible chat completions endpoint.
type openAIAdapter struct {
	spec   Spec
	url    string
	client *http.Client
}

func newOpenAIAdapter(spec Spec, client *http.Client) (*openAIAdapter, error) {
	baseURL := strings.TrimSuffix(spec.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &openAIAdapter{spec: spec, url: baseURL + "/chat/completions", client: client}, nil
}

func buildOpenAIPayload(model string, req *Request) ([]byte, error) {
	payload := []byte(`{"stream":false}`)
	var err error
	if payload, err = sjson.SetBytes(payload, "model", model); err != nil {
		return nil, err
	}
	idx := 0
	if req.SystemPrompt != "" {
		payload, _ = sjson.SetBytes(payload, "messages.0.role", "system")
		payload, _ = sjson.SetBytes(payload, "messages.0.content", req.SystemPrompt)
		idx++
	}
	payload, _ = sjson.SetBytes(payload, fmt.Sprintf("messages.%d.role", idx), "user")
	if payload, err = sjson.SetBytes(payload, fmt.Sprintf("messages.%d.content", idx), req.Prompt); err != nil {
		return nil, err
	}
	if req.Temperature != nil {
		payload, _ = sjson.SetBytes(payload, "temperature", *req.Temperature)
	}
	if req.MaxTokens > 0 {
		payload, _ = sjson.SetBytes(payload, "max_tokens", req.MaxTokens)
	}
	if req.JSON {
		payload, _ = sjson.SetBytes(payload, "response_format.type", "json_object")
	}
	return payload, nil
}

func (a *openAIAdapter) Call(ctx context.Context, req *Request) (Reply, error) {
	payload, err := buildOpenAIPayload(a.spec.Model, req)
	if err != nil {
		return Reply{}, fmt.Errorf("build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return Reply{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.spec.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.spec.APIKey)
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return Reply{}, err
	}
	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("openai backend %s: close response body error: %v", a.spec.Name, errClose)
		}
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Reply{}, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		log.Debugf("openai backend %s: status %d", a.spec.Name, httpResp.StatusCode)
		return Reply{}, newStatusError(httpResp, body)
	}

	if !gjson.ValidBytes(body) {
		return Reply{}, fmt.Errorf("%w: invalid JSON from %s", ErrMalformedReply, a.spec.Name)
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return Reply{}, fmt.Errorf("%w: no choices from %s", ErrMalformedReply, a.spec.Name)
	}

	return Reply{
		Kind: KindOpenAI,
		OpenAI: &OpenAIReply{
			Model:       gjson.GetBytes(body, "model").String(),
			Content:     content.String(),
			TotalTokens: int(gjson.GetBytes(body, "usage.total_tokens").Int()),
		},
	}, nil
}
