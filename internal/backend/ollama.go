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

// ollamaAdapter communicates with a locally running Ollama instance
// (default: http://localhost:11434).
type ollamaAdapter struct {
	spec    Spec
	baseURL string
	client  *http.Client
}

func newOllamaAdapter(spec Spec, client *http.Client) *ollamaAdapter {
	baseURL := "http://localhost:11434"
	if spec.BaseURL != "" {
		baseURL = strings.TrimSuffix(spec.BaseURL, "/")
	}
	return &ollamaAdapter{spec: spec, baseURL: baseURL, client: client}
}

func (a *ollamaAdapter) Call(ctx context.Context, req *Request) (Reply, error) {
	payload := []byte(`{"stream":false}`)
	payload, _ = sjson.SetBytes(payload, "model", a.spec.Model)
	idx := 0
	if req.SystemPrompt != "" {
		payload, _ = sjson.SetBytes(payload, "messages.0.role", "system")
		payload, _ = sjson.SetBytes(payload, "messages.0.content", req.SystemPrompt)
		idx++
	}
	payload, _ = sjson.SetBytes(payload, fmt.Sprintf("messages.%d.role", idx), "user")
	payload, _ = sjson.SetBytes(payload, fmt.Sprintf("messages.%d.content", idx), req.Prompt)
	if req.Temperature != nil {
		payload, _ = sjson.SetBytes(payload, "options.temperature", *req.Temperature)
	}
	if req.MaxTokens > 0 {
		payload, _ = sjson.SetBytes(payload, "options.num_predict", req.MaxTokens)
	}
	if req.JSON {
		payload, _ = sjson.SetBytes(payload, "format", "json")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Reply{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Reply{}, newStatusError(resp, body)
	}
	if !gjson.ValidBytes(body) {
		return Reply{}, fmt.Errorf("%w: invalid JSON from ollama %s", ErrMalformedReply, a.spec.Name)
	}

	reply := &OllamaReply{
		Model:           gjson.GetBytes(body, "model").String(),
		Content:         gjson.GetBytes(body, "message.content").String(),
		PromptEvalCount: int(gjson.GetBytes(body, "prompt_eval_count").Int()),
		EvalCount:       int(gjson.GetBytes(body, "eval_count").Int()),
	}
	log.Debugf("Ollama response: model=%s, content_len=%d", reply.Model, len(reply.Content))

	return Reply{Kind: KindOllama, Ollama: reply}, nil
}
