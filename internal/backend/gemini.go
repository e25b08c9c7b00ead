// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package backend

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// geminiAdapter calls generateContent through the GenAI SDK.
type geminiAdapter struct {
	spec   Spec
	client *genai.Client
}

func newGeminiAdapter(ctx context.Context, spec Spec, httpClient *http.Client) (*geminiAdapter, error) {
	cfg := &genai.ClientConfig{
		APIKey:     spec.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if spec.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: spec.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &geminiAdapter{spec: spec, client: client}, nil
}

func (a *geminiAdapter) Call(ctx context.Context, req *Request) (Reply, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.spec.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return Reply{}, err
	}
	if len(resp.Candidates) == 0 {
		return Reply{}, fmt.Errorf("%w: no candidates from %s", ErrMalformedReply, a.spec.Name)
	}
	return Reply{Kind: KindGemini, Gemini: resp}, nil
}
