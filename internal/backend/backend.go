// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package backend defines text-completion backends and the adapters that talk
// to them. Every adapter returns a Reply tagged with its kind, and Complete
// normalizes any Reply into the common Result shape used by the router.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"
)

// Kind identifies the wire protocol of a backend.
type Kind string

const (
	// KindOpenAI is any OpenAI-compatible /chat/completions endpoint.
	KindOpenAI Kind = "openai"
	// KindOllama is a local Ollama daemon speaking /api/chat.
	KindOllama Kind = "ollama"
	// KindAnthropic is the Anthropic Messages API.
	KindAnthropic Kind = "anthropic"
	// KindGemini is the Google Gemini API.
	KindGemini Kind = "gemini"
)

// Role marks a backend as the preferred pick for a complexity level.
type Role string

const (
	RoleNone    Role = ""
	RoleCapable Role = "capable"
	RoleFast    Role = "fast"
)

// Spec is the static description of a backend.
type Spec struct {
	Name    string
	Kind    Kind
	BaseURL string
	APIKey  string
	Model   string

	// Priority ranks backends; lower is preferred.
	Priority int

	// MaxTokens caps completion length when a request does not set one.
	MaxTokens int

	// RequestsPerMinute and TokensPerMinute form the rate budget. Zero means unlimited.
	RequestsPerMinute int
	TokensPerMinute   int

	CostWeight float64
	Role       Role
}

// HasCredentials reports whether the backend can be called at all.
// Local Ollama daemons need no key.
func (s Spec) HasCredentials() bool {
	if s.Kind == KindOllama {
		return true
	}
	return strings.TrimSpace(s.APIKey) != ""
}

// Request is a single completion request.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int

	// JSON asks the backend for a JSON object response when it supports it.
	JSON bool
}

// Result is the normalized completion outcome.
type Result struct {
	Content      string
	Model        string
	TokensUsed   int
	ResponseTime time.Duration
}

// OpenAIReply is the subset of a chat.completion body the router needs.
type OpenAIReply struct {
	Model       string
	Content     string
	TotalTokens int
}

// OllamaReply is the subset of an /api/chat body the router needs.
type OllamaReply struct {
	Model           string
	Content         string
	PromptEvalCount int
	EvalCount       int
}

// Reply is a tagged union of raw backend responses. Exactly one field matching
// Kind is set.
type Reply struct {
	Kind      Kind
	OpenAI    *OpenAIReply
	Ollama    *OllamaReply
	Anthropic *anthropic.Message
	Gemini    *genai.GenerateContentResponse
}

// Normalize extracts content, model and token usage from whichever variant is set.
func (r Reply) Normalize() (content, model string, tokens int, err error) {
	switch r.Kind {
	case KindOpenAI:
		if r.OpenAI == nil {
			break
		}
		return r.OpenAI.Content, r.OpenAI.Model, r.OpenAI.TotalTokens, nil
	case KindOllama:
		if r.Ollama == nil {
			break
		}
		return r.Ollama.Content, r.Ollama.Model, r.Ollama.PromptEvalCount + r.Ollama.EvalCount, nil
	case KindAnthropic:
		if r.Anthropic == nil {
			break
		}
		var sb strings.Builder
		for _, block := range r.Anthropic.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		usage := r.Anthropic.Usage
		return sb.String(), string(r.Anthropic.Model), int(usage.InputTokens + usage.OutputTokens), nil
	case KindGemini:
		if r.Gemini == nil {
			break
		}
		tokens := 0
		if r.Gemini.UsageMetadata != nil {
			tokens = int(r.Gemini.UsageMetadata.TotalTokenCount)
		}
		return r.Gemini.Text(), r.Gemini.ModelVersion, tokens, nil
	}
	return "", "", 0, fmt.Errorf("backend: empty %q reply", r.Kind)
}

// Adapter issues a raw call against one backend.
type Adapter interface {
	Call(ctx context.Context, req *Request) (Reply, error)
}

// Backend pairs a Spec with the adapter that serves it.
type Backend struct {
	Spec    Spec
	adapter Adapter
}

// New builds a backend for spec. The http client is shared by raw-HTTP adapters;
// nil selects a default client.
func New(ctx context.Context, spec Spec, client *http.Client) (*Backend, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("backend: name is required")
	}
	if spec.Model == "" {
		return nil, fmt.Errorf("backend %s: model is required", spec.Name)
	}
	if client == nil {
		client = &http.Client{}
	}

	var (
		adapter Adapter
		err     error
	)
	switch spec.Kind {
	case KindOpenAI, "":
		spec.Kind = KindOpenAI
		adapter, err = newOpenAIAdapter(spec, client)
	case KindOllama:
		adapter = newOllamaAdapter(spec, client)
	case KindAnthropic:
		adapter = newAnthropicAdapter(spec, client)
	case KindGemini:
		adapter, err = newGeminiAdapter(ctx, spec, client)
	default:
		return nil, fmt.Errorf("backend %s: unknown kind %q", spec.Name, spec.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", spec.Name, err)
	}
	return &Backend{Spec: spec, adapter: adapter}, nil
}

// NewWithAdapter wraps a custom adapter, used by tests and embedders.
func NewWithAdapter(spec Spec, adapter Adapter) *Backend {
	return &Backend{Spec: spec, adapter: adapter}
}

// Complete calls the backend and normalizes the reply. When the backend reports
// no usage, token usage is estimated from prompt and content.
func (b *Backend) Complete(ctx context.Context, req *Request) (*Result, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = b.Spec.MaxTokens
	}

	start := time.Now()
	reply, err := b.adapter.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	content, model, tokens, err := reply.Normalize()
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = b.Spec.Model
	}
	if tokens <= 0 {
		tokens = EstimateTokens(req.SystemPrompt) + EstimateTokens(req.Prompt) + EstimateTokens(content)
	}

	return &Result{
		Content:      content,
		Model:        model,
		TokensUsed:   tokens,
		ResponseTime: time.Since(start),
	}, nil
}
