// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

// SeedExample is one labeled utterance from a seed file.
type SeedExample struct {
	Text   string         `yaml:"text"`
	Intent string         `yaml:"intent"`
	Slots  map[string]any `yaml:"slots,omitempty"`
}

// SeedIntent groups plain example utterances under one intent.
type SeedIntent struct {
	Name     string   `yaml:"name"`
	Examples []string `yaml:"examples"`
}

// SeedFile is the on-disk dataset format. Both sections are optional.
type SeedFile struct {
	Intents  []SeedIntent  `yaml:"intents"`
	Examples []SeedExample `yaml:"examples"`
}

// LoadSeed reads a YAML dataset and returns its examples flattened. Entries
// with an unknown intent or empty text are skipped with a warning.
func LoadSeed(path string) ([]SeedExample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML.
func ParseSeed(data []byte) ([]SeedExample, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	var out []SeedExample
	for _, group := range file.Intents {
		for _, text := range group.Examples {
			out = appendSeed(out, SeedExample{Text: text, Intent: group.Name})
		}
	}
	for _, ex := range file.Examples {
		out = appendSeed(out, ex)
	}
	return out, nil
}

func appendSeed(out []SeedExample, ex SeedExample) []SeedExample {
	ex.Text = strings.TrimSpace(ex.Text)
	in, ok := intent.Parse(ex.Intent)
	if ex.Text == "" || !ok {
		log.Warnf("skipping seed example %q: unknown intent %q or empty text", ex.Text, ex.Intent)
		return out
	}
	ex.Intent = string(in)
	return append(out, ex)
}
