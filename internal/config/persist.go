// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// UpdateScalar rewrites a single nested scalar in configFile while keeping
// comments and key order intact.
func UpdateScalar(configFile string, path []string, value string) error {
	if len(path) == 0 {
		return fmt.Errorf("config: empty key path")
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	var root yaml.Node
	if err = yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("invalid yaml document structure")
	}
	node := root.Content[0]
	for i, key := range path {
		v := mapValue(node, key)
		if i == len(path)-1 {
			v.Kind = yaml.ScalarNode
			v.Tag = "!!str"
			v.Value = value
			break
		}
		if v.Kind != yaml.MappingNode {
			v.Kind = yaml.MappingNode
			v.Tag = "!!map"
		}
		node = v
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err = enc.Encode(&root); err != nil {
		_ = enc.Close()
		return err
	}
	if err = enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(configFile, normalizeCommentIndentation(buf.Bytes()), 0o600)
}

// mapValue finds the value node for key, appending an empty one when absent.
func mapValue(mapNode *yaml.Node, key string) *yaml.Node {
	if mapNode.Kind != yaml.MappingNode {
		mapNode.Kind = yaml.MappingNode
		mapNode.Tag = "!!map"
		mapNode.Content = nil
	}
	for i := 0; i+1 < len(mapNode.Content); i += 2 {
		if mapNode.Content[i].Value == key {
			return mapNode.Content[i+1]
		}
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	v := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
	mapNode.Content = append(mapNode.Content, k, v)
	return v
}

// normalizeCommentIndentation left-aligns standalone comment lines.
func normalizeCommentIndentation(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		trimmed := bytes.TrimLeft(line, " \t")
		if len(trimmed) == 0 || trimmed[0] != '#' || len(trimmed) == len(line) {
			continue
		}
		lines[i] = append([]byte(nil), trimmed...)
	}
	return bytes.Join(lines, []byte("\n"))
}
