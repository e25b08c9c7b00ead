// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rules is the deterministic floor of the classification cascade.
// A fixed ordered table of keyword patterns maps text to intents at a fixed
// confidence; operator-defined YAML rules with optional expr conditions are
// consulted first and hot-reloaded from disk.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchAIAssist/internal/intent"
	"gopkg.in/yaml.v3"
)

// maxRuleFileSize guards against oversized rule files.
const maxRuleFileSize = 1 << 20

// Classifier evaluates custom rules, then the built-in table, then falls back
// to none. It never returns an error from Classify.
type Classifier struct {
	dir       string
	custom    []*CustomRule
	evaluator *ConditionEvaluator
	mu        sync.RWMutex
	now       func() time.Time

	// watcher for hot-reloading
	watcher     *fsnotify.Watcher
	stopWatcher chan struct{}
}

// New creates a classifier. An empty dir disables custom rules.
func New(dir string) *Classifier {
	return &Classifier{
		dir:         dir,
		evaluator:   NewConditionEvaluator(),
		now:         time.Now,
		stopWatcher: make(chan struct{}),
	}
}

// Classify returns the first matching rule's intent at RuleConfidence, or
// none at FallbackConfidence.
func (c *Classifier) Classify(text string) (m Match) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("rules: panic while classifying, using fallback: %v", r)
			m = Match{Intent: intent.None, Confidence: FallbackConfidence}
		}
	}()

	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Match{Intent: intent.None, Confidence: FallbackConfidence}
	}

	if rule := c.matchCustom(text, lower); rule != nil {
		in, _ := intent.Parse(rule.Intent)
		return Match{Intent: in, Confidence: RuleConfidence, Rule: rule.Name}
	}
	if in, name, ok := matchBuiltin(lower); ok {
		return Match{Intent: in, Confidence: RuleConfidence, Rule: name}
	}
	return Match{Intent: intent.None, Confidence: FallbackConfidence}
}

func (c *Classifier) matchCustom(text, lower string) *CustomRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.custom) == 0 {
		return nil
	}

	ctx := newMatchContext(text, lower, strings.Fields(lower), c.now())
	for _, rule := range c.custom {
		if rule.re != nil && !rule.re.MatchString(text) {
			continue
		}
		ok, err := c.evaluator.Evaluate(rule.Condition, ctx)
		if err != nil {
			log.Warnf("Failed to evaluate condition for rule %s: %v", rule.Name, err)
			continue
		}
		if ok {
			return rule
		}
	}
	return nil
}

// LoadRules (re)loads every *.yaml/*.yml file under the rules directory.
// Invalid files are logged and skipped.
func (c *Classifier) LoadRules() error {
	if c.dir == "" {
		return nil
	}
	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		if err := os.MkdirAll(c.dir, 0755); err != nil {
			return fmt.Errorf("failed to create rules directory: %w", err)
		}
	}

	absDir, err := filepath.Abs(c.dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path of rules directory: %w", err)
	}

	loaded := make([]*CustomRule, 0)
	err = filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			log.Warnf("Skipping symlink in rules directory: %s", path)
			return nil
		}
		absPath, err := filepath.Abs(path)
		if err != nil || !strings.HasPrefix(absPath, absDir) {
			log.Warnf("Skipping file outside rules directory: %s", path)
			return nil
		}
		if info.IsDir() || !(strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")) {
			return nil
		}
		if info.Size() > maxRuleFileSize {
			log.Warnf("Skipping large rule file: %s (%d bytes)", path, info.Size())
			return nil
		}

		rules, err := c.parseFile(path)
		if err != nil {
			log.Errorf("Failed to load rule file %s: %v", path, err)
			return nil
		}
		loaded = append(loaded, rules...)
		return nil
	})
	if err != nil {
		return err
	}

	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].Priority > loaded[j].Priority
	})

	c.mu.Lock()
	c.custom = loaded
	c.mu.Unlock()
	log.Infof("Loaded %d custom classification rules", len(loaded))
	return nil
}

// parseFile reads a single rule or a list of rules from path.
func (c *Classifier) parseFile(path string) ([]*CustomRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []*CustomRule
	if err := yaml.Unmarshal(data, &list); err != nil {
		var single CustomRule
		if errSingle := yaml.Unmarshal(data, &single); errSingle != nil {
			return nil, errSingle
		}
		list = []*CustomRule{&single}
	}

	out := make([]*CustomRule, 0, len(list))
	for _, rule := range list {
		if rule == nil {
			continue
		}
		if err := c.prepare(rule); err != nil {
			log.Warnf("Skipping rule %q in %s: %v", rule.Name, path, err)
			continue
		}
		rule.FilePath = path
		out = append(out, rule)
	}
	return out, nil
}

func (c *Classifier) prepare(rule *CustomRule) error {
	if !intent.Valid(rule.Intent) {
		return fmt.Errorf("unknown intent %q", rule.Intent)
	}
	if rule.Pattern == "" && rule.Condition == "" {
		return fmt.Errorf("rule needs a pattern or a condition")
	}
	if rule.Pattern != "" {
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return fmt.Errorf("bad pattern: %w", err)
		}
		rule.re = re
	}
	if rule.Condition != "" {
		if err := c.evaluator.Compile(rule.Condition); err != nil {
			return err
		}
	}
	if rule.Name == "" {
		rule.Name = rule.Intent + ":" + rule.Pattern
	}
	return nil
}

// Rules returns a copy of the loaded custom rules.
func (c *Classifier) Rules() []CustomRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CustomRule, 0, len(c.custom))
	for _, r := range c.custom {
		out = append(out, *r)
	}
	return out
}

// StartWatcher starts a background fsnotify watcher for hot-reloading rules.
func (c *Classifier) StartWatcher() error {
	if c.dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	c.watcher = watcher

	err = filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Infof("Rules directory changed (%s), reloading rules...", event.Name)
					// let editors finish writing
					time.Sleep(100 * time.Millisecond)
					c.evaluator.Reset()
					if err := c.LoadRules(); err != nil {
						log.Errorf("Failed to reload rules: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("Rules watcher error: %v", err)
			case <-c.stopWatcher:
				return
			}
		}
	}()

	return nil
}

// StopWatcher stops the file watcher.
func (c *Classifier) StopWatcher() {
	if c.watcher != nil {
		select {
		case <-c.stopWatcher:
			// Channel already closed
		default:
			close(c.stopWatcher)
		}
		c.watcher.Close()
		c.watcher = nil
	}
}
