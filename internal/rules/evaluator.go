// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rules

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionEvaluator compiles and runs custom rule conditions.
type ConditionEvaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewConditionEvaluator creates a new condition evaluator.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{programs: make(map[string]*vm.Program)}
}

// Compile checks a condition and caches its program.
func (e *ConditionEvaluator) Compile(condition string) error {
	_, err := e.program(condition)
	return err
}

func (e *ConditionEvaluator) program(condition string) (*vm.Program, error) {
	e.mu.RLock()
	program, exists := e.programs[condition]
	e.mu.RUnlock()
	if exists {
		return program, nil
	}

	program, err := expr.Compile(condition, expr.Env(&MatchContext{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile condition '%s': %w", condition, err)
	}
	e.mu.Lock()
	e.programs[condition] = program
	e.mu.Unlock()
	return program, nil
}

// Evaluate runs condition against ctx. An empty condition is true.
func (e *ConditionEvaluator) Evaluate(condition string, ctx *MatchContext) (bool, error) {
	if condition == "" || condition == "true" {
		return true, nil
	}

	program, err := e.program(condition)
	if err != nil {
		return false, err
	}

	output, err := expr.Run(program, ctx)
	if err != nil {
		return false, fmt.Errorf("failed to run condition '%s': %w", condition, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition '%s' did not return a boolean", condition)
	}
	return result, nil
}

// Reset drops cached programs, used after a reload.
func (e *ConditionEvaluator) Reset() {
	e.mu.Lock()
	e.programs = make(map[string]*vm.Program)
	e.mu.Unlock()
}
