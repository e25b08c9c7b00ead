// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package learning

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/traylinx/switchAIAssist/internal/store"
)

// MockStore is a testify mock of store.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) RecordPrediction(ctx context.Context, rec *store.PredictionRecord) error {
	return m.Called(rec).Error(0)
}

func (m *MockStore) RecordCorrection(ctx context.Context, rec *store.CorrectionRecord) error {
	return m.Called(rec).Error(0)
}

func (m *MockStore) EnqueueTraining(ctx context.Context, ex *store.TrainingExample) error {
	return m.Called(ex).Error(0)
}

func (m *MockStore) LoadCorrections(ctx context.Context, limit int) ([]*store.CorrectionRecord, error) {
	args := m.Called(limit)
	return args.Get(0).([]*store.CorrectionRecord), args.Error(1)
}

func (m *MockStore) LoadExamples(ctx context.Context, onlyPending bool, limit int) ([]*store.TrainingExample, error) {
	args := m.Called(onlyPending, limit)
	return args.Get(0).([]*store.TrainingExample), args.Error(1)
}

func (m *MockStore) MarkExported(ctx context.Context, ids []int64) error {
	return m.Called(ids).Error(0)
}

func (m *MockStore) Stats(ctx context.Context, since time.Time) (*store.Stats, error) {
	args := m.Called(since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Stats), args.Error(1)
}

func (m *MockStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}
