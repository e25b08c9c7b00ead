// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	closed  atomic.Bool
}

// Open connects to driver ("sqlite" or "postgres") at dsn and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		dialect = DialectSQLite
		if dsn == "" {
			return nil, fmt.Errorf("store: database path cannot be empty")
		}
		if path := strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:"); path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("store: failed to create database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("store: failed to open database: %w", err)
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case "postgres", "postgresql", "pgx":
		dialect = DialectPostgres
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("store: failed to open database: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	s := NewWithDB(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Infof("store initialized (driver: %s)", dialect)
	return s, nil
}

// NewWithDB wraps an existing connection without migrating it.
func NewWithDB(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates missing tables and indexes.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

// RecordPrediction stores rec, assigning an ID and timestamp when absent.
func (s *SQLStore) RecordPrediction(ctx context.Context, rec *PredictionRecord) error {
	if rec == nil {
		return fmt.Errorf("store: prediction cannot be nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.exec(ctx, `
	INSERT INTO predictions (
		id, created_at, text, intent, confidence, source, needs_confirmation,
		llm_fallback, backend, latency_ms, cache_hit, slots, expected
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC(),
		rec.Text,
		rec.Intent,
		rec.Confidence,
		rec.Source,
		boolToInt(rec.NeedsConfirmation),
		boolToInt(rec.LLMFallback),
		rec.Backend,
		rec.LatencyMs,
		boolToInt(rec.CacheHit),
		encodeSlots(rec.Slots),
		rec.Expected,
	)
	if err != nil {
		return fmt.Errorf("store: failed to insert prediction: %w", err)
	}
	return nil
}

// RecordCorrection stores rec, assigning an ID and timestamp when absent.
func (s *SQLStore) RecordCorrection(ctx context.Context, rec *CorrectionRecord) error {
	if rec == nil {
		return fmt.Errorf("store: correction cannot be nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.exec(ctx, `
	INSERT INTO corrections (
		id, created_at, text, original_intent, original_confidence, corrected_intent,
		corrected_slots, predicted_slots, user_id, correction_type, applied, priority
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC(),
		rec.Text,
		rec.OriginalIntent,
		rec.OriginalConfidence,
		rec.CorrectedIntent,
		encodeSlots(rec.CorrectedSlots),
		encodeSlots(rec.PredictedSlots),
		rec.UserID,
		rec.CorrectionType,
		boolToInt(rec.Applied),
		rec.Priority,
	)
	if err != nil {
		return fmt.Errorf("store: failed to insert correction: %w", err)
	}
	return nil
}

// EnqueueTraining stores ex and sets its ID.
func (s *SQLStore) EnqueueTraining(ctx context.Context, ex *TrainingExample) error {
	if ex == nil {
		return fmt.Errorf("store: training example cannot be nil")
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}

	err := s.queryRow(ctx, `
	INSERT INTO training_examples (created_at, text, intent, slots, priority, source, exported)
	VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		ex.CreatedAt.UTC(),
		ex.Text,
		ex.Intent,
		encodeSlots(ex.Slots),
		ex.Priority,
		ex.Source,
		boolToInt(ex.Exported),
	).Scan(&ex.ID)
	if err != nil {
		return fmt.Errorf("store: failed to insert training example: %w", err)
	}
	return nil
}

// LoadCorrections returns corrections newest first.
func (s *SQLStore) LoadCorrections(ctx context.Context, limit int) ([]*CorrectionRecord, error) {
	q := `
	SELECT id, created_at, text, original_intent, original_confidence, corrected_intent,
	       corrected_slots, predicted_slots, user_id, correction_type, applied, priority
	FROM corrections
	ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query corrections: %w", err)
	}
	defer rows.Close()

	var out []*CorrectionRecord
	for rows.Next() {
		var rec CorrectionRecord
		var corrected, predicted sql.NullString
		var applied int
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Text, &rec.OriginalIntent,
			&rec.OriginalConfidence, &rec.CorrectedIntent, &corrected, &predicted,
			&rec.UserID, &rec.CorrectionType, &applied, &rec.Priority); err != nil {
			log.Warnf("store: failed to scan correction: %v", err)
			continue
		}
		rec.CorrectedSlots = decodeSlots(corrected)
		rec.PredictedSlots = decodeSlots(predicted)
		rec.Applied = applied == 1
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating corrections: %w", err)
	}
	return out, nil
}

// LoadExamples returns training examples, highest priority first.
func (s *SQLStore) LoadExamples(ctx context.Context, onlyPending bool, limit int) ([]*TrainingExample, error) {
	q := `
	SELECT id, created_at, text, intent, slots, priority, source, exported
	FROM training_examples`
	var args []any
	if onlyPending {
		q += " WHERE exported = 0"
	}
	q += " ORDER BY priority DESC, id ASC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query training examples: %w", err)
	}
	defer rows.Close()

	var out []*TrainingExample
	for rows.Next() {
		var ex TrainingExample
		var slots sql.NullString
		var exported int
		if err := rows.Scan(&ex.ID, &ex.CreatedAt, &ex.Text, &ex.Intent, &slots,
			&ex.Priority, &ex.Source, &exported); err != nil {
			log.Warnf("store: failed to scan training example: %v", err)
			continue
		}
		ex.Slots = decodeSlots(slots)
		ex.Exported = exported == 1
		out = append(out, &ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating training examples: %w", err)
	}
	return out, nil
}

// MarkExported flags the given examples as exported.
func (s *SQLStore) MarkExported(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.exec(ctx, "UPDATE training_examples SET exported = 1 WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("store: failed to mark examples exported: %w", err)
	}
	return nil
}

// Stats aggregates predictions and corrections recorded at or after since.
func (s *SQLStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	since = since.UTC()
	st := &Stats{
		Since:    since,
		BySource: make(map[string]int64),
		ByIntent: make(map[string]*IntentStats),
	}

	err := s.queryRow(ctx, `
	SELECT COUNT(*),
	       COALESCE(SUM(cache_hit), 0),
	       COALESCE(SUM(llm_fallback), 0),
	       COALESCE(AVG(latency_ms), 0),
	       COALESCE(AVG(confidence), 0)
	FROM predictions WHERE created_at >= ?`, since).
		Scan(&st.Predictions, &st.CacheHits, &st.Fallbacks, &st.AvgLatencyMs, &st.AvgConfidence)
	if err != nil {
		return nil, fmt.Errorf("store: failed to get prediction totals: %w", err)
	}

	var correct int64
	err = s.queryRow(ctx, `
	SELECT COUNT(*),
	       COALESCE(SUM(CASE WHEN expected = intent THEN 1 ELSE 0 END), 0)
	FROM predictions WHERE expected <> '' AND created_at >= ?`, since).
		Scan(&st.Evaluations, &correct)
	if err != nil {
		return nil, fmt.Errorf("store: failed to get evaluation totals: %w", err)
	}
	if st.Evaluations > 0 {
		st.EvaluationAccuracy = float64(correct) / float64(st.Evaluations)
	}

	if err := s.groupCounts(ctx, `
	SELECT source, COUNT(*) FROM predictions
	WHERE created_at >= ? GROUP BY source`, since, func(key string, n int64, _ float64) {
		st.BySource[key] = n
	}); err != nil {
		return nil, err
	}

	if err := s.groupCounts(ctx, `
	SELECT intent, COUNT(*), COALESCE(AVG(confidence), 0) FROM predictions
	WHERE created_at >= ? GROUP BY intent`, since, func(key string, n int64, avg float64) {
		st.ByIntent[key] = &IntentStats{Intent: key, Predictions: n, AvgConfidence: avg}
	}); err != nil {
		return nil, err
	}

	if err := s.groupCounts(ctx, `
	SELECT original_intent, COUNT(*) FROM corrections
	WHERE created_at >= ? GROUP BY original_intent`, since, func(key string, n int64, _ float64) {
		is, ok := st.ByIntent[key]
		if !ok {
			is = &IntentStats{Intent: key}
			st.ByIntent[key] = is
		}
		is.Corrections = n
		st.Corrections += n
	}); err != nil {
		return nil, err
	}

	for _, is := range st.ByIntent {
		is.Accuracy = accuracy(is.Predictions, is.Corrections)
	}
	st.Accuracy = accuracy(st.Predictions, st.Corrections)

	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM training_examples WHERE exported = 0").Scan(&st.PendingTraining); err != nil {
		return nil, fmt.Errorf("store: failed to count pending training examples: %w", err)
	}
	return st, nil
}

// groupCounts runs a "key, count[, avg]" aggregate and feeds each row to fn.
func (s *SQLStore) groupCounts(ctx context.Context, q string, since time.Time, fn func(string, int64, float64)) error {
	rows, err := s.query(ctx, q, since)
	if err != nil {
		return fmt.Errorf("store: aggregate query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("store: aggregate query failed: %w", err)
	}
	for rows.Next() {
		var key string
		var n int64
		var avg float64
		dest := []any{&key, &n}
		if len(cols) > 2 {
			dest = append(dest, &avg)
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("store: failed to scan aggregate row: %w", err)
		}
		fn(key, n, avg)
	}
	return rows.Err()
}

// Prune deletes predictions and exported training examples older than before.
// Corrections are kept because they seed the nearest-neighbor index.
func (s *SQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	before = before.UTC()
	var total int64
	for _, q := range []string{
		"DELETE FROM predictions WHERE created_at < ?",
		"DELETE FROM training_examples WHERE exported = 1 AND created_at < ?",
	} {
		res, err := s.exec(ctx, q, before)
		if err != nil {
			return total, fmt.Errorf("store: prune failed: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	if total > 0 {
		log.Infof("store: pruned %d records older than %s", total, before.Format(time.RFC3339))
	}
	return total, nil
}

// Close releases the connection. Further calls return ErrClosed.
func (s *SQLStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: failed to close database: %w", err)
	}
	return nil
}

func accuracy(predictions, corrections int64) float64 {
	if predictions <= 0 {
		return 0
	}
	a := 1 - float64(corrections)/float64(predictions)
	if a < 0 {
		return 0
	}
	return a
}

func encodeSlots(slots intent.Slots) any {
	if len(slots) == 0 {
		return nil
	}
	data, err := json.Marshal(slots)
	if err != nil {
		log.Warnf("store: failed to marshal slots: %v", err)
		return nil
	}
	return string(data)
}

func decodeSlots(raw sql.NullString) intent.Slots {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var slots intent.Slots
	if err := json.Unmarshal([]byte(raw.String), &slots); err != nil {
		log.Warnf("store: failed to unmarshal slots: %v", err)
		return nil
	}
	return slots
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
