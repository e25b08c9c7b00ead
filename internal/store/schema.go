// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported databases.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

func (d Dialect) schema() []string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == DialectPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			text TEXT NOT NULL,
			intent TEXT NOT NULL,
			confidence REAL NOT NULL,
			source TEXT NOT NULL,
			needs_confirmation INTEGER NOT NULL DEFAULT 0,
			llm_fallback INTEGER NOT NULL DEFAULT 0,
			backend TEXT NOT NULL DEFAULT '',
			latency_ms INTEGER NOT NULL DEFAULT 0,
			cache_hit INTEGER NOT NULL DEFAULT 0,
			slots TEXT,
			expected TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_intent ON predictions(intent)`,
		`CREATE TABLE IF NOT EXISTS corrections (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			text TEXT NOT NULL,
			original_intent TEXT NOT NULL,
			original_confidence REAL NOT NULL,
			corrected_intent TEXT NOT NULL,
			corrected_slots TEXT,
			predicted_slots TEXT,
			user_id TEXT NOT NULL DEFAULT '',
			correction_type TEXT NOT NULL DEFAULT '',
			applied INTEGER NOT NULL DEFAULT 0,
			priority INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_corrections_created_at ON corrections(created_at)`,
		`CREATE TABLE IF NOT EXISTS training_examples (
			id ` + serial + `,
			created_at TIMESTAMP NOT NULL,
			text TEXT NOT NULL,
			intent TEXT NOT NULL,
			slots TEXT,
			priority INTEGER NOT NULL DEFAULT 1,
			source TEXT NOT NULL DEFAULT '',
			exported INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_training_pending ON training_examples(exported, priority)`,
	}
}
