// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package neighbors implements the nearest-neighbor exemplar index used as
// the second stage of the classification cascade. Exemplars are grouped by
// intent and only ever appended; corrections are visible to the very next
// lookup.
package neighbors

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

const (
	// DefaultSimilarityFloor is the minimum similarity for an exemplar to vote.
	DefaultSimilarityFloor = 0.5

	// topK is the number of neighbors that vote.
	topK = 5

	// maxNonExactConfidence caps confidence for anything but an exact match.
	maxNonExactConfidence = 0.95

	positionalBonus = 0.1
	keywordBonus    = 1.0
)

// Exemplar is a stored (text, slots) reference under an intent.
type Exemplar struct {
	Intent intent.Intent
	Text   string
	Slots  intent.Slots

	normalized string
	tokens     []string
}

// Match is the outcome of a lookup.
type Match struct {
	Intent     intent.Intent
	Confidence float64
	Slots      intent.Slots
	Exact      bool

	// Neighbors is how many exemplars voted.
	Neighbors int
}

// Index is safe for concurrent use: lookups share a read lock and appends
// take the write lock.
type Index struct {
	mu        sync.RWMutex
	exemplars map[intent.Intent][]*Exemplar
	exact     map[string]*Exemplar
	size      int
	floor     float64
}

// New creates an empty index. A non-positive floor selects DefaultSimilarityFloor.
func New(floor float64) *Index {
	if floor <= 0 || floor >= 1 {
		floor = DefaultSimilarityFloor
	}
	return &Index{
		exemplars: make(map[intent.Intent][]*Exemplar),
		exact:     make(map[string]*Exemplar),
		floor:     floor,
	}
}

// Normalize lowercases, trims and collapses internal whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Tokenize splits normalized text into alphanumeric runs.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Append stores a new exemplar. Blank text is ignored. A later exemplar with
// the same normalized text takes over exact-match lookups.
func (idx *Index) Append(in intent.Intent, text string, slots intent.Slots) bool {
	normalized := Normalize(text)
	if normalized == "" {
		return false
	}
	ex := &Exemplar{
		Intent:     in,
		Text:       text,
		Slots:      slots.Clone(),
		normalized: normalized,
		tokens:     Tokenize(normalized),
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.exemplars[in] = append(idx.exemplars[in], ex)
	idx.exact[normalized] = ex
	idx.size++
	return true
}

// Size returns the total number of exemplars.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.size
}

// Counts returns the number of exemplars per intent.
func (idx *Index) Counts() map[intent.Intent]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[intent.Intent]int, len(idx.exemplars))
	for in, list := range idx.exemplars {
		out[in] = len(list)
	}
	return out
}

type scored struct {
	ex  *Exemplar
	sim float64
}

// Classify returns the best match for text, or nil when no exemplar clears the
// similarity floor.
func (idx *Index) Classify(text string) *Match {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if ex, ok := idx.exact[normalized]; ok {
		return &Match{Intent: ex.Intent, Confidence: 1.0, Slots: ex.Slots.Clone(), Exact: true, Neighbors: 1}
	}

	query := Tokenize(normalized)
	if len(query) == 0 {
		return nil
	}

	candidates := make([]scored, 0, topK*2)
	for _, list := range idx.exemplars {
		for _, ex := range list {
			sim := Similarity(query, ex.tokens)
			if sim > idx.floor {
				candidates = append(candidates, scored{ex: ex, sim: sim})
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	votes := make(map[intent.Intent]float64)
	total := 0.0
	for _, c := range candidates {
		votes[c.ex.Intent] += c.sim
		total += c.sim
	}

	var winner intent.Intent
	best := -1.0
	for _, in := range intent.All {
		if v, ok := votes[in]; ok && v > best {
			winner, best = in, v
		}
	}
	// intents outside the taxonomy can still be stored by corrections
	for in, v := range votes {
		if v > best {
			winner, best = in, v
		}
	}

	avg := total / float64(len(candidates))
	confidence := avg * (best / total)
	if confidence > maxNonExactConfidence {
		confidence = maxNonExactConfidence
	}

	return &Match{
		Intent:     winner,
		Confidence: intent.ClampConfidence(confidence),
		Slots:      intent.Slots{},
		Neighbors:  len(candidates),
	}
}
