// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package neighbors

import (
	"math"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

// Similarity scores two token lists in [0,1].
//
// Each query token matched to an unused identical exemplar token adds 1 plus a
// positional bonus that shrinks with the distance between their positions.
// A fixed bonus applies when both texts contain a keyword of the same intent.
// The total is divided by the longer token count and scaled by a mild length
// ratio penalty.
func Similarity(query, exemplar []string) float64 {
	if len(query) == 0 || len(exemplar) == 0 {
		return 0
	}
	longer := math.Max(float64(len(query)), float64(len(exemplar)))
	shorter := math.Min(float64(len(query)), float64(len(exemplar)))

	used := make([]bool, len(exemplar))
	score := 0.0
	for i, qt := range query {
		for j, et := range exemplar {
			if used[j] || qt != et {
				continue
			}
			used[j] = true
			distance := math.Abs(float64(i - j))
			score += 1 + positionalBonus*(1-distance/longer)
			break
		}
	}

	if sharesIntentKeyword(query, exemplar) {
		score += keywordBonus
	}

	sim := score / longer
	sim *= 0.8 + 0.2*(shorter/longer)
	return math.Max(0, math.Min(1, sim))
}

func sharesIntentKeyword(a, b []string) bool {
	seen := make(map[intent.Intent]bool)
	for _, tok := range a {
		for _, in := range intent.KeywordIntents(tok) {
			seen[in] = true
		}
	}
	if len(seen) == 0 {
		return false
	}
	for _, tok := range b {
		for _, in := range intent.KeywordIntents(tok) {
			if seen[in] {
				return true
			}
		}
	}
	return false
}
