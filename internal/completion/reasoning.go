// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package completion

import (
	"regexp"
	"strings"
)

var (
	reasoningBlock = regexp.MustCompile(`(?is)<(?:think|thinking|reasoning)>.*?</(?:think|thinking|reasoning)>`)
	reasoningClose = regexp.MustCompile(`(?is)</(?:think|thinking|reasoning)>`)
	reasoningOpen  = regexp.MustCompile(`(?is)<(?:think|thinking|reasoning)>`)
)

// StripReasoning removes reasoning markup that some models wrap around their
// answer. It handles closed blocks, a dangling close tag whose opener was
// dropped by the server, and an unterminated opener at the end.
func StripReasoning(content string) string {
	out := reasoningBlock.ReplaceAllString(content, "")

	if locs := reasoningClose.FindAllStringIndex(out, -1); len(locs) > 0 {
		out = out[locs[len(locs)-1][1]:]
	}
	if loc := reasoningOpen.FindStringIndex(out); loc != nil {
		out = out[:loc[0]]
	}
	return strings.TrimSpace(out)
}
