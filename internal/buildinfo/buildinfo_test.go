// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buildinfo

import "testing"

func TestString(t *testing.T) {
	old := [3]string{Version, Commit, BuildDate}
	defer func() { Version, Commit, BuildDate = old[0], old[1], old[2] }()

	Version, Commit, BuildDate = "1.2.0", "abc123", "2026-10-19"
	if got, want := String(), "switchAIAssist 1.2.0 (commit abc123, built 2026-10-19)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
