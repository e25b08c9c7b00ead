// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package buildinfo holds release metadata stamped into the binary.
package buildinfo

import "fmt"

// Set by cmd/server from its ldflags-overridable variables.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// String renders the metadata for startup banners and health output.
func String() string {
	return fmt.Sprintf("switchAIAssist %s (commit %s, built %s)", Version, Commit, BuildDate)
}
