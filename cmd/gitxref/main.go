// SPDX-License-Identifier: Apache-2.0

// Command gitxref answers a single question: given a directory of loose
// files on disk and a git repository, which commits best explain the
// directory's contents, and which files does each contribute.
package main

import (
	"log/slog"
	"os"
)

func main() {
	cmd := newRootCommand()
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	if err := cmd.Execute(); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("gitxref failed", "err", err)
		os.Exit(1)
	}
}
