// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, exec.Command("git", "init", "--initial-branch=main", dir).Run())

	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		require.NoError(t, cmd.Run())
	}
	run("add", "a.txt")
	run("-c", "user.email=test@example.com", "-c", "user.name=test", "commit", "-m", "add a.txt")

	return dir
}

func TestRunEmitsCoverageForMatchingDirectory(t *testing.T) {
	repoDir := initRepo(t)

	sourceDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "a.txt"), []byte("hello"), 0o644))

	opts := &options{skipCache: true}

	stdout := captureStdout(t, func() {
		require.NoError(t, run(repoDir, sourceDir, opts))
	})

	assert.Contains(t, stdout, "a.txt")
}

func TestRunEmitsTrailingNoCoverageEntry(t *testing.T) {
	repoDir := initRepo(t)

	sourceDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "unmatched.txt"), []byte("nothing like this is committed"), 0o644))

	opts := &options{skipCache: true}

	stdout := captureStdout(t, func() {
		require.NoError(t, run(repoDir, sourceDir, opts))
	})

	assert.Contains(t, stdout, "∅ 1")
	assert.Contains(t, stdout, "unmatched.txt")
}

func TestRunRejectsDirectWithRebuild(t *testing.T) {
	repoDir := initRepo(t)
	opts := &options{direct: true, rebuild: true}
	err := run(repoDir, t.TempDir(), opts)
	assert.Error(t, err)
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String()
}
