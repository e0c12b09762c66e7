// SPDX-License-Identifier: Apache-2.0

// Package gitrepo is a lightweight wrapper around a Git repository on
// disk. It locates the git binary, resolves GIT_DIR, and hands out the
// two ways of reaching the object store: *exec.Cmd values scoped to the
// repository (used by internal/objstream for the cat-file pipeline) and a
// go-git repository (used by internal/direct). The graph, propagation and
// cover packages consume only parsed triples, OIDs, and plain Go data.
package gitrepo

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
)

const binary = "git"

// Repository wraps the location of a repository's GIT_DIR and both ways
// of talking to it: shelling out to the git binary (for the
// cat-file/for-each-ref plumbing commands this tool actually needs) and
// go-git's in-process object model (for the direct-mode fallback, which
// would otherwise need a second `git` subprocess per commit).
type Repository struct {
	gitDirPath string
}

// Open returns a Repository for the given path, resolving GIT_DIR via
// `git rev-parse --absolute-git-dir`. It also inspects PATH to make sure git is
// installed before doing anything else.
func Open(path string) (*Repository, error) {
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("unable to find Git binary, is Git installed?")
	}

	r := &Repository{}

	if dir, ok := envGitDir(); ok && path == "" {
		r.gitDirPath = dir
		return r, nil
	}

	cmd := exec.Command(binary, "-C", path, "rev-parse", "--absolute-git-dir")
	var stdOut, stdErr bytes.Buffer
	cmd.Stdout = &stdOut
	cmd.Stderr = &stdErr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("unable to identify GIT_DIR for %q: %w: %s", path, err, strings.TrimSpace(stdErr.String()))
	}

	r.gitDirPath = strings.TrimSpace(stdOut.String())
	return r, nil
}

// GitDir returns the repository's GIT_DIR path, the default location for
// cache sidecars (§4.4, §6).
func (r *Repository) GitDir() string {
	return r.gitDirPath
}

// GoGitRepository opens the go-git representation of the repository,
// used by the direct-mode fallback (§4.7) to enumerate a commit's tree
// without spawning a second `git` subprocess per commit.
func (r *Repository) GoGitRepository() (*git.Repository, error) {
	return git.PlainOpenWithOptions(r.gitDirPath, &git.PlainOpenOptions{DetectDotGit: true})
}

// RefsKey returns the raw bytes of `git for-each-ref`, the input to the
// cache's content-hash invalidation key (§4.4, §6 "Refs-key").
func (r *Repository) RefsKey() ([]byte, error) {
	stdOut, stdErr, err := r.run("for-each-ref")
	if err != nil {
		return nil, fmt.Errorf("unable to list refs: %w: %s", err, stdErr)
	}
	return []byte(stdOut), nil
}

// run executes `git <args...>` against this repository's GIT_DIR,
// capturing stdout/stderr exactly as the teacher's executeGitCommand
// does: errors carry the stderr text, and stdout is returned with any
// trailing newline intact since RefsKey uses the exact bytes.
func (r *Repository) run(args ...string) (string, string, error) {
	full := append([]string{"--git-dir", r.gitDirPath}, args...)
	return r.runDirect(full...)
}

func (r *Repository) runDirect(args ...string) (string, string, error) {
	cmd := exec.Command(binary, args...)

	var stdOut, stdErr bytes.Buffer
	cmd.Stdout = &stdOut
	cmd.Stderr = &stdErr

	err := cmd.Run()
	stdOutString := stdOut.String()
	stdErrString := strings.TrimSpace(stdErr.String())
	if err != nil && stdErrString == "" {
		stdErrString = "error running `git " + strings.Join(args, " ") + "`"
	}
	return stdOutString, stdErrString, err
}

// Command builds an *exec.Cmd for the repository's git-dir, for callers
// (internal/objstream) that need to wire up pipes directly rather than
// buffering output, such as the cat-file batch pipeline.
func (r *Repository) Command(args ...string) *exec.Cmd {
	full := append([]string{"--git-dir", r.gitDirPath}, args...)
	return exec.Command(binary, full...)
}

// AllRefs returns the tip OIDs of every ref, used to seed the direct-mode
// fallback's commit enumeration (§4.7).
func (r *Repository) AllRefs() ([]string, error) {
	stdOut, stdErr, err := r.run("for-each-ref", "--format=%(objectname)")
	if err != nil {
		return nil, fmt.Errorf("unable to enumerate refs: %w: %s", err, stdErr)
	}
	if strings.TrimSpace(stdOut) == "" {
		return nil, nil
	}
	return strings.Split(strings.TrimSpace(stdOut), "\n"), nil
}

// envGitDir allows GIT_DIR to be honored the same way the teacher's
// LoadRepository does, for callers that run gitxref from inside a
// worktree with GIT_DIR already exported.
func envGitDir() (string, bool) {
	v := os.Getenv("GIT_DIR")
	return v, v != ""
}
