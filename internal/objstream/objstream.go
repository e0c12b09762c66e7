// SPDX-License-Identifier: Apache-2.0

// Package objstream implements component A: a producer that drives a
//
//	git cat-file --batch-all-objects --batch-check='%(objecttype) %(objectname)'
//	  | filter to commit|tree
//	  | cut OID
//	  | git cat-file --batch
//
// pipeline (§6) and emits a graph.Triple for every commit and tree in the
// repository's object store. Callers only ever see parsed triples; the
// subprocess framing is entirely internal to this package.
//
// The header/body parsing mirrors github/git-sizer's
// Repository.readObject / ReadCommit / TreeIter (a hand-rolled
// `cat-file --batch` client) and the reference Python implementation's
// batch.py: headers are "<oid> <type> <size>\n", commit bodies start with
// a "tree <oid>" line followed by zero or more "parent <oid>" lines, and
// tree bodies are repeating "<mode> <name>\0<20-byte-oid>" records.
package objstream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ali1234/gitxref/internal/graph"
	"github.com/ali1234/gitxref/internal/oid"
)

// Repo is the subset of *gitrepo.Repository objstream needs: a way to
// build a *exec.Cmd scoped to the repository's GIT_DIR.
type Repo interface {
	Command(args ...string) *exec.Cmd
}

// ErrTruncated is ObjectStreamTruncated (§7): the pipe closed mid-record,
// or a size header didn't match the body that followed. It is always
// fatal; there is no recovery path.
type ErrTruncated struct {
	LastGoodOID oid.OID
	Reason      string
}

func (e *ErrTruncated) Error() string {
	return fmt.Sprintf("object stream truncated after %s: %s", e.LastGoodOID, e.Reason)
}

const batchCheckFormat = "%(objecttype) %(objectname)"

// Stream runs the two-stage cat-file pipeline against repo and sends a
// graph.Triple for every commit and tree object on out, closing out when
// the pipeline's stdout reaches EOF. It returns immediately on the first
// fatal error; out is closed on every return, including error returns, so
// a caller ranging over out always terminates.
//
// Starting the two subprocesses is retried with a short bounded backoff,
// since a transient spawn failure is a different class of problem than a
// truncated mid-stream read, which is always fatal and never retried.
func Stream(repo Repo, out chan<- graph.Triple) error {
	defer close(out)

	checkCmd, batchCmd, batchStdout, err := startPipeline(repo)
	if err != nil {
		return fmt.Errorf("unable to start cat-file pipeline: %w", err)
	}

	reader := bufio.NewReaderSize(batchStdout, 1<<20)

	var last oid.OID
	for {
		header, readErr := reader.ReadString('\n')
		if readErr == io.EOF && header == "" {
			break
		}
		if readErr != nil {
			return &ErrTruncated{LastGoodOID: last, Reason: readErr.Error()}
		}

		id, kind, size, err := parseHeader(header)
		if err != nil {
			return &ErrTruncated{LastGoodOID: last, Reason: err.Error()}
		}

		body := make([]byte, size)
		if _, err := io.ReadFull(reader, body); err != nil {
			return &ErrTruncated{LastGoodOID: last, Reason: fmt.Sprintf("short body for %s: %v", id, err)}
		}
		if _, err := reader.Discard(1); err != nil { // trailing LF after the body
			return &ErrTruncated{LastGoodOID: last, Reason: "missing trailing newline after body"}
		}

		last = id

		switch kind {
		case "commit":
			triple, err := parseCommit(id, body)
			if err != nil {
				return &ErrTruncated{LastGoodOID: last, Reason: err.Error()}
			}
			out <- triple

		case "tree":
			triple, err := parseTree(id, body)
			if err != nil {
				return &ErrTruncated{LastGoodOID: last, Reason: err.Error()}
			}
			out <- triple

		default:
			out <- graph.Triple{Kind: graph.KindOther, OID: id}
		}
	}

	if err := batchCmd.Wait(); err != nil {
		return fmt.Errorf("cat-file --batch exited with error: %w", err)
	}
	if err := checkCmd.Wait(); err != nil {
		return fmt.Errorf("cat-file --batch-check exited with error: %w", err)
	}
	return nil
}

// startPipeline wires the check stage's (filtered) stdout into the batch
// stage's stdin and returns both commands plus the batch stage's stdout
// for the caller to parse. Process startup is retried as described on
// Stream: up to 3 retries with an exponential backoff starting at 10ms,
// for any startup error. That is enough to ride out a momentarily
// exhausted process-table slot without masking a genuinely broken git
// invocation (which fails deterministically on every retry and is
// reported as-is once retries are exhausted).
func startPipeline(repo Repo) (checkCmd, batchCmd *exec.Cmd, batchStdout io.Reader, err error) {
	op := func() error {
		checkCmd = repo.Command("cat-file", "--buffer", "--batch-all-objects", "--batch-check="+batchCheckFormat)
		checkOut, pipeErr := checkCmd.StdoutPipe()
		if pipeErr != nil {
			return pipeErr
		}

		batchCmd = repo.Command("cat-file", "--buffer", "--batch")
		batchIn, pipeErr := batchCmd.StdinPipe()
		if pipeErr != nil {
			return pipeErr
		}
		batchOut, pipeErr := batchCmd.StdoutPipe()
		if pipeErr != nil {
			return pipeErr
		}

		if startErr := checkCmd.Start(); startErr != nil {
			return startErr
		}
		if startErr := batchCmd.Start(); startErr != nil {
			return startErr
		}

		go feedBatchStdin(checkOut, batchIn)

		batchStdout = batchOut
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	policy := backoff.WithMaxRetries(b, 3)
	if retryErr := backoff.Retry(op, policy); retryErr != nil {
		return nil, nil, nil, retryErr
	}
	return checkCmd, batchCmd, batchStdout, nil
}

// feedBatchStdin reads "<type> <oid>\n" lines from the check stage and
// writes "<oid>\n" into the batch stage's stdin for every commit or tree
// entry, mirroring `grep -E (^t|^c) | cut -d ' ' -f 2` without a second
// OS process per stage.
func feedBatchStdin(checkOut io.ReadCloser, batchIn io.WriteCloser) {
	defer batchIn.Close()

	scanner := bufio.NewScanner(checkOut)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), " ", 2)
		if len(fields) != 2 {
			continue
		}
		if fields[0] != "commit" && fields[0] != "tree" {
			continue
		}
		if _, err := io.WriteString(batchIn, fields[1]+"\n"); err != nil {
			return
		}
	}
}

// parseHeader parses one "<oid> <type> <size>\n" batch header line.
func parseHeader(line string) (oid.OID, string, int64, error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.Fields(line)
	if len(fields) < 3 {
		if len(fields) == 2 && fields[1] == "missing" {
			return oid.Zero, "", 0, fmt.Errorf("missing object %s", fields[0])
		}
		return oid.Zero, "", 0, fmt.Errorf("malformed header %q", line)
	}

	id, err := oid.FromHex(fields[0])
	if err != nil {
		return oid.Zero, "", 0, err
	}

	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return oid.Zero, "", 0, err
	}

	return id, fields[1], size, nil
}

// parseCommit parses a commit body: a "tree <hex>" line, then zero or
// more "parent <hex>" lines; anything after the first non-parent line is
// ignored (§6).
func parseCommit(id oid.OID, body []byte) (graph.Triple, error) {
	lines := strings.Split(string(body), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "tree ") {
		return graph.Triple{}, fmt.Errorf("commit %s has no tree header", id)
	}

	tree, err := oid.FromHex(strings.TrimPrefix(lines[0], "tree "))
	if err != nil {
		return graph.Triple{}, fmt.Errorf("commit %s has invalid tree oid: %w", id, err)
	}

	var parents []oid.OID
	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, "parent ") {
			break
		}
		p, err := oid.FromHex(strings.TrimPrefix(line, "parent "))
		if err != nil {
			return graph.Triple{}, fmt.Errorf("commit %s has invalid parent oid: %w", id, err)
		}
		parents = append(parents, p)
	}

	return graph.Triple{Kind: graph.KindCommit, OID: id, Tree: tree, Parents: parents}, nil
}

// parseTree parses a tree body: repeating "<mode> <name>\0<20-byte-oid>"
// records. Classification is by mode-string length, per §6: a
// 6-character mode (e.g. "100644") is a blob, a 5-character mode (e.g.
// "40000") is a tree, anything else is a MalformedTreeEntry (§7) and the
// entry is skipped.
func parseTree(id oid.OID, body []byte) (graph.Triple, error) {
	var trees, blobs []oid.OID

	for len(body) > 0 {
		sp := bytes.IndexByte(body, ' ')
		if sp < 0 {
			return graph.Triple{}, fmt.Errorf("tree %s: missing space after mode", id)
		}
		mode := body[:sp]
		rest := body[sp+1:]

		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return graph.Triple{}, fmt.Errorf("tree %s: missing NUL after name", id)
		}
		if len(rest) < nul+1+oid.Size {
			return graph.Triple{}, fmt.Errorf("tree %s: truncated entry oid", id)
		}

		entryOID, err := oid.FromBytes(rest[nul+1 : nul+1+oid.Size])
		if err != nil {
			return graph.Triple{}, err
		}

		switch len(mode) {
		case 6:
			blobs = append(blobs, entryOID)
		case 5:
			trees = append(trees, entryOID)
		default:
			// MalformedTreeEntry (§7): the entry is skipped; skipped
			// entries are neither counted nor logged.
		}

		body = rest[nul+1+oid.Size:]
	}

	return graph.Triple{Kind: graph.KindTree, OID: id, ChildTrees: trees, ChildBlobs: blobs}, nil
}
