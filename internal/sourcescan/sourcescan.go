// SPDX-License-Identifier: Apache-2.0

// Package sourcescan implements component B: walking a directory of loose
// files (for example, an unpacked release tarball) and hashing each
// regular file with the Git blob convention, so that its content can be
// matched against blobs in a repository's object graph by hash identity.
package sourcescan

import (
	"crypto/sha1" //nolint:gosec // this is Git's own object hash, not used for security
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ali1234/gitxref/internal/oid"
)

// SourceFile records every path under the scan root that hashes to the
// same blob OID (§3: "a single OID may be produced by multiple paths
// under the scan root (duplicate contents)").
type SourceFile struct {
	OID   oid.OID
	Paths []string
}

// Table is the dense, indexed source-blob table S of §3: S[i].OID is
// distinct across i, and indices are stable for the lifetime of the table.
type Table struct {
	files []SourceFile
	index map[oid.OID]int
}

// Len returns N, the number of distinct source blobs.
func (t *Table) Len() int {
	return len(t.files)
}

// At returns the SourceFile at index i.
func (t *Table) At(i int) SourceFile {
	return t.files[i]
}

// IndexOf returns the index of the SourceFile for id and true, or
// (0, false) if id was never scanned.
func (t *Table) IndexOf(id oid.OID) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// OIDs returns the OIDs of every SourceFile, in table order.
func (t *Table) OIDs() []oid.OID {
	out := make([]oid.OID, len(t.files))
	for i, f := range t.files {
		out[i] = f.OID
	}
	return out
}

// HashBlob computes the Git blob hash of data: SHA-1 over
// "blob " + decimal(len(data)) + "\x00" + data.
func HashBlob(data []byte) oid.OID {
	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "blob %d\x00", len(data))
	h.Write(data)
	var out oid.OID
	copy(out[:], h.Sum(nil))
	return out
}

// hashFile streams a file through the blob-hash convention without
// requiring the whole file to be buffered in memory at once for the
// "blob " prefix accounting; the size is read via Stat up front, exactly
// as Git itself does when hashing a path.
func hashFile(path string, size int64) (oid.OID, error) {
	f, err := os.Open(path)
	if err != nil {
		return oid.Zero, err
	}
	defer f.Close()

	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "blob %d\x00", size)
	if _, err := io.Copy(h, f); err != nil {
		return oid.Zero, err
	}

	var out oid.OID
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Scan walks root recursively, hashing every regular, non-symlink file it
// finds and grouping paths by resulting OID. Symlinks are always skipped;
// any other non-regular entry (device, socket, ...) is skipped too. An
// unreadable file aborts the scan with a diagnostic naming the offending
// path (§4.1 SourceIOError): there is no partial-result recovery, since
// the cover result depends on a complete scan.
//
// Indices are assigned in the order files are first encountered during the
// walk, which for a deterministic filesystem layout is itself
// deterministic, but the spec only requires a 1:1 mapping, not any
// particular order.
func Scan(root string) (*Table, error) {
	files := map[oid.OID][]string{}
	var order []oid.OID
	seen := map[oid.OID]bool{}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("unable to walk %q: %w", path, err)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("unable to stat %q: %w", path, err)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("unable to relativize %q: %w", path, err)
		}

		id, err := hashFile(path, info.Size())
		if err != nil {
			return fmt.Errorf("unable to read %q: %w", path, err)
		}

		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
		files[id] = append(files[id], rel)

		return nil
	})
	if err != nil {
		return nil, err
	}

	table := &Table{index: map[oid.OID]int{}}
	for _, id := range order {
		paths := files[id]
		sort.Strings(paths)
		table.index[id] = len(table.files)
		table.files = append(table.files, SourceFile{OID: id, Paths: paths})
	}

	return table, nil
}
