// SPDX-License-Identifier: Apache-2.0

// Package direct implements the `[DOMAIN]` direct-mode fallback (§4.7,
// component I): instead of building and propagating across the reverse
// object graph, it walks every ref's commit history and, for each
// commit, walks the full tree recursively with go-git's
// object.NewTreeWalker, setting bits in that commit's own Bitmap_N. Work
// is fanned out across a worker pool with golang.org/x/sync/errgroup,
// mirroring the teacher's goroutine-plus-errgroup usage elsewhere in the
// corpus (e.g. dolthub/dolt's chunk fetcher) generalized to this
// package's commit-at-a-time unit of work.
//
// This path produces exactly the same commitOID -> Bitmap_N shape that
// internal/propagate does, so its output feeds the same internal/cover
// selector. It is never invoked unless the caller explicitly asks for
// it; the reverse-graph path remains the default.
package direct

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/sync/errgroup"

	"github.com/ali1234/gitxref/internal/bitmap"
	"github.com/ali1234/gitxref/internal/gitrepo"
	"github.com/ali1234/gitxref/internal/oid"
	"github.com/ali1234/gitxref/internal/sourcescan"
)

// Bitmaps walks every commit reachable from the repository's refs and
// returns a commitOID -> Bitmap_N map, one bit per source.OIDs() entry,
// set wherever that blob appears anywhere in the commit's tree.
// workers bounds how many commits are processed concurrently.
func Bitmaps(repo *gitrepo.Repository, source *sourcescan.Table, workers int, log *slog.Logger) (map[oid.OID]*bitmap.Bitmap, error) {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	n := source.Len()
	index := make(map[plumbing.Hash]int, n)
	for i := 0; i < n; i++ {
		var h plumbing.Hash
		copy(h[:], source.At(i).OID[:])
		index[h] = i
	}

	goRepo, err := repo.GoGitRepository()
	if err != nil {
		return nil, fmt.Errorf("direct mode: unable to open go-git repository: %w", err)
	}

	refs, err := repo.AllRefs()
	if err != nil {
		return nil, fmt.Errorf("direct mode: unable to enumerate refs: %w", err)
	}

	commits := map[oid.OID]bool{}
	for _, hex := range refs {
		id, err := oid.FromHex(hex)
		if err != nil {
			continue
		}
		tip, err := goRepo.CommitObject(plumbing.NewHash(hex))
		if err != nil {
			continue
		}
		if err := walkAncestry(tip, commits); err != nil {
			return nil, err
		}
		commits[id] = true
	}

	var (
		mu     sync.Mutex
		result = make(map[oid.OID]*bitmap.Bitmap, len(commits))
	)

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for id := range commits {
		id := id
		g.Go(func() error {
			commitObj, err := goRepo.CommitObject(plumbing.NewHash(id.String()))
			if err != nil {
				log.Debug("direct mode: commit lookup failed", "commit", id, "error", err)
				return nil
			}

			tree, err := commitObj.Tree()
			if err != nil {
				return fmt.Errorf("direct mode: commit %s has no tree: %w", id, err)
			}

			bm := bitmap.New(n)
			walker := object.NewTreeWalker(tree, true, nil)
			defer walker.Close()
			for {
				_, entry, err := walker.Next()
				if err != nil {
					break
				}
				if i, ok := index[entry.Hash]; ok {
					bm.Set(i)
				}
			}

			mu.Lock()
			result[id] = bm
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

// walkAncestry records every commit reachable from start's parent chain,
// so that a ref pointing deep in history still contributes every commit
// behind it, not just its tip.
func walkAncestry(start *object.Commit, seen map[oid.OID]bool) error {
	var id oid.OID
	copy(id[:], start.Hash[:])
	if seen[id] {
		return nil
	}
	seen[id] = true

	return start.Parents().ForEach(func(p *object.Commit) error {
		return walkAncestry(p, seen)
	})
}
