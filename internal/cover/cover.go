// SPDX-License-Identifier: Apache-2.0

// Package cover implements component E: grouping commits by identical
// coverage bitmap and then greedily selecting, in decreasing marginal
// coverage order, the minimal-prefix list of groups that covers every
// source index reachable in the graph.
package cover

import (
	"sort"

	"github.com/ali1234/gitxref/internal/bitmap"
	"github.com/ali1234/gitxref/internal/oid"
)

// Group is one equivalence class of commits sharing an identical coverage
// bitmap.
type Group struct {
	Commits []oid.OID
	Bitmap  *bitmap.Bitmap
}

// Entry is one emitted (commits, covered-bits) pair from the greedy cover.
// A nil Commits slice marks the trailing pseudo-entry naming the indices
// that remain uncovered after every group has been considered (§4.3,
// §7 NoCoverage, §8 invariant 3).
type Entry struct {
	Commits []oid.OID
	Covered *bitmap.Bitmap
}

// Group collects commitBitmaps (as produced by propagate.Bitmaps) into
// Groups, one per distinct bitmap byte content. Because Go map iteration
// order is undefined, the commits are first sorted bytewise by OID and
// then grouped in that order (via GroupOrdered), so group order and the
// commit order within each group are deterministic across runs. Callers
// that want a different order should call GroupOrdered directly.
func Group(commitBitmaps map[oid.OID]*bitmap.Bitmap) []*Group {
	order := make([]oid.OID, 0, len(commitBitmaps))
	for c := range commitBitmaps {
		order = append(order, c)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Less(order[j]) })
	return GroupOrdered(order, commitBitmaps)
}

// GroupOrdered is Group but takes an explicit, caller-determined order for
// first-occurrence tie-breaking (§9 "An implementation must pick a rule").
// gitxref's rule: commits are grouped in the order supplied, and within a
// group, first occurrence in that order determines the group's position
// among equal-coverage groups during selection.
func GroupOrdered(order []oid.OID, commitBitmaps map[oid.OID]*bitmap.Bitmap) []*Group {
	index := map[string]int{}
	var groups []*Group

	for _, c := range order {
		b, ok := commitBitmaps[c]
		if !ok {
			continue
		}
		key := b.Key()
		if i, ok := index[key]; ok {
			groups[i].Commits = append(groups[i].Commits, c)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, &Group{Commits: []oid.OID{c}, Bitmap: b})
	}

	return groups
}

// Select runs the greedy set cover of §4.3 over groups for a source table
// of size n, and returns the ordered list of emitted entries, always
// ending with the trailing (nil, unfound) pseudo-entry.
//
// Ties in coverage are broken by first occurrence in groups' input order,
// which callers control via the order passed to GroupOrdered (see §9 open
// question on tie-breaking).
func Select(n int, groups []*Group) []Entry {
	unfound := bitmap.All(n)

	remaining := make([]*Group, len(groups))
	copy(remaining, groups)

	var entries []Entry

	for len(remaining) > 0 {
		bestIdx := -1
		bestCoverage := 0
		var bestCovered *bitmap.Bitmap

		for i, g := range remaining {
			covered := g.Bitmap.And(unfound)
			c := covered.PopCount()
			if c > bestCoverage {
				bestCoverage = c
				bestIdx = i
				bestCovered = covered
			}
		}

		if bestIdx < 0 || bestCoverage == 0 {
			break
		}

		chosen := remaining[bestIdx]
		entries = append(entries, Entry{Commits: chosen.Commits, Covered: bestCovered})

		unfound = unfound.AndNot(chosen.Bitmap)

		remaining = dropZeroCoverage(remaining, bestIdx, unfound)
	}

	entries = append(entries, Entry{Commits: nil, Covered: unfound})

	return entries
}

// dropZeroCoverage removes the chosen group at index chosenIdx and any
// other group whose coverage against the updated unfound set is now zero
// (§4.3 step 5).
func dropZeroCoverage(groups []*Group, chosenIdx int, unfound *bitmap.Bitmap) []*Group {
	out := groups[:0:0]
	for i, g := range groups {
		if i == chosenIdx {
			continue
		}
		if g.Bitmap.And(unfound).PopCount() == 0 {
			continue
		}
		out = append(out, g)
	}
	return out
}
