// SPDX-License-Identifier: Apache-2.0

// Package propagate implements component D: topological ordering of the
// reverse graph from a set of source blobs, and the single-pass bitmap
// propagation that turns per-source bits into per-commit coverage
// bitmaps.
package propagate

import (
	"github.com/ali1234/gitxref/internal/bitmap"
	"github.com/ali1234/gitxref/internal/graph"
	"github.com/ali1234/gitxref/internal/oid"
)

// TopoSort performs a DFS from each of sources' vertices (any source OID
// absent from g is silently skipped, per §4.2's invariant that an absent
// blob has no reachable vertex), following incoming edges (Parents),
// post-order appending on finish and memoizing visits across all calls so
// each vertex is visited at most once across the whole sources slice. The
// returned order is reversed so that a vertex precedes its parents - i.e.
// it is safe to propagate in the returned order.
func TopoSort(g *graph.Graph, sources []oid.OID) []*graph.Vertex {
	visited := map[*graph.Vertex]bool{}
	var order []*graph.Vertex

	for _, s := range sources {
		v := g.Vertex(s)
		if v == nil {
			continue
		}
		visit(v, visited, &order)
	}

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

func visit(v *graph.Vertex, visited map[*graph.Vertex]bool, order *[]*graph.Vertex) {
	if visited[v] {
		return
	}
	visited[v] = true

	for _, p := range v.Parents {
		visit(p, visited, order)
	}
	*order = append(*order, v)
}

// Bitmaps computes, for every source index 0..len(sources)-1, the bitmap
// bit it seeds, then propagates those bits up the reverse graph in
// topological order, releasing each vertex's bitmap slot as soon as it has
// been pushed to its parents and any commit leaves. The result maps each
// commit OID encountered as a leaf to its accumulated Bitmap_N.
//
// step, if positive, selects the step/chunk mode of §4.3: sources are
// processed in slices of at most step entries, each slice computing a
// slice-width bitmap and OR-ing it into the full-width output bitmaps at
// the slice's bit offset (a byte offset when step is a multiple of 8, as
// the CLI requires; any positive step gives the same result). This bounds
// peak memory for large source tables; the result is identical to
// step == 0 (process all sources in one pass).
func Bitmaps(g *graph.Graph, sources []oid.OID, step int) map[oid.OID]*bitmap.Bitmap {
	n := len(sources)
	out := map[oid.OID]*bitmap.Bitmap{}

	if n == 0 {
		return out
	}

	if step <= 0 || step > n {
		step = n
	}

	for base := 0; base < n; base += step {
		end := base + step
		if end > n {
			end = n
		}
		width := end - base

		slice := sources[base:end]
		order := TopoSort(g, slice)

		for i, s := range slice {
			if v := g.Vertex(s); v != nil {
				v.SetBitmap(bitmap.NewSingleBit(width, i))
			}
		}

		for _, v := range order {
			seed := v.Bitmap()
			if seed == nil {
				// A vertex reached only through parents that carried no
				// bits this slice (can't happen given our seeding above,
				// but guards against a malformed/cyclic-looking input).
				continue
			}

			for _, p := range v.Parents {
				if pb := p.Bitmap(); pb != nil {
					pb.Or(seed)
				} else {
					nb := bitmap.New(width)
					nb.Or(seed)
					p.SetBitmap(nb)
				}
			}

			for _, c := range v.Commits {
				full, ok := out[c]
				if !ok {
					full = bitmap.New(n)
					out[c] = full
				}
				full.SetRange(base, seed)
			}

			v.ClearBitmap()
		}
	}

	return out
}
