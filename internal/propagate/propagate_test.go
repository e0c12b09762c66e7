// SPDX-License-Identifier: Apache-2.0

package propagate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ali1234/gitxref/internal/graph"
	"github.com/ali1234/gitxref/internal/oid"
	"github.com/ali1234/gitxref/internal/propagate"
)

func oidN(b byte) oid.OID {
	var o oid.OID
	o[len(o)-1] = b
	return o
}

// buildGraph wires: commit -> tree -> {blobA, blobB}, via the public
// Builder, matching how internal/objstream would have produced it.
func buildGraph(t *testing.T) (*graph.Graph, oid.OID, oid.OID, oid.OID, oid.OID) {
	t.Helper()

	blobA := oidN(1)
	blobB := oidN(2)
	tree := oidN(3)
	commit := oidN(4)

	b := graph.NewBuilder()
	b.Add(graph.Triple{Kind: graph.KindTree, OID: tree, ChildBlobs: []oid.OID{blobA, blobB}})
	b.Add(graph.Triple{Kind: graph.KindCommit, OID: commit, Tree: tree})

	return b.Build(), blobA, blobB, tree, commit
}

func TestTopoSortOrdersChildBeforeParent(t *testing.T) {
	g, blobA, _, _, _ := buildGraph(t)

	order := propagate.TopoSort(g, []oid.OID{blobA})
	require.Len(t, order, 2) // blobA's vertex, then tree's vertex

	assert.Same(t, g.Vertex(blobA), order[0])
}

func TestTopoSortSkipsAbsentSource(t *testing.T) {
	g, blobA, _, _, _ := buildGraph(t)

	order := propagate.TopoSort(g, []oid.OID{blobA, oidN(99)})
	assert.Len(t, order, 2)
}

func TestTopoSortDedupesSharedAncestor(t *testing.T) {
	g, blobA, blobB, _, _ := buildGraph(t)

	order := propagate.TopoSort(g, []oid.OID{blobA, blobB})
	// blobA's vertex, blobB's vertex, and the shared tree vertex once.
	assert.Len(t, order, 3)
}

func TestBitmapsAccumulatesBothSources(t *testing.T) {
	g, blobA, blobB, _, commit := buildGraph(t)

	out := propagate.Bitmaps(g, []oid.OID{blobA, blobB}, 0)
	require.Contains(t, out, commit)

	bm := out[commit]
	assert.True(t, bm.Test(0))
	assert.True(t, bm.Test(1))
	assert.Equal(t, 2, bm.PopCount())
}

func TestBitmapsOnEmptySourceList(t *testing.T) {
	g, _, _, _, _ := buildGraph(t)
	out := propagate.Bitmaps(g, nil, 0)
	assert.Empty(t, out)
}

func TestBitmapsStepModeMatchesFullPass(t *testing.T) {
	blobs := []oid.OID{oidN(1), oidN(2), oidN(3), oidN(4)}
	tree := oidN(5)
	commit := oidN(6)

	b := graph.NewBuilder()
	b.Add(graph.Triple{Kind: graph.KindTree, OID: tree, ChildBlobs: blobs})
	b.Add(graph.Triple{Kind: graph.KindCommit, OID: commit, Tree: tree})
	g := b.Build()

	full := propagate.Bitmaps(g, blobs, 0)
	chunked := propagate.Bitmaps(g, blobs, 2) // forces two slices of 2 sources each

	require.Contains(t, full, commit)
	require.Contains(t, chunked, commit)
	assert.True(t, full[commit].Equal(chunked[commit]))
	assert.Equal(t, 4, chunked[commit].PopCount())
}

func TestBitmapsIgnoresSourceAbsentFromGraph(t *testing.T) {
	g, blobA, _, _, commit := buildGraph(t)

	unrelated := oidN(42)
	out := propagate.Bitmaps(g, []oid.OID{blobA, unrelated}, 0)

	require.Contains(t, out, commit)
	// unrelated is not in the graph, so only blobA's bit contributes.
	assert.Equal(t, 1, out[commit].PopCount())
	assert.True(t, out[commit].Test(0))
}
