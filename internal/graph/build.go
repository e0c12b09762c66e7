// SPDX-License-Identifier: Apache-2.0

package graph

import "github.com/ali1234/gitxref/internal/oid"

// Triple mirrors the (kind, oid, payload) triples produced by the object
// stream (§4.2, §6). Exactly one of Tree/Parents (for a commit) or
// ChildTrees/ChildBlobs (for a tree) is meaningful, selected by Kind.
type Triple struct {
	Kind Kind
	OID  oid.OID

	// Commit payload.
	Tree    oid.OID
	Parents []oid.OID

	// Tree payload.
	ChildTrees []oid.OID
	ChildBlobs []oid.OID
}

// Kind discriminates the object types the builder understands. Everything
// else (blobs, tags, malformed records) arrives as KindOther and is
// ignored by the builder, per §4.2 ("other: ignored").
type Kind int

const (
	KindOther Kind = iota
	KindCommit
	KindTree
)

// Builder accumulates Triples into a Graph. It auto-vivifies tree and blob
// vertices on first reference, exactly as required by §4.2's "placeholder
// Vertex is created and later reused" note, then reduces singleton chains
// on Build.
type Builder struct {
	trees         map[oid.OID]*Vertex
	blobs         map[oid.OID]*Vertex
	commitParents map[oid.OID][]oid.OID
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		trees:         map[oid.OID]*Vertex{},
		blobs:         map[oid.OID]*Vertex{},
		commitParents: map[oid.OID][]oid.OID{},
	}
}

// Add ingests one triple, applying the build rules of §4.2. Triples may
// arrive in any order; forward references auto-vivify placeholder
// vertices that are wired in once their own triple (if any) arrives.
func (b *Builder) Add(t Triple) {
	switch t.Kind {
	case KindCommit:
		tv := b.tree(t.Tree)
		tv.addCommit(t.OID)
		b.commitParents[t.OID] = t.Parents

	case KindTree:
		tv := b.tree(t.OID)
		for _, ct := range t.ChildTrees {
			ctv := b.tree(ct)
			ctv.addParent(tv)
		}
		for _, cb := range t.ChildBlobs {
			cbv := b.blob(cb)
			cbv.addParent(tv)
		}

	default:
		// KindOther: ignored, per §4.2.
	}
}

func (b *Builder) tree(id oid.OID) *Vertex {
	v, ok := b.trees[id]
	if !ok {
		v = &Vertex{}
		b.trees[id] = v
	}
	return v
}

func (b *Builder) blob(id oid.OID) *Vertex {
	v, ok := b.blobs[id]
	if !ok {
		v = &Vertex{}
		b.blobs[id] = v
	}
	return v
}

// Build finalizes the Graph: it runs the reduction pass over every vertex
// reachable from a blob, then returns the immutable blob-keyed map.
//
// Reduction collapses "tree A is the sole parent of tree B is the sole
// parent of ... " chains into direct edges: for each vertex, any Parents
// entry that is itself a singleton vertex (exactly one parent and no
// commit leaves) is replaced by that parent's own single parent,
// recursively. This changes no reachability semantics (§4.2) but bounds
// traversal depth to O(1) for deeply nested tree chains (§8 E6).
func (b *Builder) Build() *Graph {
	visited := map[*Vertex]bool{}
	for _, v := range b.blobs {
		reduce(v, visited)
	}

	return &Graph{Blobs: b.blobs, CommitParents: b.commitParents}
}

// reduce is the memoized recursive walk described in §4.2's "Reduction
// pass". Each vertex is visited at most once; for each Parents entry that
// is itself a singleton (one parent, no commits), the entry is replaced by
// that singleton's own sole parent.
func reduce(v *Vertex, visited map[*Vertex]bool) {
	if visited[v] {
		return
	}
	visited[v] = true

	for i, p := range v.Parents {
		reduce(p, visited)
		for isSingleton(p) {
			p = p.Parents[0]
		}
		v.Parents[i] = p
	}
}

// isSingleton reports whether a tree vertex has exactly one incoming edge
// in total (one tree parent, no commit leaves) and can therefore be
// collapsed out of any chain that passes through it.
func isSingleton(v *Vertex) bool {
	return len(v.Parents) == 1 && len(v.Commits) == 0
}
