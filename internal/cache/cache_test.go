// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ali1234/gitxref/internal/graph"
	"github.com/ali1234/gitxref/internal/oid"
)

func mustHex(t *testing.T, s string) oid.OID {
	t.Helper()
	o, err := oid.FromHex(s)
	require.NoError(t, err)
	return o
}

func TestSaveLoadRoundTripPreservesSharing(t *testing.T) {
	dir := t.TempDir()

	shared := &graph.Vertex{}
	shared.Commits = []oid.OID{mustHex(t, "0000000000000000000000000000000000000001")}

	blobA := &graph.Vertex{Parents: []*graph.Vertex{shared}}
	blobB := &graph.Vertex{Parents: []*graph.Vertex{shared}}

	g := &graph.Graph{
		Blobs: map[oid.OID]*graph.Vertex{
			mustHex(t, "000000000000000000000000000000000000a1a1"): blobA,
			mustHex(t, "000000000000000000000000000000000000b2b2"): blobB,
		},
		CommitParents: map[oid.OID][]oid.OID{},
	}

	c := New(dir, GraphArtifact, false, nil)
	key := []byte("refs-key-v1")
	require.NoError(t, c.Save(key, g))

	got, err := c.Load(key)
	require.NoError(t, err)

	var keys []oid.OID
	for k := range got.Blobs {
		keys = append(keys, k)
	}
	require.Len(t, keys, 2)

	v0 := got.Blobs[keys[0]]
	v1 := got.Blobs[keys[1]]
	require.Len(t, v0.Parents, 1)
	require.Len(t, v1.Parents, 1)
	assert.Same(t, v0.Parents[0], v1.Parents[0], "shared vertex must deserialize to a single shared pointer")
}

func TestLoadMissOnKeyMismatch(t *testing.T) {
	dir := t.TempDir()
	g := &graph.Graph{Blobs: map[oid.OID]*graph.Vertex{}, CommitParents: map[oid.OID][]oid.OID{}}

	c := New(dir, GraphArtifact, false, nil)
	require.NoError(t, c.Save([]byte("key-a"), g))

	_, err := c.Load([]byte("key-b"))
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLoadMissWhenAbsent(t *testing.T) {
	c := New(t.TempDir(), GraphArtifact, false, nil)
	_, err := c.Load([]byte("whatever"))
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSkipCacheAlwaysMisses(t *testing.T) {
	dir := t.TempDir()
	g := &graph.Graph{Blobs: map[oid.OID]*graph.Vertex{}, CommitParents: map[oid.OID][]oid.OID{}}

	c := New(dir, GraphArtifact, true, nil)
	require.NoError(t, c.Save([]byte("key"), g))

	_, err := c.Load([]byte("key"))
	assert.ErrorIs(t, err, ErrMiss)
}
