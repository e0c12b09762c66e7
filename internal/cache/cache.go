// SPDX-License-Identifier: Apache-2.0

// Package cache implements component F: a content-hash-keyed sidecar cache
// for the reverse graph, so that repeated runs against an unchanged
// repository skip rebuilding it entirely.
//
// Two files per cached artifact live alongside each other: "<artifact>.check"
// holds the invalidation key, and "<artifact>.cache" holds the serialized
// graph. Writes always complete ".cache" before ".check" is (re)written, so
// a process killed mid-write never leaves a ".check" pointing at a
// half-written ".cache".
package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"github.com/ali1234/gitxref/internal/graph"
	"github.com/ali1234/gitxref/internal/oid"
)

// GraphArtifact is the cache artifact name for the reverse graph (§6:
// "<artifact> includes at least graph").
const GraphArtifact = "graph"

// ErrMiss is returned by Load whenever the cache cannot be used: a missing
// sidecar, a key mismatch, or a corrupt payload. Per §7 (CacheInvalid),
// every one of these is silent and simply triggers a rebuild; callers
// should log at most a Debug line and fall through to regeneration.
var ErrMiss = errors.New("cache: miss")

// Cache reads and writes a single artifact's sidecar pair in dir.
type Cache struct {
	dir      string
	artifact string
	skip     bool
	clock    clockwork.Clock
	log      *slog.Logger
}

// New returns a Cache for the named artifact rooted at dir. If skip is
// true, Load always misses and Save is a no-op (the CLI's --skip-cache
// flag, §6).
func New(dir, artifact string, skip bool, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{dir: dir, artifact: artifact, skip: skip, clock: clockwork.NewRealClock(), log: log}
}

func (c *Cache) checkPath() string {
	return filepath.Join(c.dir, c.artifact+".check")
}

func (c *Cache) cachePath() string {
	return filepath.Join(c.dir, c.artifact+".cache")
}

// Load attempts to load a previously cached graph keyed by key (typically
// the refs-key of §6). Any mismatch, missing file, or parse error returns
// ErrMiss, never a hard failure: cache errors are always recovered
// locally (§7).
func (c *Cache) Load(key []byte) (*graph.Graph, error) {
	if c.skip {
		return nil, ErrMiss
	}

	storedKey, err := os.ReadFile(c.checkPath())
	if err != nil {
		c.log.Debug("cache check file unreadable, treating as miss", "artifact", c.artifact, "err", err)
		return nil, ErrMiss
	}
	if !bytes.Equal(storedKey, key) {
		c.log.Debug("cache key mismatch, treating as miss", "artifact", c.artifact)
		return nil, ErrMiss
	}

	payload, err := os.ReadFile(c.cachePath())
	if err != nil {
		c.log.Debug("cache payload unreadable, treating as miss", "artifact", c.artifact, "err", err)
		return nil, ErrMiss
	}

	g, err := decode(payload)
	if err != nil {
		c.log.Debug("cache payload corrupt, treating as miss", "artifact", c.artifact, "err", err)
		return nil, ErrMiss
	}

	c.log.Info("loaded graph from cache", "artifact", c.artifact, "at", c.clock.Now())
	return g, nil
}

// Save persists g under key, best-effort: write errors are logged and
// returned, and the caller treats them as non-fatal, since a failed cache
// write never invalidates the result already computed for this run. Any
// existing ".check" is removed first and ".cache" is always written
// before ".check", so a reader never observes a key pointing at a
// missing, stale or half-written payload.
func (c *Cache) Save(key []byte, g *graph.Graph) error {
	if c.skip {
		return nil
	}

	payload, err := encode(g)
	if err != nil {
		c.log.Warn("failed to encode graph for caching", "artifact", c.artifact, "err", err)
		return err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.log.Warn("failed to create cache directory", "dir", c.dir, "err", err)
		return err
	}

	if err := os.Remove(c.checkPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn("failed to remove stale cache check file", "artifact", c.artifact, "err", err)
		return err
	}
	if err := os.WriteFile(c.cachePath(), payload, 0o644); err != nil {
		c.log.Warn("failed to write cache payload", "artifact", c.artifact, "err", err)
		return err
	}
	if err := os.WriteFile(c.checkPath(), key, 0o644); err != nil {
		c.log.Warn("failed to write cache check file", "artifact", c.artifact, "err", err)
		return err
	}

	c.log.Info("saved graph to cache", "artifact", c.artifact, "at", c.clock.Now())
	return nil
}

// flatGraph is the on-disk representation of a Graph: vertices are
// assigned a dense integer id on first encounter (the "deduplication
// table keyed by identity during write" of §4.4) so that shared Vertex
// pointers round-trip as shared references rather than duplicated
// subgraphs.
type flatGraph struct {
	Blobs         map[oid.OID]int
	Vertices      []flatVertex
	CommitParents map[oid.OID][]oid.OID
}

type flatVertex struct {
	ParentIdx []int
	Commits   []oid.OID
}

func encode(g *graph.Graph) ([]byte, error) {
	ids := map[*graph.Vertex]int{}
	var vertices []flatVertex

	var assign func(v *graph.Vertex) int
	assign = func(v *graph.Vertex) int {
		if id, ok := ids[v]; ok {
			return id
		}
		id := len(vertices)
		ids[v] = id
		vertices = append(vertices, flatVertex{}) // reserve slot before recursing
		var parentIdx []int
		for _, p := range v.Parents {
			parentIdx = append(parentIdx, assign(p))
		}
		vertices[id] = flatVertex{ParentIdx: parentIdx, Commits: v.Commits}
		return id
	}

	blobs := map[oid.OID]int{}
	for b, v := range g.Blobs {
		blobs[b] = assign(v)
	}

	fg := flatGraph{Blobs: blobs, Vertices: vertices, CommitParents: g.CommitParents}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(fg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*graph.Graph, error) {
	var fg flatGraph
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&fg); err != nil {
		return nil, err
	}

	vertices := make([]*graph.Vertex, len(fg.Vertices))
	for i := range fg.Vertices {
		vertices[i] = &graph.Vertex{}
	}
	for i, fv := range fg.Vertices {
		vertices[i].Commits = fv.Commits
		for _, pid := range fv.ParentIdx {
			vertices[i].Parents = append(vertices[i].Parents, vertices[pid])
		}
	}

	blobs := make(map[oid.OID]*graph.Vertex, len(fg.Blobs))
	for b, idx := range fg.Blobs {
		blobs[b] = vertices[idx]
	}

	return &graph.Graph{Blobs: blobs, CommitParents: fg.CommitParents}, nil
}
