// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/sha1" //nolint:gosec // refs-key content hash, not used for security
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ali1234/gitxref/internal/bitmap"
	"github.com/ali1234/gitxref/internal/cache"
	"github.com/ali1234/gitxref/internal/cover"
	"github.com/ali1234/gitxref/internal/direct"
	"github.com/ali1234/gitxref/internal/gitrepo"
	"github.com/ali1234/gitxref/internal/graph"
	"github.com/ali1234/gitxref/internal/objstream"
	"github.com/ali1234/gitxref/internal/oid"
	"github.com/ali1234/gitxref/internal/propagate"
	"github.com/ali1234/gitxref/internal/sourcescan"
)

type options struct {
	rebuild   bool
	skipCache bool
	cacheDir  string
	step      int
	workers   int
	direct    bool
	verbose   bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "gitxref <repository> [directory]",
		Short: "find the commits that best explain a directory's contents",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath := args[0]
			dirPath := "."
			if len(args) == 2 {
				dirPath = args[1]
			}
			return run(repoPath, dirPath, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.rebuild, "rebuild", false, "force cache regeneration")
	flags.BoolVar(&opts.skipCache, "skip-cache", false, "inhibit cache read and write")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "override the cache directory (default: the repository's git directory)")
	flags.IntVar(&opts.step, "step", 0, "bitmap propagation chunk size in bits; must be a multiple of 8, 0 means no chunking")
	flags.IntVar(&opts.workers, "workers", runtime.NumCPU(), "worker pool size for --direct mode")
	flags.BoolVar(&opts.direct, "direct", false, "compute coverage via per-commit tree enumeration instead of the reverse graph")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "raise logging to debug level")

	return cmd
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(repoPath, dirPath string, opts *options) error {
	log := newLogger(opts.verbose)

	if opts.step != 0 && opts.step%8 != 0 {
		return fmt.Errorf("--step must be a multiple of 8, got %d", opts.step)
	}
	if opts.direct && (opts.rebuild || opts.skipCache) {
		return fmt.Errorf("--direct is mutually exclusive with --rebuild/--skip-cache")
	}

	repo, err := gitrepo.Open(repoPath)
	if err != nil {
		return fmt.Errorf("unable to open repository: %w", err)
	}

	log.Info("scanning source tree", "root", dirPath)
	source, err := sourcescan.Scan(dirPath)
	if err != nil {
		return fmt.Errorf("unable to scan source directory: %w", err)
	}
	log.Info("scanned source tree", "distinct blobs", source.Len())

	var commitBitmaps map[oid.OID]*bitmap.Bitmap

	if opts.direct {
		log.Info("computing coverage in direct mode", "workers", opts.workers)
		commitBitmaps, err = direct.Bitmaps(repo, source, opts.workers, log)
		if err != nil {
			return fmt.Errorf("direct mode failed: %w", err)
		}
	} else {
		g, err := loadOrBuildGraph(repo, opts, log)
		if err != nil {
			return err
		}

		log.Info("propagating bitmaps", "vertices", len(g.Blobs))
		commitBitmaps = propagate.Bitmaps(g, source.OIDs(), opts.step)
	}

	log.Info("selecting cover", "commits", len(commitBitmaps))
	groups := cover.Group(commitBitmaps)
	entries := cover.Select(source.Len(), groups)

	printEntries(os.Stdout, entries, source)
	return nil
}

// loadOrBuildGraph consults the graph cache (unless --skip-cache/--rebuild
// say otherwise) before falling back to streaming the object database and
// building the reverse graph from scratch.
func loadOrBuildGraph(repo *gitrepo.Repository, opts *options, log *slog.Logger) (*graph.Graph, error) {
	cacheDir := opts.cacheDir
	if cacheDir == "" {
		cacheDir = repo.GitDir()
	}

	refs, err := repo.RefsKey()
	if err != nil {
		return nil, fmt.Errorf("unable to compute cache key: %w", err)
	}
	sum := sha1.Sum(refs) //nolint:gosec // content hash for cache invalidation only
	key := sum[:]

	c := cache.New(cacheDir, cache.GraphArtifact, opts.skipCache, log)

	if !opts.rebuild {
		if g, err := c.Load(key); err == nil {
			return g, nil
		}
	}

	log.Info("building reverse graph")
	out := make(chan graph.Triple, 4096)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- objstream.Stream(repo, out)
	}()

	builder := graph.NewBuilder()
	objects := 0
	for t := range out {
		builder.Add(t)
		objects++
	}
	if err := <-streamErr; err != nil {
		return nil, fmt.Errorf("object stream failed: %w", err)
	}

	g := builder.Build()
	log.Info("built reverse graph", "objects", objects, "blobs", len(g.Blobs))

	if err := c.Save(key, g); err != nil {
		log.Warn("failed to persist graph cache", "err", err)
	}

	return g, nil
}

func printEntries(w *os.File, entries []cover.Entry, source *sourcescan.Table) {
	for _, e := range entries {
		label := "∅" // the trailing (nil, unfound) pseudo-entry
		if e.Commits != nil {
			ids := make([]string, len(e.Commits))
			for i, c := range e.Commits {
				ids[i] = c.String()[:12]
			}
			label = joinSpace(ids)
		}

		count := e.Covered.PopCount()
		fmt.Fprintf(w, "%s %s\n", label, humanize.Comma(int64(count)))

		for i := 0; i < source.Len(); i++ {
			if !e.Covered.Test(i) {
				continue
			}
			for _, p := range source.At(i).Paths {
				fmt.Fprintf(w, "\t%s\n", p)
			}
		}
	}
}

func joinSpace(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}
