// Package analysis builds the dependency result for one checkout: module
// discovery, concurrent parsing, graph construction, ordering and unused
// import detection.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/depprune/internal/discover"
	"github.com/phobologic/depprune/internal/graph"
	"github.com/phobologic/depprune/internal/lang"
	"github.com/phobologic/depprune/internal/lint"
	"github.com/phobologic/depprune/internal/model"
	"github.com/phobologic/depprune/internal/parse"
	"github.com/phobologic/depprune/internal/unused"
)

// DefaultMaxFileSize bounds the files that are parsed.
const DefaultMaxFileSize = 1_000_000 // 1 MB

// Options tunes a Run. The zero value parses with GOMAXPROCS workers, no
// linter and the default logger.
type Options struct {
	Linter      lint.Linter
	Logger      *log.Logger
	Workers     int
	MaxFileSize int
}

// Analysis is the full output of Run.
type Analysis struct {
	Files  []model.FileImports
	Graph  model.Graph
	Result *model.DependencyResult
}

// Run analyzes every Python module under root.
func Run(ctx context.Context, root string, opts Options) (*Analysis, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	mods, err := discover.Modules(root)
	if err != nil {
		return nil, fmt.Errorf("discovering modules: %w", err)
	}

	files, err := parseAll(ctx, root, mods, opts, logger)
	if err != nil {
		return nil, err
	}

	g := graph.Build(files)
	order, residual := graph.TopoSort(g)
	if len(residual) > 0 {
		logger.Warn("circular imports", "modules", residual)
	}

	index := unused.Detect(files)
	if opts.Linter != nil {
		index = unused.Merge(index, lintIndex(ctx, root, files, g, opts.Linter, logger))
	}

	paths := make(map[string]string, len(files))
	for i := range files {
		paths[files[i].Module.ID] = files[i].Module.Path
	}

	res := &model.DependencyResult{
		Nodes:         graph.Nodes(g),
		Edges:         graph.Edges(g),
		Impacted:      unused.Impacted(index),
		TopoOrder:     order,
		Warnings:      model.Warnings{CircularImports: residual},
		UnusedImports: index,
		Files:         paths,
		Rank:          graph.Rank(g),
	}
	if res.Edges == nil {
		res.Edges = [][2]string{}
	}
	if res.TopoOrder == nil {
		res.TopoOrder = []string{}
	}

	return &Analysis{Files: files, Graph: g, Result: res}, nil
}

// parseAll analyzes modules on a bounded set of goroutines, each with its own
// parser. Files that cannot be read or parsed stay in the universe with no
// imports.
func parseAll(ctx context.Context, root string, mods []model.Module, opts Options, logger *log.Logger) ([]model.FileImports, error) {
	l := lang.Languages["python"]
	query, err := l.GetImportQuery()
	if err != nil {
		return nil, fmt.Errorf("import query: %w", err)
	}

	if len(mods) == 0 {
		return nil, nil
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(mods) {
		workers = len(mods)
	}

	files := make([]model.FileImports, len(mods))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for w := range workers {
		g.Go(func() error {
			parser := l.NewParser()
			defer parser.Close()

			for i := w; i < len(mods); i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				mod := mods[i]
				files[i] = model.FileImports{Module: mod, Used: map[string]struct{}{}}

				abs := filepath.Join(root, filepath.FromSlash(mod.Path))
				if fi, err := os.Stat(abs); err == nil && fi.Size() > int64(maxSize) {
					logger.Warn("skipping large file", "path", mod.Path, "bytes", fi.Size())
					continue
				}
				source, err := os.ReadFile(abs)
				if err != nil {
					logger.Warn("reading module", "path", mod.Path, "err", err)
					continue
				}

				fi, err := parse.Analyze(l, parser, query, source, mod)
				if err != nil {
					if !errors.Is(err, parse.ErrSyntax) {
						logger.Warn("parsing module", "path", mod.Path, "err", err)
					} else {
						logger.Warn("syntax error, imports ignored", "path", mod.Path)
					}
					continue
				}
				files[i] = fi
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// lintIndex runs the external linter's unused-import rule and keeps the
// findings that belong to known modules.
func lintIndex(ctx context.Context, root string, files []model.FileImports, g model.Graph, linter lint.Linter, logger *log.Logger) map[string][]string {
	findings, err := linter.Check(ctx, root, nil, lint.UnusedImport)
	if err != nil {
		logger.Warn("linter unavailable, using internal analysis only", "err", err)
		return nil
	}

	var f401 []model.LintFinding
	for _, f := range findings {
		if f.Code == lint.UnusedImport {
			f401 = append(f401, f)
		}
	}

	index := unused.FromLint(f401, files)
	for mod := range index {
		if _, ok := g[mod]; !ok {
			delete(index, mod)
		}
	}
	return index
}
