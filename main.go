// depprune finds unused Python imports and removes them through a resumable
// job pipeline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phobologic/depprune/internal/analysis"
	"github.com/phobologic/depprune/internal/config"
	"github.com/phobologic/depprune/internal/discover"
	"github.com/phobologic/depprune/internal/model"
	"github.com/phobologic/depprune/internal/ranking"
	"github.com/phobologic/depprune/internal/toon"
)

var version = "dev"

const reportHeader = "# Unused Import Report"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to a subcommand. Without one, it analyzes a directory.
func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "analyze":
			return runAnalyze(args[1:], stdout, stderr)
		case "submit":
			return runSubmit(args[1:], stdout, stderr)
		case "run":
			return runJob(args[1:], stdout, stderr)
		case "show":
			return runShow(args[1:], stdout, stderr)
		case "worker":
			return runWorker(args[1:], stdout, stderr)
		case "init":
			return runInit(args[1:], stdout, stderr)
		}
	}
	return runAnalyze(args, stdout, stderr)
}

func runAnalyze(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("depprune", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		maxModules  int
		module      string
		cachePath   string
		maxFileSize int
		asJSON      bool
		raw         bool
		noLint      bool
		showVersion bool
	)

	fs.IntVar(&maxModules, "n", 0, "maximum number of modules to include")
	fs.IntVar(&maxModules, "max-modules", 0, "maximum number of modules to include")
	fs.StringVar(&module, "m", "", "only modules matching this substring, with their neighbors")
	fs.StringVar(&module, "module", "", "only modules matching this substring, with their neighbors")
	fs.StringVar(&cachePath, "cache", "", "cache file path")
	fs.IntVar(&maxFileSize, "max-file-size", analysis.DefaultMaxFileSize, "skip files larger than this many bytes")
	fs.BoolVar(&asJSON, "json", false, "print the dependency result as JSON")
	fs.BoolVar(&raw, "raw", false, "omit the report header")
	fs.BoolVar(&noLint, "no-lint", false, "do not run ruff")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "depprune %s\n", version)
		return nil
	}

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}

	mods, err := discover.Modules(root)
	if err != nil {
		return fmt.Errorf("discovering modules: %w", err)
	}
	if len(mods) == 0 {
		return fmt.Errorf("no Python modules found")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg, stderr)

	var res *model.DependencyResult
	if cachePath != "" && cacheIsFresh(cachePath, root, mods) {
		res = readCache(cachePath)
	}
	if res == nil {
		opts := analysis.Options{
			Logger:      logger,
			Workers:     cfg.Workers,
			MaxFileSize: maxFileSize,
		}
		if !noLint {
			opts.Linter = newLinter(cfg)
		}
		an, err := analysis.Run(context.Background(), root, opts)
		if err != nil {
			return err
		}
		res = an.Result
		if cachePath != "" {
			writeCache(cachePath, res)
		}
	}

	if module != "" {
		res = ranking.FilterByModule(res, module)
	}
	if maxModules > 0 {
		res = ranking.SelectModules(res, maxModules)
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if !raw {
		_, _ = fmt.Fprintf(stdout, "%s\n\n", reportHeader)
	}
	_, _ = fmt.Fprintln(stdout, toon.Encode(filepath.Base(root), res))
	return nil
}

// cacheIsFresh reports whether the cache is newer than every module.
func cacheIsFresh(cachePath, root string, mods []model.Module) bool {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	cacheMtime := cacheInfo.ModTime()

	for _, m := range mods {
		fi, err := os.Stat(filepath.Join(root, filepath.FromSlash(m.Path)))
		if err != nil {
			return false
		}
		if !fi.ModTime().Before(cacheMtime) {
			return false
		}
	}
	return true
}

func readCache(path string) *model.DependencyResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var res model.DependencyResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil
	}
	return &res
}

func writeCache(path string, res *model.DependencyResult) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-n": true, "--n": true,
	"-max-modules": true, "--max-modules": true,
	"-m": true, "--m": true,
	"-module": true, "--module": true,
	"-cache": true, "--cache": true,
	"-max-file-size": true, "--max-file-size": true,
	"-b": true, "--b": true,
	"-branch": true, "--branch": true,
	"-doc": true, "--doc": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
