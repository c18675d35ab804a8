// Package discover finds Python modules in a repository checkout.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/depprune/internal/lang"
	"github.com/phobologic/depprune/internal/model"
)

// skipDirs holds version control and tool cache directories. Everything else,
// virtualenvs and build output included, is left to .gitignore.
var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	".git":          {},
	".hg":           {},
	".svn":          {},
	".tox":          {},
	".nox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
}

// Modules discovers Python source files under root and returns them as
// modules sorted by path. Files ignored by git are skipped.
func Modules(root string) ([]model.Module, error) {
	py := lang.Languages["python"]

	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []model.Module

	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if p == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		if lang.ForExtension(filepath.Ext(name)) != py.Name {
			return nil
		}

		results = append(results, model.Module{ID: ModuleID(rel), Path: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// ModuleID converts a repo-relative file path into a dotted module id.
// Package index files collapse to their directory: pkg/__init__.py -> pkg.
func ModuleID(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	parts := strings.Split(rel, "/")
	if len(parts) > 0 && parts[len(parts)-1] == indexStem() {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}

// ModulePaths returns the candidate repo-relative paths for a module id,
// plain module file first.
func ModulePaths(id string) []string {
	py := lang.Languages["python"]
	base := strings.ReplaceAll(id, ".", "/")
	if base == "" {
		return []string{py.IndexFile}
	}
	return []string{base + py.Extensions[0], path.Join(base, py.IndexFile)}
}

// indexStem is the package index file name without its extension.
func indexStem() string {
	index := lang.Languages["python"].IndexFile
	return strings.TrimSuffix(index, path.Ext(index))
}

// Locate returns the first existing file for module id under root.
func Locate(root, id string) (string, bool) {
	for _, rel := range ModulePaths(id) {
		fi, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err == nil && !fi.IsDir() {
			return rel, true
		}
	}
	return "", false
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	p := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(p)
	if err != nil {
		return nil
	}
	return gi
}
