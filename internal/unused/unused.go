// Package unused flags imported names that a module never references.
package unused

import (
	"sort"
	"strings"

	"github.com/phobologic/depprune/internal/discover"
	"github.com/phobologic/depprune/internal/model"
)

// LinterKey is the source key used for linter findings that cannot be
// matched to an import record.
const LinterKey = "ruff"

// Detect returns, per module, the sorted "<key>::<local>" entries for imports
// whose bound name never appears in the module's used identifiers. Star
// imports are presumed used. Modules without findings are omitted.
func Detect(files []model.FileImports) map[string][]string {
	out := make(map[string][]string)
	for i := range files {
		fi := &files[i]
		set := make(map[string]struct{})
		for j := range fi.Imports {
			rec := &fi.Imports[j]
			if rec.Star {
				continue
			}
			if _, ok := fi.Used[rec.Local]; ok {
				continue
			}
			set[rec.Encode()] = struct{}{}
		}
		if len(set) > 0 {
			out[fi.Module.ID] = sortedKeys(set)
		}
	}
	return out
}

// FromLint converts unused-import findings from the external linter into the
// same encoding. Each finding is matched to the import record declared on
// its line; unmatched findings are kept under LinterKey.
func FromLint(findings []model.LintFinding, files []model.FileImports) map[string][]string {
	byPath := make(map[string]*model.FileImports, len(files))
	for i := range files {
		byPath[files[i].Module.Path] = &files[i]
	}

	sets := make(map[string]map[string]struct{})
	for _, f := range findings {
		mod := discover.ModuleID(f.File)
		name := quotedName(f.Message)

		entry := ""
		if fi, ok := byPath[f.File]; ok {
			mod = fi.Module.ID
			if rec := matchRecord(fi.Imports, f.Line, name); rec != nil {
				entry = rec.Encode()
			}
		}
		if entry == "" {
			if name != "" {
				entry = LinterKey + "::" + name
			} else {
				entry = LinterKey + "::" + f.Message
			}
		}

		if sets[mod] == nil {
			sets[mod] = make(map[string]struct{})
		}
		sets[mod][entry] = struct{}{}
	}

	out := make(map[string][]string, len(sets))
	for mod, set := range sets {
		out[mod] = sortedKeys(set)
	}
	return out
}

// Merge unions two indexes per module. Entries are de-duplicated and sorted;
// modules with no entries are dropped.
func Merge(a, b map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for _, src := range []map[string][]string{a, b} {
		for mod, entries := range src {
			out[mod] = append(out[mod], entries...)
		}
	}
	for mod, entries := range out {
		set := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			set[e] = struct{}{}
		}
		if len(set) == 0 {
			delete(out, mod)
			continue
		}
		out[mod] = sortedKeys(set)
	}
	return out
}

// Impacted lists modules with unused imports, most findings first, then by id.
func Impacted(index map[string][]string) []string {
	mods := make([]string, 0, len(index))
	for mod := range index {
		mods = append(mods, mod)
	}
	sort.Slice(mods, func(i, j int) bool {
		if len(index[mods[i]]) != len(index[mods[j]]) {
			return len(index[mods[i]]) > len(index[mods[j]])
		}
		return mods[i] < mods[j]
	})
	return mods
}

func matchRecord(imports []model.ImportRecord, line int, name string) *model.ImportRecord {
	for i := range imports {
		rec := &imports[i]
		if rec.Line != line || rec.Star {
			continue
		}
		if name == "" {
			return rec
		}
		qualified := rec.Name
		if rec.From {
			qualified = strings.TrimLeft(joinDotted(rec.Key, rec.Name), ".")
		}
		if name == qualified || name == rec.Name || name == rec.Local ||
			strings.HasSuffix(name, "."+rec.Name) {
			return rec
		}
	}
	return nil
}

func joinDotted(key, name string) string {
	if strings.Trim(key, ".") == "" {
		return key + name
	}
	return key + "." + name
}

// quotedName returns the first backtick-quoted token of a linter message,
// e.g. "os.path" from "`os.path` imported but unused".
func quotedName(msg string) string {
	parts := strings.Split(msg, "`")
	if len(parts) >= 3 {
		return parts[1]
	}
	return ""
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
