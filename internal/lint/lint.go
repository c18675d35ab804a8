// Package lint runs an external Python linter and normalizes its findings.
package lint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/phobologic/depprune/internal/model"
)

// UnusedImport is the linter rule for imported-but-unused names.
const UnusedImport = "F401"

// Linter checks files under root. A nil Linter means no linter is installed;
// callers treat that as an empty result.
type Linter interface {
	Check(ctx context.Context, root string, paths []string, codes ...string) ([]model.LintFinding, error)
}

// Ruff invokes the ruff binary with JSON output.
type Ruff struct {
	Bin     string
	Timeout time.Duration
}

// FindRuff returns a Ruff linter if bin (default "ruff") is on PATH, or nil.
func FindRuff(bin string, timeout time.Duration) *Ruff {
	if bin == "" {
		bin = "ruff"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil
	}
	return &Ruff{Bin: path, Timeout: timeout}
}

// Check runs ruff over paths (relative to root, or root itself when empty)
// and returns findings with repo-relative, slash-separated file names.
func (r *Ruff) Check(ctx context.Context, root string, paths []string, codes ...string) ([]model.LintFinding, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := []string{"check", "--output-format", "json", "--exit-zero", "--no-cache"}
	if len(codes) > 0 {
		args = append(args, "--select", strings.Join(codes, ","))
	}
	if len(paths) == 0 {
		args = append(args, root)
	}
	for _, p := range paths {
		args = append(args, filepath.Join(root, filepath.FromSlash(p)))
	}

	cmd := exec.CommandContext(ctx, r.Bin, args...)
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || len(out) == 0 {
			return nil, fmt.Errorf("running %s: %w", r.Bin, err)
		}
	}

	return Parse(out, root)
}

type location struct {
	Row int `json:"row"`
}

type diagnostic struct {
	Filename string       `json:"filename"`
	Code     *string      `json:"code"`
	Message  string       `json:"message"`
	Location location     `json:"location"`
	Messages []diagnostic `json:"messages"`
}

// Parse decodes ruff JSON output. Both the flat diagnostic list and the
// older per-file "messages" grouping are accepted.
func Parse(data []byte, root string) ([]model.LintFinding, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var diags []diagnostic
	if err := json.Unmarshal(data, &diags); err != nil {
		return nil, fmt.Errorf("decoding linter output: %w", err)
	}

	var findings []model.LintFinding
	for _, d := range diags {
		file := relPath(root, d.Filename)
		if len(d.Messages) > 0 {
			for _, m := range d.Messages {
				findings = append(findings, finding(file, m))
			}
			continue
		}
		findings = append(findings, finding(file, d))
	}
	return findings, nil
}

func finding(file string, d diagnostic) model.LintFinding {
	var code string
	if d.Code != nil {
		code = *d.Code
	}
	return model.LintFinding{
		File:    file,
		Line:    d.Location.Row,
		Code:    code,
		Message: d.Message,
	}
}

func relPath(root, name string) string {
	if name == "" {
		return ""
	}
	if root != "" && filepath.IsAbs(name) {
		if rel, err := filepath.Rel(root, name); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(name)
}
