// Package vcs checks out repositories and applies patches with the git and
// patch command line tools.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultBranch is used when a job names no branch.
const DefaultBranch = "main"

// Cloner produces a working tree of url at branch in dest.
type Cloner interface {
	Clone(ctx context.Context, url, branch, dest string) error
}

// Git clones with a shallow single-branch checkout.
type Git struct {
	Timeout time.Duration
}

func (g Git) Clone(ctx context.Context, url, branch, dest string) error {
	if branch == "" {
		branch = DefaultBranch
	}
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--single-branch",
		"--branch", branch, url, dest)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git clone %s@%s: %w: %s", url, branch, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Checkout clones into a fresh temporary directory. The returned cleanup
// removes it and is safe to call when err is non-nil.
func Checkout(ctx context.Context, c Cloner, url, branch string) (dir string, cleanup func(), err error) {
	tmp, err := os.MkdirTemp("", "depprune-")
	if err != nil {
		return "", func() {}, fmt.Errorf("creating checkout dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(tmp) }

	dir = filepath.Join(tmp, "repo")
	if err := c.Clone(ctx, url, branch, dir); err != nil {
		return "", cleanup, err
	}
	return dir, cleanup, nil
}

// ApplyPatch applies a unified diff whose headers are repo-relative paths
// with `patch -p0` inside dir.
func ApplyPatch(ctx context.Context, dir, patch string) error {
	if strings.TrimSpace(patch) == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "patch", "-p0", "--forward", "--batch")
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(patch)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("patch -p0: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
