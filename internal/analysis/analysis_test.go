package analysis

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/depprune/internal/model"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func quiet() *log.Logger {
	return log.New(io.Discard)
}

type fakeLinter struct {
	findings []model.LintFinding
	err      error
}

func (f fakeLinter) Check(context.Context, string, []string, ...string) ([]model.LintFinding, error) {
	return f.findings, f.err
}

func TestRunAcyclic(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.py", "from b import helper\n\nhelper()\n")
	writeFile(t, root, "b.py", "import os\n\ndef helper():\n    return 1\n")

	an, err := Run(context.Background(), root, Options{Logger: quiet(), Workers: 2})
	require.NoError(t, err)
	res := an.Result

	assert.Equal(t, []string{"a", "b"}, res.Nodes)
	assert.Equal(t, [][2]string{{"a", "b"}}, res.Edges)
	assert.Equal(t, []string{"a", "b"}, res.TopoOrder)
	assert.Empty(t, res.Warnings.CircularImports)
	assert.Equal(t, map[string][]string{"b": {"os::os"}}, res.UnusedImports)
	assert.Equal(t, []string{"b"}, res.Impacted)
	assert.Equal(t, map[string]string{"a": "a.py", "b": "b.py"}, res.Files)
	assert.Greater(t, res.Rank["b"], res.Rank["a"])
}

func TestRunCycle(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "x.py", "import y\n\ny.f()\n")
	writeFile(t, root, "y.py", "import x\n\nx.g()\n")

	an, err := Run(context.Background(), root, Options{Logger: quiet()})
	require.NoError(t, err)
	res := an.Result

	assert.Empty(t, res.TopoOrder)
	assert.Equal(t, []string{"x", "y"}, res.Warnings.CircularImports)
	assert.Empty(t, res.UnusedImports)
	assert.Empty(t, res.Impacted)
}

func TestRunSyntaxErrorKeepsModule(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "bad.py", "import os\ndef broken(:\n")
	writeFile(t, root, "good.py", "import bad\n\nbad.x\n")

	an, err := Run(context.Background(), root, Options{Logger: quiet()})
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "good"}, an.Result.Nodes)
	assert.Equal(t, [][2]string{{"good", "bad"}}, an.Result.Edges)
	assert.Empty(t, an.Result.UnusedImports)
}

func TestRunMergesLinterFindings(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "pkg/__init__.py", "")
	writeFile(t, root, "pkg/mod.py", "import os\nimport json\n\njson.dumps({})\n")

	linter := fakeLinter{findings: []model.LintFinding{
		{File: "pkg/mod.py", Line: 1, Code: "F401", Message: "`os` imported but unused"},
		{File: "pkg/mod.py", Line: 2, Code: "E501", Message: "line too long"},
		{File: "venv/lib.py", Line: 1, Code: "F401", Message: "`re` imported but unused"},
	}}

	an, err := Run(context.Background(), root, Options{Logger: quiet(), Linter: linter})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"pkg.mod": {"os::os"}}, an.Result.UnusedImports)
}

func TestRunLinterFailureIsIgnored(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "m.py", "import os\n")

	an, err := Run(context.Background(), root, Options{Logger: quiet(), Linter: fakeLinter{err: errors.New("boom")}})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"m": {"os::os"}}, an.Result.UnusedImports)
}

func TestRunEmptyTree(t *testing.T) {
	t.Parallel()

	an, err := Run(context.Background(), t.TempDir(), Options{Logger: quiet()})
	require.NoError(t, err)
	assert.Empty(t, an.Result.Nodes)
	assert.NotNil(t, an.Result.Edges)
	assert.NotNil(t, an.Result.TopoOrder)
}
