package lint

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/phobologic/depprune/internal/model"
)

func TestParseFlatOutput(t *testing.T) {
	t.Parallel()

	root := filepath.FromSlash("/repo")
	data := []byte(`[
	  {"code": "F401", "message": "` + "`os`" + ` imported but unused",
	   "filename": "` + filepath.ToSlash(filepath.Join(root, "pkg", "mod.py")) + `",
	   "location": {"row": 3, "column": 8}},
	  {"code": null, "message": "SyntaxError: bad", "filename": "rel.py",
	   "location": {"row": 1, "column": 1}}
	]`)

	got, err := Parse(data, filepath.ToSlash(root))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []model.LintFinding{
		{File: "pkg/mod.py", Line: 3, Code: "F401", Message: "`os` imported but unused"},
		{File: "rel.py", Line: 1, Code: "", Message: "SyntaxError: bad"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse = %+v, want %+v", got, want)
	}
}

func TestParseGroupedOutput(t *testing.T) {
	t.Parallel()

	data := []byte(`[{"filename": "a.py", "messages": [
	  {"code": "F401", "message": "x", "location": {"row": 1}},
	  {"code": "E501", "message": "y", "location": {"row": 2}}
	]}]`)

	got, err := Parse(data, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 2 || got[0].File != "a.py" || got[1].Code != "E501" || got[1].Line != 2 {
		t.Errorf("Parse = %+v", got)
	}
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	got, err := Parse([]byte("  \n"), "/repo")
	if err != nil || got != nil {
		t.Errorf("Parse(empty) = %v, %v", got, err)
	}
	if _, err := Parse([]byte("not json"), "/repo"); err == nil {
		t.Error("expected error for invalid output")
	}
}

func TestFindRuffMissingBinary(t *testing.T) {
	t.Parallel()

	if r := FindRuff("definitely-not-a-real-linter-binary", 0); r != nil {
		t.Errorf("FindRuff = %+v, want nil", r)
	}
}
