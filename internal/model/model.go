// Package model defines core data structures for depprune.
package model

import "time"

// Module is one Python source file identified by its dotted module id.
type Module struct {
	ID   string // e.g. "pkg.sub" for pkg/sub.py or pkg/sub/__init__.py
	Path string // Relative to repo root, slash separated
}

// ImportRecord is a single name bound by an import statement.
type ImportRecord struct {
	// Key is the dotted path of a plain import ("os.path") or the
	// dot-prefixed base of a qualified import ("..pkg", ".").
	Key string
	// Name is the declared name: the full dotted path for plain imports,
	// the imported member for qualified imports, "*" for star imports.
	Name string
	// Local is the name bound in the importing module.
	Local string
	Line  int
	Level int
	From  bool
	Star  bool
}

// Encode returns the "<source-key>::<local-name>" form used by the
// unused-import index.
func (r ImportRecord) Encode() string {
	return r.Key + "::" + r.Local
}

// FileImports holds the analysis of one module.
type FileImports struct {
	Module  Module
	Imports []ImportRecord
	Used    map[string]struct{}
}

// Graph maps every module id to the sorted ids it imports.
type Graph map[string][]string

// Warnings holds non-fatal analysis findings.
type Warnings struct {
	CircularImports []string `json:"circular_imports,omitempty"`
}

// DependencyResult is the persisted output of the dependency_analyst stage.
type DependencyResult struct {
	Nodes         []string            `json:"nodes"`
	Edges         [][2]string         `json:"edges"`
	Impacted      []string            `json:"impacted"`
	TopoOrder     []string            `json:"topo_order"`
	Warnings      Warnings            `json:"warnings"`
	UnusedImports map[string][]string `json:"unused_imports"`
	Files         map[string]string   `json:"files,omitempty"`
	Rank          map[string]float64  `json:"rank,omitempty"`
}

// Plan is the persisted output of the planner stage.
type Plan struct {
	Candidate     string   `json:"candidate"`
	Path          string   `json:"path,omitempty"`
	UnusedImports []string `json:"unused_imports"`
	Reason        string   `json:"reason"`
}

// PatchResult is the persisted output of the implementer stage.
type PatchResult struct {
	Candidate     string   `json:"candidate"`
	Path          string   `json:"path,omitempty"`
	UnusedImports []string `json:"unused_imports"`
	LinesRemoved  int      `json:"lines_removed"`
	LinesAdded    int      `json:"lines_added"`
	Patch         string   `json:"patch"`
}

// LintFinding is one diagnostic reported by the external linter.
type LintFinding struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LintIssues groups the findings of a review.
type LintIssues struct {
	Count int           `json:"count"`
	Items []LintFinding `json:"items"`
}

// ReviewResult is the persisted output of the reviewer stage.
type ReviewResult struct {
	LintIssues LintIssues `json:"lint_issues"`
	Summary    string     `json:"summary"`
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAccepted, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further stage will run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names one of the four processing steps.
type Stage string

const (
	StageDependencyAnalyst Stage = "dependency_analyst"
	StagePlanner           Stage = "planner"
	StageImplementer       Stage = "implementer"
	StageReviewer          Stage = "reviewer"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageDependencyAnalyst, StagePlanner, StageImplementer, StageReviewer}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, st := range Stages {
		if s == st {
			return true
		}
	}
	return false
}

// Next returns the stage after s, or "" for the reviewer.
func (s Stage) Next() Stage {
	for i, st := range Stages {
		if s == st && i+1 < len(Stages) {
			return Stages[i+1]
		}
	}
	return ""
}

// Job is the persisted job document.
type Job struct {
	ID        string    `json:"job_id"`
	RepoURL   string    `json:"repo_url"`
	Branch    string    `json:"branch"`
	Status    Status    `json:"status"`
	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Document names under jobs/<job-id>/.
const (
	DocJob        = "job"
	DocDependency = "dependency"
	DocPlan       = "plan"
	DocDiff       = "implement.diff"
	DocReview     = "review"
)
