// Package pipeline implements the four job stages. Each stage reads the
// previous stage's document, writes its own, and advances the job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/phobologic/depprune/internal/analysis"
	"github.com/phobologic/depprune/internal/codemod"
	"github.com/phobologic/depprune/internal/discover"
	"github.com/phobologic/depprune/internal/lang"
	"github.com/phobologic/depprune/internal/lint"
	"github.com/phobologic/depprune/internal/model"
	"github.com/phobologic/depprune/internal/planner"
	"github.com/phobologic/depprune/internal/store"
	"github.com/phobologic/depprune/internal/summary"
	"github.com/phobologic/depprune/internal/vcs"
)

// ErrUnknownStage is returned when asked to run a stage that does not exist.
var ErrUnknownStage = errors.New("unknown stage")

// Deps are the collaborators shared by all stages. Linter and Summarizer
// may be nil.
type Deps struct {
	Store      store.BlobStore
	Cloner     vcs.Cloner
	Linter     lint.Linter
	Summarizer summary.Summarizer
	Logger     *log.Logger
	Workers    int
	Now        func() time.Time
}

// Pipeline runs stages against persisted jobs.
type Pipeline struct {
	store      store.BlobStore
	cloner     vcs.Cloner
	linter     lint.Linter
	summarizer summary.Summarizer
	logger     *log.Logger
	workers    int
	now        func() time.Time
}

func New(d Deps) *Pipeline {
	p := &Pipeline{
		store:      d.Store,
		cloner:     d.Cloner,
		linter:     d.Linter,
		summarizer: d.Summarizer,
		logger:     d.Logger,
		workers:    d.Workers,
		now:        d.Now,
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Run executes stage for job. On failure the job is marked failed with the
// error message before the error is returned.
func (p *Pipeline) Run(ctx context.Context, stage model.Stage, job *model.Job) error {
	var err error
	switch stage {
	case model.StageDependencyAnalyst:
		err = p.DependencyAnalyst(ctx, job)
	case model.StagePlanner:
		err = p.Planner(ctx, job)
	case model.StageImplementer:
		err = p.Implementer(ctx, job)
	case model.StageReviewer:
		err = p.Reviewer(ctx, job)
	default:
		err = fmt.Errorf("%w '%s'", ErrUnknownStage, stage)
	}
	if err == nil {
		return nil
	}

	p.logger.Error("agent_stage_failed", "job_id", job.ID, "stage", stage, "error", err)
	if uerr := p.update(ctx, job.ID, map[string]any{
		"status": model.StatusFailed,
		"error":  err.Error(),
	}); uerr != nil {
		p.logger.Error("agent_stage_failed", "job_id", job.ID, "stage", stage, "error", uerr)
	}
	return err
}

func (p *Pipeline) update(ctx context.Context, jobID string, fields map[string]any) error {
	fields["updated_at"] = p.now().UTC()
	return store.UpdateJob(ctx, p.store, jobID, fields)
}

func (p *Pipeline) advance(ctx context.Context, job *model.Job, from model.Stage) error {
	next := from.Next()
	if next == "" {
		return p.update(ctx, job.ID, map[string]any{"status": model.StatusCompleted})
	}
	return p.update(ctx, job.ID, map[string]any{"stage": next})
}

func (p *Pipeline) checkout(ctx context.Context, job *model.Job) (string, func(), error) {
	branch := job.Branch
	if branch == "" {
		branch = vcs.DefaultBranch
	}
	dir, cleanup, err := vcs.Checkout(ctx, p.cloner, job.RepoURL, branch)
	if err != nil {
		return "", cleanup, fmt.Errorf("checkout: %w", err)
	}
	return dir, cleanup, nil
}

// DependencyAnalyst builds the import graph and unused import index of a
// fresh checkout and stores it as dependency.json.
func (p *Pipeline) DependencyAnalyst(ctx context.Context, job *model.Job) error {
	dir, cleanup, err := p.checkout(ctx, job)
	defer cleanup()
	if err != nil {
		return err
	}

	an, err := analysis.Run(ctx, dir, analysis.Options{
		Linter:  p.linter,
		Logger:  p.logger,
		Workers: p.workers,
	})
	if err != nil {
		return err
	}
	p.logger.Info("dependency analysis done", "job_id", job.ID,
		"modules", len(an.Result.Nodes), "edges", len(an.Result.Edges), "impacted", len(an.Result.Impacted))

	if err := store.Save(ctx, p.store, job.ID, model.DocDependency, an.Result); err != nil {
		return err
	}
	return p.advance(ctx, job, model.StageDependencyAnalyst)
}

// Planner picks the candidate module from dependency.json.
func (p *Pipeline) Planner(ctx context.Context, job *model.Job) error {
	var res model.DependencyResult
	if err := store.Load(ctx, p.store, job.ID, model.DocDependency, &res); err != nil {
		return err
	}

	plan, err := planner.Plan(&res)
	if err != nil {
		return err
	}
	p.logger.Info("candidate selected", "job_id", job.ID, "candidate", plan.Candidate,
		"unused", len(plan.UnusedImports))

	if err := store.Save(ctx, p.store, job.ID, model.DocPlan, plan); err != nil {
		return err
	}
	return p.advance(ctx, job, model.StagePlanner)
}

// Implementer removes the planned imports from the candidate file of a fresh
// checkout and stores the diff.
func (p *Pipeline) Implementer(ctx context.Context, job *model.Job) error {
	var plan model.Plan
	if err := store.Load(ctx, p.store, job.ID, model.DocPlan, &plan); err != nil {
		return err
	}
	if plan.Candidate == "" || len(plan.UnusedImports) == 0 {
		return fmt.Errorf("plan must include candidate and unused_imports: %w", codemod.ErrNoTargets)
	}

	dir, cleanup, err := p.checkout(ctx, job)
	defer cleanup()
	if err != nil {
		return err
	}

	rel, err := locate(dir, plan.Candidate, plan.Path)
	if err != nil {
		return err
	}
	source, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("reading %s: %w", rel, err)
	}

	out, err := codemod.Rewrite(lang.Languages["python"], rel, string(source), plan.UnusedImports)
	if err != nil {
		return err
	}

	result := model.PatchResult{
		Candidate:     plan.Candidate,
		Path:          rel,
		UnusedImports: plan.UnusedImports,
		LinesRemoved:  out.Removed,
		LinesAdded:    out.Added,
		Patch:         out.Patch,
	}
	p.logger.Info("patch produced", "job_id", job.ID, "path", rel,
		"removed", out.Removed, "added", out.Added)

	if err := store.Save(ctx, p.store, job.ID, model.DocDiff, result); err != nil {
		return err
	}
	return p.advance(ctx, job, model.StageImplementer)
}

// Reviewer applies the stored patch to a fresh checkout, lints the candidate
// file and summarizes the findings.
func (p *Pipeline) Reviewer(ctx context.Context, job *model.Job) error {
	var diff model.PatchResult
	if err := store.Load(ctx, p.store, job.ID, model.DocDiff, &diff); err != nil {
		return err
	}
	if diff.Candidate == "" {
		return fmt.Errorf("implement.diff must include candidate")
	}

	dir, cleanup, err := p.checkout(ctx, job)
	defer cleanup()
	if err != nil {
		return err
	}

	if err := vcs.ApplyPatch(ctx, dir, diff.Patch); err != nil {
		p.logger.Warn("patch did not apply, reviewing checkout as is", "job_id", job.ID, "err", err)
	}

	rel, err := locate(dir, diff.Candidate, diff.Path)
	if err != nil {
		return err
	}

	items := []model.LintFinding{}
	if p.linter != nil {
		findings, err := p.linter.Check(ctx, dir, []string{rel})
		if err != nil {
			p.logger.Warn("linter failed", "job_id", job.ID, "err", err)
		} else {
			items = append(items, findings...)
		}
	}

	review := model.ReviewResult{
		LintIssues: model.LintIssues{Count: len(items), Items: items},
		Summary:    summary.Review(ctx, p.summarizer, items),
	}
	p.logger.Info("review done", "job_id", job.ID, "issues", len(items))

	if err := store.Save(ctx, p.store, job.ID, model.DocReview, review); err != nil {
		return err
	}
	return p.advance(ctx, job, model.StageReviewer)
}

// locate finds the candidate's file in dir, preferring the recorded path.
func locate(dir, candidate, recorded string) (string, error) {
	if recorded != "" {
		if fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(recorded))); err == nil && !fi.IsDir() {
			return recorded, nil
		}
	}
	rel, ok := discover.Locate(dir, candidate)
	if !ok {
		return "", fmt.Errorf("target file not found for %s", candidate)
	}
	return rel, nil
}
