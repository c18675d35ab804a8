// Package runner drives a job through its stages, one stage per invocation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/phobologic/depprune/internal/invoke"
	"github.com/phobologic/depprune/internal/model"
	"github.com/phobologic/depprune/internal/pipeline"
	"github.com/phobologic/depprune/internal/store"
	"github.com/phobologic/depprune/internal/vcs"
)

var (
	// ErrUnknownStatus is returned for a job whose status is not recognized.
	ErrUnknownStatus = errors.New("unknown status")
	// ErrUnknownStage is returned for a job whose stage is not recognized.
	ErrUnknownStage = pipeline.ErrUnknownStage
	// ErrMissingRepo is returned for a job without a repository URL.
	ErrMissingRepo = errors.New("repo_url is missing in job")
)

// Result is the outcome of one invocation.
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Decision says what an invocation should do with a loaded job.
type Decision struct {
	Dispatch bool
	Promote  bool
	Stage    model.Stage
}

// Decide validates job and returns the action for this invocation. Terminal
// jobs yield a zero Decision. Any error means the job must be failed.
func Decide(job *model.Job) (Decision, error) {
	if strings.TrimSpace(job.RepoURL) == "" {
		return Decision{}, ErrMissingRepo
	}
	if !job.Status.Valid() {
		return Decision{}, fmt.Errorf("%w '%s'", ErrUnknownStatus, job.Status)
	}
	if !job.Stage.Valid() {
		return Decision{}, fmt.Errorf("%w '%s'", ErrUnknownStage, job.Stage)
	}
	if job.Status.Terminal() {
		return Decision{}, nil
	}
	return Decision{
		Dispatch: true,
		Promote:  job.Status == model.StatusAccepted,
		Stage:    job.Stage,
	}, nil
}

// ShouldContinue reports whether another invocation is needed after
// attempted ran and the job was reloaded as after.
func ShouldContinue(attempted model.Stage, after *model.Job) bool {
	if after == nil || after.Status.Terminal() || !after.Status.Valid() {
		return false
	}
	return after.Stage.Valid() && after.Stage != attempted
}

// Stager runs one stage of a job.
type Stager interface {
	Run(ctx context.Context, stage model.Stage, job *model.Job) error
}

// Runner is the job state machine driver.
type Runner struct {
	store   store.BlobStore
	stages  Stager
	invoker invoke.Invoker
	logger  *log.Logger
	now     func() time.Time
}

// New returns a driver. A nil invoker runs exactly one stage per Handle
// without scheduling a follow-up.
func New(bs store.BlobStore, stages Stager, inv invoke.Invoker, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{store: bs, stages: stages, invoker: inv, logger: logger, now: time.Now}
}

// Handle performs at most one stage transition for jobID and, if the job
// advanced and is still active, triggers exactly one follow-up invocation.
// It never returns an error; failures are reported in the Result.
func (r *Runner) Handle(ctx context.Context, jobID string) Result {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		r.logger.Error("runner_invalid_event", "error", "missing job_id")
		return Result{Error: "missing job_id"}
	}

	job, err := store.LoadJob(ctx, r.store, jobID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Error("runner_job_not_found", "job_id", jobID, "error", "job not found")
		return Result{Error: "job not found"}
	}
	if err != nil {
		r.logger.Error("runner_job_load_failed", "job_id", jobID, "error", err)
		if errors.Is(err, store.ErrCorrupt) {
			r.failCorrupt(ctx, jobID, err)
		}
		return Result{Error: err.Error()}
	}
	if job.ID == "" {
		job.ID = jobID
	}

	decision, err := Decide(job)
	if err != nil {
		r.fail(ctx, job, err)
		return Result{Error: err.Error()}
	}
	if !decision.Dispatch {
		return Result{OK: true}
	}

	if decision.Promote {
		if err := r.update(ctx, jobID, map[string]any{"status": model.StatusRunning}); err != nil {
			r.logger.Error("runner_stage_failed", "job_id", jobID, "stage", job.Stage, "error", err)
			return Result{Error: err.Error()}
		}
		job.Status = model.StatusRunning
	}
	if job.Branch == "" {
		job.Branch = vcs.DefaultBranch
	}

	r.logger.Info("runner_stage_dispatch", "job_id", jobID, "status", job.Status, "stage", decision.Stage)
	if err := r.stages.Run(ctx, decision.Stage, job); err != nil {
		r.logger.Error("runner_stage_failed", "job_id", jobID, "stage", decision.Stage, "error", err)
		return Result{Error: err.Error()}
	}
	r.logger.Info("runner_stage_completed", "job_id", jobID, "status", job.Status, "stage", decision.Stage)

	after, err := store.LoadJob(ctx, r.store, jobID)
	if err != nil {
		r.logger.Error("runner_job_load_failed", "job_id", jobID, "error", err)
		return Result{OK: true}
	}
	if ShouldContinue(decision.Stage, after) && r.invoker != nil {
		if err := r.invoker.Invoke(ctx, jobID); err != nil {
			r.logger.Error("runner_reinvoke_failed", "job_id", jobID, "stage", after.Stage, "error", err)
		}
	}
	return Result{OK: true}
}

// Run adapts Handle to invoke.HandlerFunc, logging failed results.
func (r *Runner) Run(ctx context.Context, jobID string) {
	if res := r.Handle(ctx, jobID); !res.OK {
		r.logger.Debug("invocation failed", "job_id", jobID, "error", res.Error)
	}
}

func (r *Runner) fail(ctx context.Context, job *model.Job, cause error) {
	r.logger.Error("runner_stage_failed", "job_id", job.ID, "stage", job.Stage, "error", cause)
	if err := r.update(ctx, job.ID, map[string]any{
		"status": model.StatusFailed,
		"error":  cause.Error(),
	}); err != nil {
		r.logger.Error("runner_stage_failed", "job_id", job.ID, "stage", job.Stage, "error", err)
	}
}

// failCorrupt marks a job whose document no longer decodes as failed. A
// document that is not a JSON object at all is replaced.
func (r *Runner) failCorrupt(ctx context.Context, jobID string, cause error) {
	err := r.update(ctx, jobID, map[string]any{
		"status": model.StatusFailed,
		"error":  cause.Error(),
	})
	if errors.Is(err, store.ErrCorrupt) {
		err = store.Save(ctx, r.store, jobID, model.DocJob, map[string]any{
			"job_id":     jobID,
			"status":     model.StatusFailed,
			"error":      cause.Error(),
			"updated_at": r.now().UTC(),
		})
	}
	if err != nil {
		r.logger.Error("runner_job_load_failed", "job_id", jobID, "error", err)
	}
}

func (r *Runner) update(ctx context.Context, jobID string, fields map[string]any) error {
	fields["updated_at"] = r.now().UTC()
	return store.UpdateJob(ctx, r.store, jobID, fields)
}
