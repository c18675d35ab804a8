package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/phobologic/depprune/internal/config"
	"github.com/phobologic/depprune/internal/invoke"
	"github.com/phobologic/depprune/internal/lint"
	"github.com/phobologic/depprune/internal/model"
	"github.com/phobologic/depprune/internal/pipeline"
	"github.com/phobologic/depprune/internal/runner"
	"github.com/phobologic/depprune/internal/store"
	"github.com/phobologic/depprune/internal/summary"
	"github.com/phobologic/depprune/internal/vcs"
)

// services is the wired job machinery for one CLI invocation.
type services struct {
	cfg    config.Config
	logger *log.Logger
	store  store.BlobStore
	runner *runner.Runner
	local  *invoke.Local
	amqp   *invoke.AMQP
}

// newServices builds the store, pipeline and driver from cfg. With
// singleStep the driver never schedules a follow-up invocation.
func newServices(ctx context.Context, cfg config.Config, logger *log.Logger, singleStep bool) (*services, error) {
	bs, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sum, err := newSummarizer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(pipeline.Deps{
		Store:      bs,
		Cloner:     vcs.Git{Timeout: cfg.CloneTimeout},
		Linter:     newLinter(cfg),
		Summarizer: sum,
		Logger:     logger,
		Workers:    cfg.Workers,
	})

	s := &services{cfg: cfg, logger: logger, store: bs}
	var inv invoke.Invoker
	switch {
	case singleStep:
	case cfg.Invoker == "amqp":
		s.amqp, err = invoke.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, err
		}
		inv = s.amqp
	default:
		s.local = &invoke.Local{}
		inv = s.local
	}

	s.runner = runner.New(bs, p, inv, logger)
	if s.local != nil {
		s.local.Handle = s.runner.Run
	}
	return s, nil
}

// wait blocks until locally scheduled invocations finish.
func (s *services) wait() {
	if s.local != nil {
		s.local.Wait()
	}
}

func (s *services) close() {
	if s.amqp != nil {
		_ = s.amqp.Close()
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.BlobStore, error) {
	s3cfg := store.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	}
	switch cfg.StoreBackend {
	case "minio":
		return store.NewMinioStore(s3cfg)
	case "s3":
		return store.NewS3Store(ctx, s3cfg)
	default:
		return store.NewFileStore(cfg.LocalStoreRoot)
	}
}

// newSummarizer returns nil when no model provider is usable.
func newSummarizer(ctx context.Context, cfg config.Config) (summary.Summarizer, error) {
	switch cfg.SummarizerProvider() {
	case "openai":
		return summary.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.SummaryTimeout), nil
	case "gemini":
		return summary.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.SummaryTimeout)
	}
	return nil, nil
}

// newLinter returns nil when ruff is not installed.
func newLinter(cfg config.Config) lint.Linter {
	if r := lint.FindRuff(cfg.RuffBin, cfg.LintTimeout); r != nil {
		return r
	}
	return nil
}

func loadConfig(stderr io.Writer) (config.Config, *log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, config.NewLogger(cfg, stderr), nil
}

// submission is the user input for a new job.
type submission struct {
	RepoURL string `validate:"required,url"`
	Branch  string `validate:"required"`
}

func runSubmit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("depprune submit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var branch string
	fs.StringVar(&branch, "b", vcs.DefaultBranch, "branch to check out")
	fs.StringVar(&branch, "branch", vcs.DefaultBranch, "branch to check out")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: depprune submit [--branch name] <repo-url>")
	}

	sub := submission{RepoURL: strings.TrimSpace(fs.Arg(0)), Branch: strings.TrimSpace(branch)}
	if err := validator.New().Struct(sub); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}

	cfg, logger, err := loadConfig(stderr)
	if err != nil {
		return err
	}
	ctx := context.Background()
	svc, err := newServices(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer svc.close()

	job := model.Job{
		ID:        uuid.NewString(),
		RepoURL:   sub.RepoURL,
		Branch:    sub.Branch,
		Status:    model.StatusAccepted,
		Stage:     model.StageDependencyAnalyst,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Save(ctx, svc.store, job.ID, model.DocJob, job); err != nil {
		return err
	}
	logger.Info("job accepted", "job_id", job.ID, "repo_url", job.RepoURL, "branch", job.Branch)

	if err := invokeOnce(ctx, svc, job.ID); err != nil {
		return err
	}
	svc.wait()

	_, _ = fmt.Fprintln(stdout, job.ID)
	return nil
}

func invokeOnce(ctx context.Context, svc *services, jobID string) error {
	switch {
	case svc.amqp != nil:
		return svc.amqp.Invoke(ctx, jobID)
	case svc.local != nil:
		return svc.local.Invoke(ctx, jobID)
	}
	return nil
}

func runJob(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("depprune run", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var step bool
	fs.BoolVar(&step, "step", false, "run a single stage without scheduling the next")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: depprune run [--step] <job-id>")
	}

	cfg, logger, err := loadConfig(stderr)
	if err != nil {
		return err
	}
	ctx := context.Background()
	svc, err := newServices(ctx, cfg, logger, step)
	if err != nil {
		return err
	}
	defer svc.close()

	res := svc.runner.Handle(ctx, fs.Arg(0))
	svc.wait()

	if err := json.NewEncoder(stdout).Encode(res); err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.Error)
	}
	return nil
}

var jobDocs = []string{model.DocDependency, model.DocPlan, model.DocDiff, model.DocReview}

func runShow(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("depprune show", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		all bool
		doc string
	)
	fs.BoolVar(&all, "all", false, "also print every stage document")
	fs.StringVar(&doc, "doc", model.DocJob, "document to print")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: depprune show [--all | --doc name] <job-id>")
	}
	jobID := fs.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	bs, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	names := []string{doc}
	if all {
		names = append([]string{model.DocJob}, jobDocs...)
	}
	for _, name := range names {
		data, err := bs.Read(ctx, store.Key(jobID, name))
		if errors.Is(err, store.ErrNotFound) {
			if name == model.DocJob || !all {
				return fmt.Errorf("%s: %w", store.Key(jobID, name), err)
			}
			continue
		}
		if err != nil {
			return err
		}
		if all {
			_, _ = fmt.Fprintf(stdout, "== %s\n", name)
		}
		_, _ = stdout.Write(data)
		_, _ = fmt.Fprintln(stdout)
	}
	return nil
}

func runWorker(args []string, _, stderr io.Writer) error {
	fs := flag.NewFlagSet("depprune worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(stderr)
	if err != nil {
		return err
	}
	if cfg.Invoker != "amqp" {
		return fmt.Errorf("worker requires INVOKER=amqp")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer svc.close()

	logger.Info("worker started", "queue", cfg.AMQPQueue)
	err = svc.amqp.Consume(ctx, svc.runner.Run, logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
