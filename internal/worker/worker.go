package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elbiat/evald/internal/artifacts"
	"github.com/elbiat/evald/internal/harness"
	"github.com/elbiat/evald/internal/metrics"
	"github.com/elbiat/evald/internal/models"
	"github.com/elbiat/evald/internal/run"
	"github.com/elbiat/evald/pkg/log"
)

const stderrExcerptLen = 2000

// Claimer is the slice of the run store the loop needs to drain the
// queue.
type Claimer interface {
	ClaimNextQueued(ctx context.Context) (*models.EvalRun, error)
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Finalizer is the slice of the run store the executor needs to
// settle a claimed run.
type Finalizer interface {
	MarkRunning(ctx context.Context, id uint, artifactsDir, command, gitCommit string) error
	MarkCompleted(ctx context.Context, id uint, values map[string]interface{}) error
	MarkFailed(ctx context.Context, id uint, errText string) error
}

// Store is the full contract the worker consumes.
type Store interface {
	Claimer
	Finalizer
}

// Worker drains the shared run queue: claim, execute the harness,
// finalize. Stateless between polls except for the backoff counter.
type Worker struct {
	id           string
	store        Store
	runner       *harness.Runner
	pollInterval time.Duration
	maxSleep     time.Duration
	maxIdlePolls int // 0 polls forever
	reclaimAfter time.Duration
}

type Config struct {
	ID           string
	PollInterval time.Duration
	MaxSleep     time.Duration
	MaxIdlePolls int
	ReclaimAfter time.Duration
}

func New(store Store, runner *harness.Runner, cfg Config) *Worker {
	if store == nil {
		panic("worker requires a run store")
	}
	if runner == nil {
		panic("worker requires a harness runner")
	}
	if cfg.ID == "" {
		cfg.ID = "unknown-worker"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = time.Minute
	}

	return &Worker{
		id:           cfg.ID,
		store:        store,
		runner:       runner,
		pollInterval: cfg.PollInterval,
		maxSleep:     cfg.MaxSleep,
		maxIdlePolls: cfg.MaxIdlePolls,
		reclaimAfter: cfg.ReclaimAfter,
	}
}

// Run polls until the context is cancelled or, when a bounded-idle
// limit is configured, until that many consecutive polls found no
// work. Backoff grows linearly with consecutive empty polls, capped
// at the maximum sleep, and resets whenever work is found.
func (w *Worker) Run(ctx context.Context) error {
	consecutiveEmpty := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if w.reclaimAfter > 0 {
			if n, err := w.store.RequeueStale(ctx, w.reclaimAfter); err != nil && ctx.Err() == nil {
				log.Error("failed to requeue stale runs", "error", err)
			} else if n > 0 {
				log.Warn("requeued stale runs", "count", n)
			}
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("failed to process queue", "error", err)
		}

		if processed {
			consecutiveEmpty = 0
			continue
		}

		consecutiveEmpty++
		metrics.WorkerEmptyPollsTotal.WithLabelValues(w.id).Inc()

		if w.maxIdlePolls > 0 && consecutiveEmpty > w.maxIdlePolls {
			log.Info("queue idle past limit, stopping", "polls", consecutiveEmpty)
			return nil
		}

		sleep := time.Duration(consecutiveEmpty) * w.pollInterval
		if sleep > w.maxSleep {
			sleep = w.maxSleep
		}
		if err := sleepWithContext(ctx, sleep); err != nil {
			return nil
		}
	}
}

// ProcessNext claims and executes a single queued run. Returns false
// when the queue was empty.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	claimed, err := w.store.ClaimNextQueued(ctx)
	if err != nil {
		return false, err
	}
	if claimed == nil {
		return false, nil
	}

	w.execute(ctx, claimed)
	return true, nil
}

// execute drives one claimed run to a terminal state. Every path out
// of here lands in MarkCompleted or MarkFailed.
func (w *Worker) execute(ctx context.Context, evalRun *models.EvalRun) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while executing run", "run_id", evalRun.ID, "panic", r)
			w.fail(ctx, evalRun.ID, fmt.Sprintf("unexpected error: %v", r))
		}
	}()

	task, model := evalRun.Task, evalRun.Model
	if task == nil || model == nil {
		w.fail(ctx, evalRun.ID, "claimed run has no task or model loaded")
		return
	}

	log.Info("processing run",
		"run_id", evalRun.ID,
		"task", task.Name,
		"model", model.Name,
	)

	gitCommit := w.runner.GitCommit()

	args, err := harness.Args(task.HarnessData, model.HarnessModel, model.DefaultArgs)
	if err != nil {
		w.fail(ctx, evalRun.ID, err.Error())
		return
	}
	command := w.runner.Bin + " " + strings.Join(args, " ")

	if err := w.store.MarkRunning(ctx, evalRun.ID, run.PlaceholderArtifacts, command, gitCommit); err != nil {
		log.Error("failed to mark run running", "run_id", evalRun.ID, "error", err)
		return
	}

	res, err := w.runner.Run(ctx, task.HarnessData, model.HarnessModel, model.DefaultArgs)
	if err != nil {
		w.fail(ctx, evalRun.ID, fmt.Sprintf("failed to launch harness: %v", err))
		return
	}

	if err := harness.WriteLogs(res.RunDir, res); err != nil {
		log.Warn("failed to persist harness logs", "run_id", evalRun.ID, "error", err)
	}

	status := models.StatusComplete
	switch {
	case res.TimedOut:
		status = models.StatusFailed
		w.fail(ctx, evalRun.ID, fmt.Sprintf("evaluation timed out after %s", w.runner.Timeout))
	case res.ExitCode != 0:
		status = models.StatusFailed
		w.fail(ctx, evalRun.ID, fmt.Sprintf(
			"harness exited with code %d\nstderr: %s",
			res.ExitCode, excerpt(res.Stderr, stderrExcerptLen),
		))
	default:
		if res.RunDir != "" {
			if err := w.store.MarkRunning(ctx, evalRun.ID, res.RunDir, command, gitCommit); err != nil {
				log.Warn("failed to record artifacts dir", "run_id", evalRun.ID, "error", err)
			}
		}
		w.complete(ctx, evalRun, task, model, res)
	}

	metrics.EvalRunsTotal.WithLabelValues(w.id, string(status)).Inc()
	metrics.EvalRunDurationSeconds.WithLabelValues(w.id, string(status)).Observe(res.Duration.Seconds())
}

// complete gathers metrics from the run directory and finalizes the
// run. Missing metric files are a warning, not a failure: harness
// success and metric availability are independent facts.
func (w *Worker) complete(ctx context.Context, evalRun *models.EvalRun, task *models.Task, model *models.Model, res *harness.Result) {
	values := artifacts.Metrics{
		"parsed_at": time.Now().UTC().Format(time.RFC3339),
	}

	if res.RunDir == "" {
		values["warning"] = "could not determine run directory"
	} else {
		values["artifacts_dir"] = res.RunDir
		parsed, found := artifacts.Collect(
			res.RunDir, model.HarnessModel, task.HarnessData, task.PrimaryMetricSuffix, false,
		)
		if !found {
			log.Warn("no metrics file for run", "run_id", evalRun.ID, "run_dir", res.RunDir)
			values["warning"] = "no metrics file found"
		} else {
			for key, value := range parsed {
				values[key] = value
			}
		}
		values["artifacts"] = artifacts.Inventory(res.RunDir)
	}

	if err := w.store.MarkCompleted(ctx, evalRun.ID, values); err != nil {
		log.Error("failed to mark run completed", "run_id", evalRun.ID, "error", err)
		return
	}
	log.Info("run completed", "run_id", evalRun.ID, "duration", res.Duration)
}

func (w *Worker) fail(ctx context.Context, id uint, msg string) {
	log.Error("run failed", "run_id", id, "error", msg)
	if err := w.store.MarkFailed(ctx, id, msg); err != nil {
		log.Error("failed to mark run failed", "run_id", id, "error", err)
	}
}

func excerpt(s string, max int) string {
	if s == "" {
		return "N/A"
	}
	if len(s) > max {
		return s[:max]
	}
	return s
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
