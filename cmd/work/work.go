package work

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/elbiat/evald/internal/backfill"
	"github.com/elbiat/evald/internal/catalog"
	"github.com/elbiat/evald/internal/harness"
	"github.com/elbiat/evald/internal/run"
	"github.com/elbiat/evald/internal/worker"
	"github.com/elbiat/evald/pkg/db"
	"github.com/elbiat/evald/pkg/env"
	"github.com/elbiat/evald/pkg/log"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
)

const (
	usage   = "work"
	short   = "Start an evald worker"
	long    = "This command starts a worker draining the evaluation run queue"
	example = "evald work"
)

// Cmd is the work command.
var Cmd = &cobra.Command{
	Use:        usage,
	Short:      short,
	Long:       long,
	Aliases:    []string{"w"},
	SuggestFor: []string{"worker", "run", "start"},
	Example:    example,
	RunE:       work,
}

func work(cmd *cobra.Command, args []string) error {
	vars := env.Variables()

	workerID := vars.WorkerID
	if workerID == "" {
		workerID, _ = os.Hostname()
	}

	conn := db.Connection()
	log.Info("migrating database")
	if err := db.Migrate(conn); err != nil {
		log.Fatal("database migration failure", "error", err)
	}

	store := run.NewStore(conn, workerID)
	runner := &harness.Runner{
		Root:    vars.HarnessRoot,
		Bin:     vars.HarnessBin,
		Outputs: vars.Outputs(),
		Timeout: vars.EvalTimeout,
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-signalChan
		log.Info("gracefully shutting down", "signal", s.String())
		cancel()
	}()

	if vars.BackfillCron != "" {
		sync := backfill.New(store, catalog.New(conn), vars.Outputs())
		c := cron.New()
		if err := c.AddFunc(vars.BackfillCron, func() {
			if _, err := sync.Run(ctx); err != nil {
				log.Error("scheduled reconciliation failure", "error", err)
			}
		}); err != nil {
			log.Fatal("invalid backfill cron expression", "cron", vars.BackfillCron, "error", err)
		}
		c.Start()
		defer c.Stop()
		log.Info("scheduled reconciliation", "cron", vars.BackfillCron)
	}

	log.Info("starting worker",
		"worker_id", workerID,
		"harness_root", vars.HarnessRoot,
		"outputs", vars.Outputs(),
		"poll_interval", vars.PollInterval,
	)

	return worker.New(store, runner, worker.Config{
		ID:           workerID,
		PollInterval: vars.PollInterval,
		MaxSleep:     vars.MaxPollSleep,
		MaxIdlePolls: vars.MaxIdlePolls,
		ReclaimAfter: vars.ReclaimAfter,
	}).Run(ctx)
}
