package enqueue

import (
	"github.com/elbiat/evald/internal/catalog"
	"github.com/elbiat/evald/internal/run"
	"github.com/elbiat/evald/pkg/db"
	"github.com/elbiat/evald/pkg/log"
	"github.com/spf13/cobra"
)

// Cmd queues an evaluation run for a (task, model) pair.
var Cmd = &cobra.Command{
	Use:     "enqueue <task> <model>",
	Short:   "Queue an evaluation run",
	Args:    cobra.ExactArgs(2),
	Example: "evald enqueue chartqa_test internvl2_5_2b",
	RunE:    enqueue,
}

func enqueue(cmd *cobra.Command, args []string) error {
	conn := db.Connection()

	evalRun, err := catalog.New(conn).Enqueue(cmd.Context(), run.NewStore(conn), args[0], args[1])
	if err != nil {
		return err
	}

	log.Info("run queued",
		"run_id", evalRun.ID,
		"task", args[0],
		"model", args[1],
		"status", evalRun.Status,
	)
	return nil
}
