package board

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/elbiat/evald/internal/catalog"
	"github.com/elbiat/evald/internal/leaderboard"
	"github.com/elbiat/evald/internal/run"
	"github.com/elbiat/evald/pkg/db"
	"github.com/spf13/cobra"
)

var (
	metricKey string
	limit     int
)

// Cmd prints the leaderboard for a task.
var Cmd = &cobra.Command{
	Use:     "board <task>",
	Short:   "Print the leaderboard for a task",
	Args:    cobra.ExactArgs(1),
	Example: "evald board chartqa_test --metric avg --limit 10",
	RunE:    board,
}

func init() {
	Cmd.Flags().StringVar(&metricKey, "metric", "", "metric key or aggregate (avg, min, max); defaults to the task's primary metric")
	Cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of rows")
}

func board(cmd *cobra.Command, args []string) error {
	conn := db.Connection()
	cat := catalog.New(conn)

	task, err := cat.TaskByName(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	entries, err := leaderboard.ForTask(cmd.Context(), run.NewStore(conn), task, metricKey, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tMODEL\tVALUE\tRUN\tDATE")
	for i, entry := range entries {
		value := "-"
		if entry.MetricValue != nil {
			value = fmt.Sprintf("%.4f", *entry.MetricValue)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			i+1,
			entry.ModelName,
			value,
			entry.RunID,
			entry.RunDate.Format("2006-01-02"),
		)
	}
	return w.Flush()
}
