package backfill

import (
	"github.com/elbiat/evald/internal/backfill"
	"github.com/elbiat/evald/internal/catalog"
	"github.com/elbiat/evald/internal/run"
	"github.com/elbiat/evald/pkg/db"
	"github.com/elbiat/evald/pkg/env"
	"github.com/elbiat/evald/pkg/log"
	"github.com/spf13/cobra"
)

// Cmd reconciles the harness output tree against the run store.
var Cmd = &cobra.Command{
	Use:     "backfill",
	Short:   "Backfill completed runs from harness outputs",
	Long:    "This command scans the harness output tree and inserts completed runs the live queue missed",
	Example: "evald backfill",
	RunE:    sync,
}

func sync(cmd *cobra.Command, args []string) error {
	conn := db.Connection()
	if err := db.Migrate(conn); err != nil {
		log.Fatal("database migration failure", "error", err)
	}

	outputs := env.Variables().Outputs()
	pass := backfill.New(run.NewStore(conn), catalog.New(conn), outputs)

	res, err := pass.Run(cmd.Context())
	if err != nil {
		return err
	}

	log.Info("backfill finished",
		"synced", res.Synced,
		"skipped", res.Skipped,
		"errors", res.Errors,
	)
	return nil
}
