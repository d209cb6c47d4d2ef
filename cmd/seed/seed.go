package seed

import (
	"github.com/elbiat/evald/internal/catalog"
	"github.com/elbiat/evald/pkg/db"
	"github.com/elbiat/evald/pkg/env"
	"github.com/elbiat/evald/pkg/log"
	"github.com/spf13/cobra"
)

// Cmd imports the task/model catalog.
var Cmd = &cobra.Command{
	Use:     "seed [catalog.yml]",
	Short:   "Seed tasks and models from a YAML catalog",
	Args:    cobra.MaximumNArgs(1),
	Example: "evald seed catalog.yml",
	RunE:    seed,
}

func seed(cmd *cobra.Command, args []string) error {
	path := env.Variables().CatalogPath
	if len(args) > 0 {
		path = args[0]
	}

	conn := db.Connection()
	if err := db.Migrate(conn); err != nil {
		log.Fatal("database migration failure", "error", err)
	}

	return catalog.New(conn).Seed(cmd.Context(), path)
}
