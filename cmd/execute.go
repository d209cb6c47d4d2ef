package cmd

import (
	"github.com/elbiat/evald/cmd/backfill"
	"github.com/elbiat/evald/cmd/board"
	"github.com/elbiat/evald/cmd/enqueue"
	"github.com/elbiat/evald/cmd/seed"
	"github.com/elbiat/evald/cmd/work"
	"github.com/spf13/cobra"
)

var cmds = []*cobra.Command{
	work.Cmd,
	backfill.Cmd,
	seed.Cmd,
	enqueue.Cmd,
	board.Cmd,
}

// Execute builds the command tree and executes commands.
func Execute() error {
	command := &cobra.Command{
		Use: "evald",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	for _, c := range cmds {
		command.AddCommand(c)
	}

	return command.Execute()
}
