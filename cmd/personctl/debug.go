package main

import (
	"github.com/spf13/cobra"

	"github.com/srediag/attrshm/pkg/store"
)

func newDebugCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Print every attribute and watcher slot of the record",
		Long: `debug prints the record's attributes with their layout and current values,
then each watcher slot as empty, alive or stale (its process has exited).
The backing file is never created by this command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return store.DebugRecordDetail(cmd.Context(), a.cfg.File, cmd.OutOrStdout(), store.WithLogger(a.log))
		},
	}
}
