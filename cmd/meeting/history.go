package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/C23038/URITOMO-Frontend/internal/render"
	"github.com/C23038/URITOMO-Frontend/internal/storage"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <roomId>",
		Short: "Print the archived transcript of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Archive.Enabled() {
				return errors.New("ARCHIVE_PATH is not set")
			}
			archive, err := storage.Open(cfg.Archive.Path, logger)
			if err != nil {
				return err
			}
			defer func() { _ = archive.Close() }()

			entries, err := archive.History(args[0], limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No messages archived for this room")
				return nil
			}
			render.HistoryTable(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "number of most recent messages to show")
	return cmd
}
