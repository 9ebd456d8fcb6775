package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"focustimer/internal/storage"
)

func newHistoryCmd(options *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently finished sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, settings, err := openSettings(options)
			if err != nil {
				return err
			}
			sessions, err := storage.OpenSessionStore(databasePath(store, settings))
			if err != nil {
				return err
			}
			defer func() { _ = sessions.Close() }()

			recent, err := sessions.RecentSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no sessions yet")
				return nil
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(writer, "START\tDURATION\tTITLE\tTAGS\tTASK")
			for _, session := range recent {
				_, _ = fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					session.Start.Local().Format("2006-01-02 15:04"),
					session.Duration.Round(time.Second),
					session.Title,
					strings.Join(session.Tags, ","),
					session.LinkedTask,
				)
			}
			return writer.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of sessions to show")
	return cmd
}
