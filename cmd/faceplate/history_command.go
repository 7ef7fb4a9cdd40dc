package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"faceplate/internal/history"
	"faceplate/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently played tracks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be positive")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Plays) == 0 {
					fmt.Fprintln(out, "No plays recorded")
					return nil
				}
				fmt.Fprint(out, renderPlays(resp.Plays))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of plays to list")
	return cmd
}

func renderPlays(plays []history.Play) string {
	rows := make([][]string, 0, len(plays))
	for _, play := range plays {
		rows = append(rows, []string{
			play.StartedAt.Local().Format(time.DateTime),
			play.Track,
			play.State,
		})
	}
	return renderTable([]tableColumn{
		{Header: "Started"},
		{Header: "Track", MaxWidth: maxTrackWidth},
		{Header: "State"},
	}, rows)
}
