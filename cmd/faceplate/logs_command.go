package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"faceplate/internal/ipc"
	"faceplate/internal/logging"
	"faceplate/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		component string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				cfg := ctx.configValue()
				if cfg == nil {
					return wrapDialError(err, ctx.socketPath())
				}
				path := filepath.Join(cfg.Paths.LogDir, "faceplate.log")
				fmt.Fprintf(cmd.ErrOrStderr(), "Daemon not reachable; reading %s\n", path)
				return tailLogFile(cmd.Context(), cmd.OutOrStdout(), path, lines, follow)
			}
			defer client.Close()
			return streamLogs(cmd.Context(), client, cmd.OutOrStdout(), ipc.LogTailRequest{
				Limit:     lines,
				Component: strings.TrimSpace(component),
			}, follow)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent events to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new events")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from this component (daemon, panel, knob, ...)")
	return cmd
}

func streamLogs(ctx context.Context, client *ipc.Client, w io.Writer, req ipc.LogTailRequest, follow bool) error {
	resp, err := client.LogTail(req)
	if err != nil {
		return err
	}
	for _, evt := range resp.Events {
		fmt.Fprintln(w, formatLogEvent(evt))
	}
	if !follow {
		return nil
	}

	next := resp.Next
	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		resp, err := client.LogTail(ipc.LogTailRequest{
			Since:      next,
			Follow:     true,
			WaitMillis: int(5 * time.Second / time.Millisecond),
			Component:  req.Component,
		})
		if err != nil {
			return err
		}
		for _, evt := range resp.Events {
			fmt.Fprintln(w, formatLogEvent(evt))
		}
		if resp.Next > next {
			next = resp.Next
		}
	}
}

func tailLogFile(ctx context.Context, w io.Writer, path string, limit int, follow bool) error {
	lines, offset, err := logs.Last(path, limit)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	if !follow {
		return nil
	}
	return logs.Follow(ctx, path, offset, 0, func(line string) {
		fmt.Fprintln(w, line)
	})
}

func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format("15:04:05"))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(evt.Level))
	if evt.Component != "" {
		b.WriteString(" [" + evt.Component + "]")
	}
	b.WriteByte(' ')
	b.WriteString(evt.Message)
	if len(evt.Fields) > 0 {
		keys := make([]string, 0, len(evt.Fields))
		for k := range evt.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, evt.Fields[k])
		}
	}
	return b.String()
}
