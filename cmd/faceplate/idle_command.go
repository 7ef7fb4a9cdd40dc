package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"faceplate/internal/ipc"
	"faceplate/internal/playerstate"
)

func newIdleCommand(ctx *commandContext) *cobra.Command {
	idleCmd := &cobra.Command{
		Use:   "idle",
		Short: "Control idle detection",
	}

	var timeout time.Duration
	armCmd := &cobra.Command{
		Use:   "arm",
		Short: "Arm idle detection (restarts the countdown)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout < 0 {
				return fmt.Errorf("timeout must not be negative")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.IdleArm(timeout)
				if err != nil {
					return err
				}
				printIdleStatus(cmd.OutOrStdout(), resp.Idle)
				return nil
			})
		},
	}
	armCmd.Flags().DurationVar(&timeout, "timeout", 0, "Idle timeout (defaults to idle.timeout_seconds)")

	disarmCmd := &cobra.Command{
		Use:   "disarm",
		Short: "Disarm idle detection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.IdleDisarm()
				if err != nil {
					return err
				}
				printIdleStatus(cmd.OutOrStdout(), resp.Idle)
				return nil
			})
		},
	}

	idleCmd.AddCommand(armCmd, disarmCmd)
	return idleCmd
}

func printIdleStatus(w io.Writer, status playerstate.IdleStatus) {
	switch {
	case status.Idle:
		fmt.Fprintln(w, "Player is idle")
	case status.Armed:
		fmt.Fprintf(w, "Idle detection armed (timeout %s)\n", status.Timeout)
	default:
		fmt.Fprintln(w, "Idle detection disarmed")
	}
}
