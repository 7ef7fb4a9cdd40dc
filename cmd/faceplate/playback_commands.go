package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"faceplate/internal/ipc"
)

var playbackCommands = []struct {
	use     string
	command string
	short   string
}{
	{"play", "play", "Start playback"},
	{"pause", "pause", "Pause playback"},
	{"toggle", "toggle", "Toggle between play and pause"},
	{"stop", "stop", "Stop playback"},
	{"next", "next", "Skip to the next track"},
	{"previous", "previous", "Return to the previous track"},
}

func newPlaybackCommands(ctx *commandContext) []*cobra.Command {
	player := &cobra.Command{
		Use:   "player",
		Short: "Send playback commands through the daemon",
	}
	for _, entry := range playbackCommands {
		player.AddCommand(newPlaybackCommand(ctx, entry.use, entry.command, entry.short))
	}
	player.AddCommand(newVolumeCommand(ctx))

	send := &cobra.Command{
		Use:   "send <command>",
		Short: "Send a raw player command, as a panel button would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommand(ctx, cmd, args[0])
		},
	}
	player.AddCommand(send)

	return []*cobra.Command{player}
}

func newPlaybackCommand(ctx *commandContext, use, command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommand(ctx, cmd, command)
		},
	}
}

func sendCommand(ctx *commandContext, cmd *cobra.Command, command string) error {
	return ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.Command(command)
		if err != nil {
			return err
		}
		if resp.Sent {
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", command)
		}
		return nil
	})
}

func newVolumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "volume <0-100>",
		Short: "Set the player volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			volume, err := strconv.Atoi(args[0])
			if err != nil || volume < 0 || volume > 100 {
				return fmt.Errorf("volume must be an integer between 0 and 100, got %q", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetVolume(volume)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Volume set to %d\n", resp.Volume)
				return nil
			})
		},
	}
}
