package main

import (
	"github.com/spf13/cobra"

	"faceplate/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var verbose bool
	var development bool
	var diagnostic bool
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the faceplate daemon in the foreground",
		Hidden:       true,
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx.verbose = &verbose
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.resolvedLogLevel(cfg),
				Development: development,
				Diagnostic:  diagnostic,
				SocketPath:  ctx.socketPath(),
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Also write a debug-level JSON log under log_dir/debug")
	return cmd
}
