package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "rrdc",
		Short:         "rrdcached protocol client",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVarP(&ctx.addressFlag, "address", "a", "", "Daemon address (unix:///path or tcp://host:port)")
	flags.DurationVar(&ctx.timeoutFlag, "timeout", 0, "Per-command timeout (overrides daemon.io_timeout)")
	flags.BoolVar(&ctx.jsonOutput, "json", false, "Write machine-readable JSON")
	flags.BoolVar(&ctx.verbose, "verbose", false, "Log protocol traffic at debug level")

	for _, cmd := range newVerbCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newCreateCommand(ctx))
	rootCmd.AddCommand(newUpdateCommand(ctx, false))
	rootCmd.AddCommand(newUpdateCommand(ctx, true))
	rootCmd.AddCommand(newFetchCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newRawCommand(ctx))
	rootCmd.AddCommand(newBridgeCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))

	return rootCmd
}
