package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/rrdcached-go/internal/rrdcached"
)

// newUpdateCommand builds "update", or "updatev" when verbose is set.
func newUpdateCommand(ctx *commandContext, verbose bool) *cobra.Command {
	use, short := "update", "Queue samples for a database"
	if verbose {
		use, short = "updatev", "Queue samples and show what the daemon stored"
	}

	return &cobra.Command{
		Use:     use + " <file> <time:value[:value...]>...",
		Short:   short,
		Example: "  rrdc " + use + " cpu.rrd N:0.42 1700000060:0.51",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := parseSamples(args[1:])
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				if !verbose {
					if err := client.Update(c, args[0], samples...); err != nil {
						return err
					}
					return ctx.printOK(cmd)
				}
				lines, err := client.UpdateV(c, args[0], samples...)
				if err != nil {
					return err
				}
				return ctx.printLines(cmd, lines)
			})
		},
	}
}

func parseSamples(args []string) ([]rrdcached.Sample, error) {
	samples := make([]rrdcached.Sample, 0, len(args))
	for _, arg := range args {
		s, err := rrdcached.ParseSample(arg)
		if err != nil {
			return nil, fmt.Errorf("sample %q: %w", arg, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}
