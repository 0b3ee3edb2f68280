package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/rrdcached-go/internal/rrdcached"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		step        time.Duration
		start       int64
		noOverwrite bool
	)

	cmd := &cobra.Command{
		Use:   "create <file> DS:<name>:<type>:<heartbeat>:<min>:<max>... RRA:<cf>:<xff>:<steps>:<rows>...",
		Short: "Create a database",
		Example: `  rrdc create cpu.rrd --step 60s DS:load:GAUGE:120:0:U RRA:AVERAGE:0.5:1:1440
  rrdc create 'disk io.rrd' DS:reads:COUNTER:600:0:U RRA:MAX:0.5:12:720`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			create, err := buildCreate(args[0], args[1:], step, start, noOverwrite)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				if err := client.Create(c, create); err != nil {
					return err
				}
				return ctx.printOK(cmd)
			})
		},
	}

	cmd.Flags().DurationVar(&step, "step", 0, "Base interval between data points (default: daemon default)")
	cmd.Flags().Int64Var(&start, "start", 0, "Unix time of the first data point (default: daemon default)")
	cmd.Flags().BoolVar(&noOverwrite, "no-overwrite", false, "Fail when the database already exists")
	return cmd
}

// buildCreate assembles a CREATE line and parses it back, so the
// definitions go through the same validation as a protocol line.
func buildCreate(id string, defs []string, step time.Duration, start int64, noOverwrite bool) (rrdcached.Create, error) {
	parts := []string{string(rrdcached.VerbCreate), quoteIdentifier(id)}
	if step > 0 {
		if step%time.Second != 0 {
			return rrdcached.Create{}, fmt.Errorf("--step must be a whole number of seconds, got %s", step)
		}
		parts = append(parts, "-s", strconv.FormatInt(int64(step/time.Second), 10))
	}
	if start > 0 {
		parts = append(parts, "-b", strconv.FormatInt(start, 10))
	}
	if noOverwrite {
		parts = append(parts, "-O")
	}
	parts = append(parts, defs...)

	cmd, err := rrdcached.ParseCommand(strings.Join(parts, " "))
	if err != nil {
		return rrdcached.Create{}, err
	}
	create, ok := cmd.(rrdcached.Create)
	if !ok {
		return rrdcached.Create{}, fmt.Errorf("unexpected command %s", cmd.Verb())
	}
	return create, nil
}

func quoteIdentifier(id string) string {
	if strings.ContainsAny(id, " \t\v\f") {
		return "'" + id + "'"
	}
	return id
}
