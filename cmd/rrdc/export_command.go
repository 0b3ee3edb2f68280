package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/rrdcached-go/internal/export"
	"github.com/nerrad567/rrdcached-go/internal/infrastructure/influxdb"
	"github.com/nerrad567/rrdcached-go/internal/rrdcached"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		start       string
		end         string
		columns     []string
		measurement string
	)

	cmd := &cobra.Command{
		Use:   "export <file> <AVERAGE|MIN|MAX|LAST>",
		Short: "Copy archive rows into InfluxDB",
		Long: `Fetches one range of consolidated rows and writes every known value
as an InfluxDB point tagged with the database, data source and
consolidation function. Connection settings come from the influxdb
section of the configuration.`,
		Example: "  rrdc export cpu.rrd AVERAGE --start -86400 --end now",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cf, err := rrdcached.ParseConsolidationFunction(args[1])
			if err != nil {
				return err
			}

			influxCfg := cfg.InfluxDB
			influxCfg.Enabled = true
			if influxCfg.URL == "" || influxCfg.Org == "" || influxCfg.Bucket == "" {
				return errors.New("influxdb.url, influxdb.org and influxdb.bucket must be configured")
			}
			if measurement == "" {
				measurement = influxCfg.Measurement
			}

			influx, err := influxdb.Connect(cmd.Context(), influxCfg)
			if err != nil {
				return err
			}
			defer influx.Close()

			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				exporter, err := export.New(client, influx)
				if err != nil {
					return err
				}
				n, err := exporter.Export(c, export.Request{
					ID:          args[0],
					CF:          cf,
					Start:       rrdcached.TimeRef(start),
					End:         rrdcached.TimeRef(end),
					Columns:     columns,
					Measurement: measurement,
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, map[string]int{"points": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d points to %s/%s\n", n, influxCfg.Org, influxCfg.Bucket)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Start time reference")
	cmd.Flags().StringVar(&end, "end", "", "End time reference (requires --start)")
	cmd.Flags().StringSliceVar(&columns, "ds", nil, "Export only these data sources (requires --end)")
	cmd.Flags().StringVar(&measurement, "measurement", "", "Measurement name (default: influxdb.measurement)")
	return cmd
}
