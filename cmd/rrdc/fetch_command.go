package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/rrdcached-go/internal/rrdcached"
)

type fetchJSON struct {
	FlushVersion int            `json:"flush_version"`
	Start        int64          `json:"start"`
	End          int64          `json:"end"`
	Step         int64          `json:"step"`
	DSNames      []string       `json:"ds_names"`
	Rows         []fetchRowJSON `json:"rows"`
}

// Values are pointers so that unknown (NaN) readings encode as null.
type fetchRowJSON struct {
	Time   int64      `json:"time"`
	Values []*float64 `json:"values"`
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var (
		start   string
		end     string
		columns []string
	)

	cmd := &cobra.Command{
		Use:   "fetch <file> <AVERAGE|MIN|MAX|LAST>",
		Short: "Read consolidated rows",
		Example: `  rrdc fetch cpu.rrd AVERAGE --start -3600
  rrdc fetch cpu.rrd MAX --start end-1d --end now --ds load`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cf, err := rrdcached.ParseConsolidationFunction(args[1])
			if err != nil {
				return err
			}
			req := rrdcached.Fetch{
				ID:      args[0],
				CF:      cf,
				Start:   rrdcached.TimeRef(start),
				End:     rrdcached.TimeRef(end),
				Columns: columns,
			}
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				res, err := client.Fetch(c, req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, toFetchJSON(res))
				}
				renderFetch(cmd, res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Start time reference (Unix time, -seconds, or daemon time spec)")
	cmd.Flags().StringVar(&end, "end", "", "End time reference (requires --start)")
	cmd.Flags().StringSliceVar(&columns, "ds", nil, "Restrict output to these data sources (requires --end)")
	return cmd
}

func renderFetch(cmd *cobra.Command, res *rrdcached.FetchResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Start: %s  End: %s  Step: %s\n", formatTime(res.Start), formatTime(res.End), res.Step)
	if len(res.Rows) == 0 {
		fmt.Fprintln(out, "No rows")
		return
	}

	headers := append([]string{"Time"}, res.DSNames...)
	aligns := make([]columnAlignment, len(headers))
	for i := 1; i < len(aligns); i++ {
		aligns[i] = alignRight
	}
	rows := make([][]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		r := make([]string, 0, len(headers))
		r = append(r, formatTime(row.Time))
		for _, v := range row.Values {
			r = append(r, formatValue(v))
		}
		rows = append(rows, r)
	}
	fmt.Fprint(out, renderTable(headers, rows, aligns))
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', 10, 64)
}

func toFetchJSON(res *rrdcached.FetchResult) fetchJSON {
	out := fetchJSON{
		FlushVersion: res.FlushVersion,
		Start:        res.Start.Unix(),
		End:          res.End.Unix(),
		Step:         int64(res.Step / time.Second),
		DSNames:      res.DSNames,
		Rows:         make([]fetchRowJSON, 0, len(res.Rows)),
	}
	if out.DSNames == nil {
		out.DSNames = []string{}
	}
	for _, row := range res.Rows {
		r := fetchRowJSON{Time: row.Time.Unix(), Values: make([]*float64, len(row.Values))}
		for i, v := range row.Values {
			if !math.IsNaN(v) {
				v := v
				r.Values[i] = &v
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}
