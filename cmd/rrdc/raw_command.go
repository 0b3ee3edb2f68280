package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/rrdcached-go/internal/rrdcached"
)

type rawResponseJSON struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Lines   []string `json:"lines"`
}

func newRawCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "raw <command line...>",
		Short: "Send one protocol line and print the reply",
		Example: `  rrdc raw STATS
  rrdc raw "FETCH cpu.rrd AVERAGE -3600"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := rrdcached.ParseCommand(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if parsed.Verb() == rrdcached.VerbBatch {
				return errors.New("use the batch command to submit a batch")
			}
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				resp, err := client.Do(c, parsed)
				if resp == nil {
					if err == nil {
						// QUIT has no reply.
						return nil
					}
					return err
				}
				if ctx.jsonOutput {
					lines := resp.Lines
					if lines == nil {
						lines = []string{}
					}
					if jerr := writeJSON(cmd, rawResponseJSON{Code: resp.Code, Message: resp.Message, Lines: lines}); jerr != nil {
						return jerr
					}
				} else {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "%d %s\n", resp.Code, resp.Message)
					for _, line := range resp.Lines {
						fmt.Fprintln(out, line)
					}
				}
				return err
			})
		},
	}
}
