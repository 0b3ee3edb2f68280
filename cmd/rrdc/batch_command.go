package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/rrdcached-go/internal/rrdcached"
)

type batchResultJSON struct {
	Line    int    `json:"line"`
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// batchLine is a parsed command and the input line it came from.
type batchLine struct {
	number int
	text   string
	cmd    rrdcached.Command
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file|->",
		Short: "Submit a file of commands in one batch",
		Long: `Reads one protocol command per line, skipping blank lines and lines
starting with '#', and submits them in a single BATCH. Files ending in
.gz or .zst are decompressed. Every line is parsed before anything is
sent. The command fails when any entry failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := openBatchFile(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			lines, err := readBatch(in)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return errors.New("batch contains no commands")
			}
			cmds := make([]rrdcached.Command, len(lines))
			for i, l := range lines {
				cmds[i] = l.cmd
			}

			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				results, err := client.Batch(c, cmds...)
				if err != nil {
					return err
				}
				failed := 0
				for _, r := range results {
					if r.Err != nil {
						failed++
					}
				}
				if err := renderBatch(ctx, cmd, lines, results); err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d batch commands failed", failed, len(results))
				}
				return nil
			})
		},
	}
}

func readBatch(r io.Reader) ([]batchLine, error) {
	var lines []batchLine
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cmd, err := rrdcached.ParseCommand(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, batchLine{number: n, text: text, cmd: cmd})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return lines, nil
}

func renderBatch(ctx *commandContext, cmd *cobra.Command, lines []batchLine, results []rrdcached.BatchResult) error {
	if ctx.jsonOutput {
		out := make([]batchResultJSON, len(results))
		for i, r := range results {
			out[i] = batchResultJSON{Line: lines[i].number, Command: lines[i].text, OK: r.Err == nil, Message: r.Message}
			if r.Err != nil {
				out[i].Kind = rrdcached.KindOf(r.Err).String()
				out[i].Message = r.Err.Error()
			}
		}
		return writeJSON(cmd, out)
	}

	rows := make([][]string, len(results))
	for i, r := range results {
		status := "ok"
		detail := r.Message
		if r.Err != nil {
			status = rrdcached.KindOf(r.Err).String()
			detail = r.Err.Error()
		}
		rows[i] = []string{strconv.Itoa(lines[i].number), string(r.Command.Verb()), status, detail}
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Line", "Command", "Status", "Detail"}, rows, []columnAlignment{alignRight}))
	return nil
}
