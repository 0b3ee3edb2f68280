package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/rrdcached-go/internal/rrdcached"
)

// newVerbCommands returns the commands that map one-to-one onto a verb.
func newVerbCommands(ctx *commandContext) []*cobra.Command {
	cmds := []*cobra.Command{
		newPingCommand(ctx),
		newHelpTopicCommand(ctx),
		newFirstCommand(ctx),
		newLastCommand(ctx),
		newPendingCommand(ctx),
		newQueueCommand(ctx),
		newStatsCommand(ctx),
		newInfoCommand(ctx),
		newListCommand(ctx),
	}

	idOnly := []struct {
		use, short string
		run        func(*rrdcached.Client, context.Context, string) error
	}{
		{"flush <file>", "Write pending updates of a file to disk", (*rrdcached.Client).Flush},
		{"forget <file>", "Drop pending updates of a file", (*rrdcached.Client).Forget},
		{"suspend <file>", "Stop writing a file to disk", (*rrdcached.Client).Suspend},
		{"resume <file>", "Resume writing a suspended file", (*rrdcached.Client).Resume},
	}
	for _, v := range idOnly {
		cmds = append(cmds, newIDCommand(ctx, v.use, v.short, v.run))
	}

	global := []struct {
		use, short string
		run        func(*rrdcached.Client, context.Context) error
	}{
		{"flushall", "Write all pending updates to disk", (*rrdcached.Client).FlushAll},
		{"suspendall", "Stop writing all files to disk", (*rrdcached.Client).SuspendAll},
		{"resumeall", "Resume writing all files", (*rrdcached.Client).ResumeAll},
	}
	for _, v := range global {
		cmds = append(cmds, newGlobalCommand(ctx, v.use, v.short, v.run))
	}
	return cmds
}

func newIDCommand(ctx *commandContext, use, short string, run func(*rrdcached.Client, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				if err := run(client, c, args[0]); err != nil {
					return err
				}
				return ctx.printOK(cmd)
			})
		},
	}
}

func newGlobalCommand(ctx *commandContext, use, short string, run func(*rrdcached.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				if err := run(client, c); err != nil {
					return err
				}
				return ctx.printOK(cmd)
			})
		},
	}
}

func (c *commandContext) printOK(cmd *cobra.Command) error {
	if c.jsonOutput {
		return writeJSON(cmd, map[string]bool{"ok": true})
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}

func (c *commandContext) printLines(cmd *cobra.Command, lines []string) error {
	if c.jsonOutput {
		if lines == nil {
			lines = []string{}
		}
		return writeJSON(cmd, lines)
	}
	for _, line := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

func (c *commandContext) printTime(cmd *cobra.Command, t time.Time) error {
	if c.jsonOutput {
		return writeJSON(cmd, map[string]int64{"time": t.Unix()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d (%s)\n", t.Unix(), formatTime(t))
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func newPingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				start := time.Now()
				if err := client.Ping(c); err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, map[string]any{"ok": true, "rtt_ms": time.Since(start).Milliseconds()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "PONG (%s)\n", time.Since(start).Round(time.Microsecond))
				return nil
			})
		},
	}
}

func newHelpTopicCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon-help [topic]",
		Short: "Show the daemon's own command help",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var topic string
			if len(args) == 1 {
				topic = args[0]
			}
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				msg, lines, err := client.Help(c, topic)
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, map[string]any{"message": msg, "lines": lines})
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return ctx.printLines(cmd, lines)
			})
		},
	}
}

func newFirstCommand(ctx *commandContext) *cobra.Command {
	var archive int

	cmd := &cobra.Command{
		Use:   "first <file>",
		Short: "Show the first timestamp of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				t, err := client.First(c, args[0], archive)
				if err != nil {
					return err
				}
				return ctx.printTime(cmd, t)
			})
		},
	}
	cmd.Flags().IntVar(&archive, "archive", 0, "Archive index")
	return cmd
}

func newLastCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "last <file>",
		Short: "Show the time of the last update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				t, err := client.Last(c, args[0])
				if err != nil {
					return err
				}
				return ctx.printTime(cmd, t)
			})
		},
	}
}

func newPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending <file>",
		Short: "List updates queued for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				lines, err := client.Pending(c, args[0])
				if err != nil {
					return err
				}
				return ctx.printLines(cmd, lines)
			})
		},
	}
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show files waiting to be written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				entries, err := client.Queue(c)
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{e.ID, strconv.Itoa(e.Pending)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"File", "Pending"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show daemon counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				stats, err := client.Stats(c)
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, stats)
				}
				names := make([]string, 0, len(stats))
				for name := range stats {
					names = append(names, name)
				}
				sort.Strings(names)
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name, strconv.FormatInt(stats[name], 10)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Counter", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Show the header of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				entries, err := client.Info(c, args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, entries)
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{e.Key, strconv.Itoa(e.Type), e.Value})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Key", "Type", "Value"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "list <path>",
		Short: "List databases below a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *rrdcached.Client) error {
				lines, err := client.List(c, args[0], recursive)
				if err != nil {
					return err
				}
				return ctx.printLines(cmd, lines)
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	return cmd
}
