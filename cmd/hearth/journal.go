package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/hearth/internal/journal"
)

func journalCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal [task-id]",
		Short: "List recent tasks, or show one task's transitions, tool calls and events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareRuntimeEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			store, err := journal.Open(ctx, env.Config.Journal.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				tasks, err := store.RecentTasks(ctx, limit)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintln(out, "no tasks recorded")
					return nil
				}
				return printTasks(out, tasks)
			}
			return printTask(cmd, store, args[0])
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of tasks to list")
	return cmd
}

func printTasks(w io.Writer, tasks []journal.TaskRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTARTED\tSTATE\tITER\tBUDGET\tGOAL")
	for _, t := range tasks {
		state := t.FinalState
		if state == "" {
			state = "running"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			t.TaskID, t.StartedAt.Format(time.DateTime), state, t.Iterations, t.Budget, truncate(t.Goal, 60))
	}
	return tw.Flush()
}

func printTask(cmd *cobra.Command, store *journal.Store, taskID string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	transitions, err := store.Transitions(ctx, taskID)
	if err != nil {
		return err
	}
	calls, err := store.ToolCalls(ctx, taskID)
	if err != nil {
		return err
	}
	events, err := store.Events(ctx, taskID)
	if err != nil {
		return err
	}
	if len(transitions) == 0 && len(calls) == 0 {
		return fmt.Errorf("no journal entries for task %s", taskID)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSITION\tEVENT\tAT\tREASON")
	for _, t := range transitions {
		fmt.Fprintf(tw, "%s -> %s\t%s\t%s\t%s\n", t.From, t.To, t.Event, t.At.Format(time.TimeOnly), t.Reason)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ITER\tTOOL\tOK\tDURATION\tARGS\tERROR")
	for _, c := range calls {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\t%s\n", c.Iteration, c.Tool, c.Success, c.Duration, truncate(c.Args, 50), c.Error)
	}
	if len(events) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "ITER\tEVENT\tMESSAGE")
		for _, e := range events {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Iteration, e.Kind, e.Message)
		}
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
