package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/journal"
	"github.com/ChamsBouzaiene/hearth/internal/providers"
	"github.com/ChamsBouzaiene/hearth/internal/workspace"
)

func runCmd(opts *rootOptions) *cobra.Command {
	var (
		complexity float64
		noJournal  bool
	)
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Drive a goal to completion with the configured model endpoint",
		Long: `Drive a goal to completion with the configured model endpoint.

The model plans tool calls, the runtime executes them inside the sandbox
root, and the model scores progress after every iteration. The task stops
when the goal is verified, the iteration budget is spent, progress stalls,
or recovery gives up.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if complexity < 0 || complexity > 1 {
				return engine.Errorf(engine.KindInvalidArguments, "run", "complexity must be in [0,1], got %v", complexity)
			}
			goal := strings.Join(args, " ")

			env, err := prepareRuntimeEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer env.Close()
			logger := env.Logger.Logger

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := providers.NewClient(env.Config.Endpoint)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(ctx, env)
			if err != nil {
				return err
			}

			hooks := []engine.Hook{engine.LoggerHook{L: logger}}
			var recorder *journal.Recorder
			if !noJournal && !env.Config.Journal.Disabled {
				store, err := journal.Open(ctx, env.Config.Journal.Path)
				if err != nil {
					return err
				}
				defer store.Close()
				recorder = journal.NewRecorder(store, logger)
				hooks = append(hooks, recorder)
			}

			task, err := engine.NewTask(engine.TaskConfig{
				Goal:       goal,
				Complexity: complexity,
				Engine:     env.Config.Engine(),
			}, hooks...)
			if err != nil {
				return err
			}

			logger.Info("starting task", "task", task.ID(), "root", env.Root,
				"project", workspace.DetectProjectType(env.Root), "model", env.Config.Endpoint.Model)

			planner := providers.NewModelPlanner(client, rt.Registry().Schemas(), logger)
			verifier := providers.NewModelVerifier(client, logger)
			outcome, err := task.Run(ctx, planner, verifier, rt)
			if err != nil {
				return err
			}
			if recorder != nil {
				if jerr := recorder.Err(); jerr != nil {
					logger.Warn("journal incomplete", "error", jerr)
				}
			}

			return reportOutcome(cmd, outcome, planner.Answer())
		},
	}
	cmd.Flags().Float64Var(&complexity, "complexity", 0.3, "initial complexity estimate in [0,1]; sizes the iteration budget")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "do not record the run in the journal")
	return cmd
}

func reportOutcome(cmd *cobra.Command, out engine.Outcome, answer string) error {
	w := cmd.OutOrStdout()
	if answer != "" {
		fmt.Fprintln(w, answer)
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "task %s: %s after %d iterations", out.TaskID, out.FinalState, out.Iterations)
	if out.Termination.Reason != engine.TerminationNone {
		fmt.Fprintf(w, " (%s)", out.Termination.Reason)
	}
	fmt.Fprintln(w)
	if !out.Succeeded() {
		return fmt.Errorf("task failed: %s", out.Reason)
	}
	return nil
}
