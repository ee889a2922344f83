package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

func budgetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "budget <complexity>",
		Short: "Show the iteration budget allocated for a complexity score in [0,1]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			complexity, err := strconv.ParseFloat(args[0], 64)
			if err != nil || complexity < 0 || complexity > 1 {
				return engine.Errorf(engine.KindInvalidArguments, "budget", "complexity must be a number in [0,1], got %q", args[0])
			}

			env, err := prepareRuntimeEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			cfg := env.Config.Engine().Budget
			bm := engine.NewBudgetManager(cfg)
			allocated := bm.CalculateBudget(complexity)

			uncertainty := cfg.LowUncertainty
			if complexity > cfg.HighComplexityThreshold {
				uncertainty = cfg.HighUncertainty
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "complexity:  %.2f\n", complexity)
			fmt.Fprintf(out, "uncertainty: %.2f\n", uncertainty)
			fmt.Fprintf(out, "allocated:   %d iterations (base %d, max %d)\n", allocated, cfg.BaseBudget, cfg.MaxBudget)
			fmt.Fprintf(out, "warning at:  %.0f%% utilization\n", cfg.WarningThreshold*100)
			return nil
		},
	}
}
