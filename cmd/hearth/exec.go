package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/sandbox"
	"github.com/ChamsBouzaiene/hearth/internal/tools"
)

// buildRuntime wires the registry, the configured process runner and the
// tool settings into a runtime confined to env.Root.
func buildRuntime(ctx context.Context, env *runtimeEnv) (*tools.Runtime, error) {
	registry, err := tools.DefaultRegistry()
	if err != nil {
		return nil, err
	}
	runner, err := sandbox.NewRunner(ctx, env.Config.SandboxRunner(), env.Logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create command runner: %w", err)
	}
	return tools.NewRuntime(registry, env.Config.ToolContext(env.Root),
		tools.WithRunner(runner),
		tools.WithFetchTimeout(env.Config.Tools.FetchTimeout.Std()),
		tools.WithIgnorePatterns(env.Config.Tools.IgnorePatterns),
		tools.WithRetryPolicy(env.Config.Engine().Retry),
		tools.WithLogger(env.Logger.Logger),
	)
}

func execCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "exec <tool> [json-args]",
		Short: "Execute a single tool inside the sandbox root",
		Long: `Execute a single tool inside the sandbox root.

Arguments are a JSON object validated against the tool's parameter schema:

  hearth exec read_file '{"path": "go.mod"}'
  hearth exec list_directory '{"recursive": true, "max_depth": 2}'
  hearth exec run_command '{"command": "go test ./...", "timeout_seconds": 120}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			call := engine.ToolCall{Name: args[0], Args: map[string]any{}}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &call.Args); err != nil {
					return engine.NewError(engine.KindMalformedJSON, "exec", fmt.Errorf("arguments must be a JSON object: %w", err))
				}
				if call.Args == nil {
					call.Args = map[string]any{}
				}
			}

			env, err := prepareRuntimeEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, env)
			if err != nil {
				return err
			}
			if err := rt.Validate(call); err != nil {
				return err
			}

			result, err := rt.Execute(ctx, call.Name, call.Args)
			if err != nil {
				return err
			}
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), result.Output)
				if result.Output != "" && result.Output[len(result.Output)-1] != '\n' {
					fmt.Fprintln(cmd.OutOrStdout())
				}
			}
			if !result.Success {
				return fmt.Errorf("%s failed: %s", call.Name, result.ErrorText())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}
