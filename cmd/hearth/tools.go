package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/hearth/internal/tools"
)

func toolsCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the registered tool schemas",
		Long: `Print the registered tool schemas as JSON.

Formats:
- native: name, description, parameter schema and read-only flag
- openai: function tools for OpenAI-compatible chat endpoints
- anthropic: tool definitions for the Messages API`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := tools.DefaultRegistry()
			if err != nil {
				return err
			}
			schemas := registry.Schemas()

			var out any
			switch strings.ToLower(format) {
			case "native", "":
				out = schemas
			case "openai":
				if out, err = tools.OpenAITools(schemas); err != nil {
					return err
				}
			case "anthropic":
				if out, err = tools.AnthropicTools(schemas); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q (want native, openai or anthropic)", format)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&format, "format", "native", "output format: native, openai or anthropic")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
