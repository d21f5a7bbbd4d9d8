package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/internal/presentation/tui"
	"github.com/aretw0/tessera/pkg/domain"
)

// errInvalidGraph makes the process exit non-zero once diagnostics are printed.
var errInvalidGraph = errors.New("graph is invalid")

var validateCmd = &cobra.Command{
	Use:   "validate <graph.yaml|->",
	Short: "Check the wiring of a composition graph",
	Long: `Resolves every step of a composition graph against the registry and checks
that each edge is type-compatible, the graph is acyclic and every Result is
handled. All diagnostics are reported at once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		g, err := readGraph(cmd, args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		vg, err := rt.Registry.Validate(ctx, g)
		var we *domain.WiringErrors
		if err != nil && !errors.As(err, &we) {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			resp := map[string]any{"valid": err == nil}
			if we != nil {
				resp["errors"], resp["warnings"] = we.Errors, we.Warnings
			} else {
				resp["result"] = vg
			}
			if err := printJSON(out, resp); err != nil {
				return err
			}
		} else if we != nil {
			tui.PrintDiagnostics(out, we.Errors, we.Warnings)
		} else {
			tui.PrintValid(out, vg)
			tui.PrintDiagnostics(out, nil, vg.Warnings)
		}

		if we != nil {
			return fmt.Errorf("%w: %d errors", errInvalidGraph, len(we.Errors))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("json", false, "Print the result as JSON")
}
