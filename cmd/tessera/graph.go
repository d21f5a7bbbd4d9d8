package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/internal/presentation/graph"
	"github.com/aretw0/tessera/pkg/domain"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <graph.yaml|->",
	Short: "Export a composition graph as a Mermaid diagram",
	Long: `Validates the graph and outputs a Mermaid flowchart. Edges carry the type
flowing through them; steps with diagnostics are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, graph.NewOverlay(vg, err)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
