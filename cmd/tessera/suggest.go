package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <graph.yaml|->",
	Short: "Suggest blocks for a step of a partial graph",
	Long: `Derives the type a step must accept from what feeds it, and the type it
must produce when it feeds a single step, then ranks the blocks that fit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, _ := cmd.Flags().GetString("step")

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

		req, err := rt.Registry.Requirement(g, step)
		if err != nil {
			return err
		}
		limit, opts := searchFlags(cmd)
		hits, err := rt.Registry.Suggest(ctx, g, step, limit, opts...)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); !asJSON {
			fmt.Fprintf(cmd.OutOrStdout(), "%s needs %s", step, req.Input)
			if !req.Output.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), " -> %s", req.Output)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return printHits(cmd, hits)
	},
}

var autowireCmd = &cobra.Command{
	Use:   "autowire <graph.yaml|->",
	Short: "Connect unwired steps whose types line up",
	Long: `Feeds every step without an incoming edge from the closest earlier step
whose output fits its input, and prints the completed graph as YAML.`,
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

		wired, added := rt.Registry.AutoWire(g)
		rt.Logger.Info("Auto-wired graph", "added", len(added))

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(wired); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)
	addSearchFlags(suggestCmd)
	suggestCmd.Flags().String("step", "", "Step to fill")
	_ = suggestCmd.MarkFlagRequired("step")

	rootCmd.AddCommand(autowireCmd)
}
