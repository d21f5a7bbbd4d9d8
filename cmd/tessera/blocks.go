package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/internal/cli"
	"github.com/aretw0/tessera/internal/presentation/tui"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/manifest"
	"github.com/aretw0/tessera/pkg/registry"
)

var registerCmd = &cobra.Command{
	Use:   "register <manifest.yaml|->",
	Short: "Register block manifests",
	Long: `Registers one manifest, or a list under "blocks". New blocks start as
proposed. Registrations only outlive the process with the redis backend.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		blocks, err := manifest.DecodeDocument(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		for _, m := range blocks {
			if err := rt.Registry.Register(ctx, m); err != nil {
				return err
			}
			cli.PrintSystemMessage(cmd.OutOrStdout(), "registered %s", m.ID())
		}
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <namespace/name[@range]>",
	Short: "Show a block manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := domain.ParseRef(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		m, ok := rt.Registry.Resolve(ref)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrBlockNotFound, ref)
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), m)
		}
		out, err := tui.NewRenderer(os.Stdout)(tui.DescribeBlock(m))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var transitionCmd = &cobra.Command{
	Use:   "transition <namespace/name@version> <state>",
	Short: "Move a block version to another lifecycle state",
	Long: `Moves a block along proposed -> testing -> stable -> deprecated -> archived.
Promotion to stable requires the configured test count, pass rate and usage.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := domain.ParseID(args[0])
		if err != nil {
			return err
		}
		to, err := domain.ParseLifecycleState(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		m, err := rt.Registry.Transition(ctx, id, to)
		if err != nil {
			return err
		}
		cli.PrintSystemMessage(cmd.OutOrStdout(), "%s is now %s", m.ID(), m.State)
		return nil
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics <namespace/name@version>",
	Short: "Record test runs, usage and latency for a block version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := domain.ParseID(args[0])
		if err != nil {
			return err
		}
		var delta domain.MetricsDelta
		delta.TestRuns, _ = cmd.Flags().GetInt("runs")
		delta.TestPasses, _ = cmd.Flags().GetInt("passes")
		delta.Usage, _ = cmd.Flags().GetInt64("usage")
		delta.Dependents, _ = cmd.Flags().GetInt64("dependents")
		delta.LatencySamples, _ = cmd.Flags().GetFloat64Slice("latency")

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		m, err := rt.Registry.UpdateMetrics(ctx, id, delta)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), m.Metrics)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered blocks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, _ := cmd.Flags().GetString("namespace")
		tag, _ := cmd.Flags().GetString("tag")
		var states []domain.LifecycleState
		stateNames, _ := cmd.Flags().GetStringSlice("state")
		for _, s := range stateNames {
			st, err := domain.ParseLifecycleState(s)
			if err != nil {
				return err
			}
			states = append(states, st)
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		blocks := rt.Registry.List(registry.Filter{Namespace: ns, Tag: tag, States: states})
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), blocks)
		}
		for _, m := range blocks {
			fmt.Fprintf(cmd.OutOrStdout(), "%-32s %-11s %s\n", m.ID(), m.State, m.Signature)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print registry statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)
		return printJSON(cmd.OutOrStdout(), rt.Registry.Stats())
	},
}

func init() {
	rootCmd.AddCommand(registerCmd, describeCmd, transitionCmd, metricsCmd, listCmd, statsCmd)

	describeCmd.Flags().Bool("json", false, "Print the manifest as JSON")

	metricsCmd.Flags().Int("runs", 0, "Test runs to add")
	metricsCmd.Flags().Int("passes", 0, "Passing test runs to add")
	metricsCmd.Flags().Int64("usage", 0, "Invocations to add")
	metricsCmd.Flags().Int64("dependents", 0, "Change in dependent count")
	metricsCmd.Flags().Float64Slice("latency", nil, "Observed latencies in milliseconds")

	listCmd.Flags().String("namespace", "", "Only this namespace")
	listCmd.Flags().String("tag", "", "Only blocks carrying this tag")
	listCmd.Flags().StringSlice("state", nil, "Only these lifecycle states")
	listCmd.Flags().Bool("json", false, "Print the manifests as JSON")
}
