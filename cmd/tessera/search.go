package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/internal/presentation/tui"
	"github.com/aretw0/tessera/pkg/ranking"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/aretw0/tessera/pkg/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Find blocks by what they do",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		limit, opts := searchFlags(cmd)
		hits, err := rt.Registry.SearchBySemantics(ctx, strings.Join(args, " "), limit, opts...)
		if err != nil {
			return err
		}
		return printHits(cmd, hits)
	},
}

var searchTypeCmd = &cobra.Command{
	Use:   "search-type",
	Short: "Find blocks by signature",
	Long: `Lists blocks whose signature can accept --input and produce --output.
Either side may be omitted. Types use the registry notation, e.g.
"Text", "List<Text>", "Result<Bool,ValidationError>".`,
	Example: `  tessera search-type --input Text --output "List<Text>"`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := typeFlag(cmd, "input")
		if err != nil {
			return err
		}
		output, err := typeFlag(cmd, "output")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		limit, opts := searchFlags(cmd)
		hits, err := rt.Registry.SearchByType(ctx, input, output, limit, opts...)
		if err != nil {
			return err
		}
		return printHits(cmd, hits)
	},
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, searchTypeCmd} {
		rootCmd.AddCommand(c)
		addSearchFlags(c)
	}
	searchCmd.Flags().String("namespace", "", "Restrict to one namespace")
	searchTypeCmd.Flags().String("input", "", "Type the block must accept")
	searchTypeCmd.Flags().String("output", "", "Type the block must produce")
}

func addSearchFlags(c *cobra.Command) {
	c.Flags().IntP("limit", "n", 0, "Maximum number of results (0 uses the configured default)")
	c.Flags().String("profile", "", ranking.ProfileHelp())
	c.Flags().StringSlice("tag", nil, "Boost blocks carrying any of these tags")
	c.Flags().Bool("json", false, "Print the results as JSON")
}

func searchFlags(cmd *cobra.Command) (int, []search.QueryOption) {
	limit, _ := cmd.Flags().GetInt("limit")
	var opts []search.QueryOption
	if p, _ := cmd.Flags().GetString("profile"); p != "" {
		opts = append(opts, search.WithRanking(ranking.Profile(p)))
	}
	if tags, _ := cmd.Flags().GetStringSlice("tag"); len(tags) > 0 {
		opts = append(opts, search.WithTags(tags...))
	}
	if cmd.Flags().Lookup("namespace") != nil {
		if ns, _ := cmd.Flags().GetString("namespace"); ns != "" {
			opts = append(opts, search.InNamespace(ns))
		}
	}
	return limit, opts
}

func typeFlag(cmd *cobra.Command, name string) (schema.Type, error) {
	text, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(text) == "" {
		return schema.Type{}, nil
	}
	t, err := schema.Parse(text)
	if err != nil {
		return schema.Type{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

func printHits(cmd *cobra.Command, hits []search.Hit) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if hits == nil {
			hits = []search.Hit{}
		}
		return printJSON(cmd.OutOrStdout(), hits)
	}
	out, err := tui.NewRenderer(os.Stdout)(tui.DescribeHits(hits))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
