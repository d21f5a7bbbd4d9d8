package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/internal/cli"
	"github.com/aretw0/tessera/internal/config"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/manifest"
)

var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "Tessera is a registry of typed, composable blocks",
	Long: `Tessera catalogs reusable blocks by signature and quality, finds them by
intent or by type, and checks that a composition of blocks is wired correctly
before anything runs.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default .tessera/config.yaml or ~/.config/tessera/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("catalog", "", "Directory of block manifests to load")
	rootCmd.PersistentFlags().Bool("no-stdlib", false, "Do not seed the built-in block library")
}

// loadConfig reads the config file and applies the persistent flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("catalog") {
		cfg.CatalogDir, _ = cmd.Flags().GetString("catalog")
	}
	if noStdlib, _ := cmd.Flags().GetBool("no-stdlib"); noStdlib {
		cfg.SeedStdlib = false
	}
	return cfg, nil
}

// openRuntime loads configuration and opens the registry it describes.
func openRuntime(ctx context.Context, cmd *cobra.Command, extra ...domain.LifecycleHooks) (*cli.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := cli.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return cli.Open(ctx, cfg, logger, extra...)
}

// readInput returns the contents of path, or of stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func readGraph(cmd *cobra.Command, path string) (domain.CompositionGraph, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return domain.CompositionGraph{}, err
	}
	g, err := manifest.DecodeGraph(data)
	if err != nil {
		return domain.CompositionGraph{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
