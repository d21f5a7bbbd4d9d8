package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/tessera/internal/cli"
	"github.com/aretw0/tessera/internal/presentation/tui"
	httpAdapter "github.com/aretw0/tessera/pkg/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the registry as a JSON API over HTTP, with Prometheus metrics on
/metrics, registry events on /events and the OpenAPI document on /openapi.yaml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		streams := httpAdapter.NewStreamManager()
		rt, err := openRuntime(sc, cmd, streams.Hooks())
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		port := rt.Config.HTTP.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: httpAdapter.NewHandler(rt.Registry,
				httpAdapter.WithLogger(rt.Logger),
				httpAdapter.WithGatherer(rt.Gatherer),
				httpAdapter.WithStreams(streams),
			),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if watch {
			if err := rt.Registry.Watch(sc); err != nil {
				return err
			}
		}

		serverErrors := make(chan error, 1)
		go func() {
			rt.Logger.Info("Starting Tessera Server", "addr", srv.Addr, "blocks", rt.Registry.Stats().TotalBlocks)
			serverErrors <- srv.ListenAndServe()
		}()

		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(cmd.OutOrStdout())
		}

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case <-sc.Done():
			cli.PrintSystemMessage(cmd.OutOrStdout(), "Shutting down (signal: %v)", sc.Signal())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				rt.Logger.Error("Graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			rt.Logger.Info("Tessera Server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides http.port)")
	serveCmd.Flags().Bool("watch", false, "Reload the catalog directory when it changes")
}
