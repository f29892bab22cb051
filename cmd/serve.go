package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/milspecs/internal/app"
	"github.com/zjrosen/milspecs/internal/config"
	"github.com/zjrosen/milspecs/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reference site and its API",
	Long: `Serve the mil-specs site pages, the JSON API under /api and, when
enabled, Prometheus metrics at /metrics.

Data files under data.dir (default: .milspecs/data when it exists) override
the built-in dataset and are reloaded when they change.

Example:
  milspecs serve                       # Start on the configured address
  milspecs serve --addr :8080          # Listen on all interfaces, port 8080
  milspecs serve --data ./specs-data   # Serve local data overrides
  milspecs serve --no-watch            # Do not reload on data changes`,
	RunE: runServe,
}

var (
	serveAddr    string
	serveDataDir string
	serveNoWatch bool
)

func init() {
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(c *cobra.Command) {
	c.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
	c.Flags().StringVar(&serveDataDir, "data", "", "Data override directory (overrides config)")
	c.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable reloading when data files change")
}

// applyServeFlags returns c with the serve flag overrides applied.
func applyServeFlags(c config.Config) config.Config {
	if serveAddr != "" {
		c.Server.Addr = serveAddr
	}
	if serveDataDir != "" {
		c.Data.Dir = serveDataDir
	}
	if serveNoWatch {
		c.Data.Watch = false
	}
	return c
}

func runServe(_ *cobra.Command, _ []string) error {
	c := applyServeFlags(cfg)
	if err := config.Validate(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Handle shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	site, err := app.New(ctx, c)
	if err != nil {
		return fmt.Errorf("starting site: %w", err)
	}
	defer func() {
		if err := site.Close(); err != nil {
			log.ErrorErr(log.CatHTTP, "Error closing site", err)
		}
	}()

	server, err := site.NewServer()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Fprintf(os.Stderr, "mil-specs serving %d specs on port %d\n", len(site.Specs.Specs()), server.Port())
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\nShutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.ErrorErr(log.CatHTTP, "Error stopping server", err)
	}

	fmt.Fprintln(os.Stderr, "Server stopped")
	return nil
}
