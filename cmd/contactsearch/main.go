package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/contactsearch/internal/config"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/internal/mcp"
	"github.com/dshills/contactsearch/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "contactsearch",
		Short: "Hybrid contact search engine",
		Long:  "contactsearch combines an in-memory contact cache with SQLite full-text search and serves both over MCP.",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the TOML config file")

	root.AddCommand(serveCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(rebuildCmd())
	root.AddCommand(optimizeCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies its log level
func loadConfig() *config.Config {
	cfg := config.Load(configPath, logger.New("config"))
	logger.SetLevel(cfg.Log.Level)
	return cfg
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			lg := logger.New("main")

			// stdout is reserved for the protocol
			lg.Info("contactsearch starting", "version", version, "build_mode", storage.BuildMode, "driver", storage.DriverName)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			server, err := mcp.NewServer(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				lg.Info("MCP server ready, listening on stdio")
				errChan <- server.Serve(ctx)
			}()

			select {
			case sig := <-sigChan:
				lg.Info("shutting down", "signal", sig)
				cancel()
			case err := <-errChan:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			}

			lg.Info("server stopped")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "contactsearch %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
		},
	}
}
