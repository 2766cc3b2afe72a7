package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/dshills/contactsearch/internal/config"
	"github.com/dshills/contactsearch/internal/mcp"
	"github.com/dshills/contactsearch/internal/searcher"
	"github.com/dshills/contactsearch/pkg/types"
)

// withServer opens the configured database, runs fn and closes it
func withServer(cmd *cobra.Command, fn func(ctx context.Context, srch *searcher.Searcher) error) error {
	cfg := loadConfig()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	server, err := mcp.NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = server.Close() }()

	return fn(ctx, server.Searcher())
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func searchCmd() *cobra.Command {
	var (
		entityTypes []string
		limit       int
		offset      int
		noCache     bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search and print the grouped results as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := searcher.SearchRequest{
				Query:            strings.Join(args, " "),
				Limit:            limit,
				Offset:           offset,
				SkipContactCache: noCache,
			}
			for _, name := range entityTypes {
				et, err := types.ParseEntityType(name)
				if err != nil {
					return err
				}
				req.EntityTypes = append(req.EntityTypes, et)
			}

			return withServer(cmd, func(ctx context.Context, srch *searcher.Searcher) error {
				return writeJSON(cmd.OutOrStdout(), srch.Search(ctx, req))
			})
		},
	}
	cmd.Flags().StringSliceVarP(&entityTypes, "type", "t", nil, "Entity types to search (contact, note, tag, relationship)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of ranked results to skip")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Query the full-text index only")
	return cmd
}

func rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the full-text index from the base tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd, func(ctx context.Context, srch *searcher.Searcher) error {
				if err := srch.RebuildIndex(ctx); err != nil {
					return fmt.Errorf("rebuild failed: %w", err)
				}
				stats := srch.GetStats(ctx)
				if stats.Index != nil {
					for et, n := range stats.Index.Counts {
						fmt.Fprintf(cmd.OutOrStdout(), "%-13s %d\n", et, n)
					}
				}
				return nil
			})
		},
	}
}

func optimizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Merge full-text index segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd, func(ctx context.Context, srch *searcher.Searcher) error {
				if err := srch.OptimizeIndex(ctx); err != nil {
					return fmt.Errorf("optimize failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "index optimized")
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache, index and search statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd, func(ctx context.Context, srch *searcher.Searcher) error {
				return writeJSON(cmd.OutOrStdout(), srch.GetStats(ctx))
			})
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			var buf bytes.Buffer
			if err := toml.NewEncoder(&buf).Encode(loadConfig()); err != nil {
				return err
			}
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the config path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(config.DefaultConfig(), configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
			return nil
		},
	})

	return cmd
}
