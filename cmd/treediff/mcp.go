package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/treediff/pkg/mcp"
	"github.com/Sumatoshi-tech/treediff/pkg/observability"
	"github.com/Sumatoshi-tech/treediff/pkg/version"
)

func mcpCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes two tools:
  - tree_diff:  edit script between two tree documents or source files
  - tree_parse: parse a tree document or source file

Logs are written to stderr as JSON; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			// stdout belongs to the protocol.
			opts.logJSON = true

			providers, err := opts.initObservability(cmd, cfg, observability.ModeMCP)
			if err != nil {
				return err
			}

			defer shutdownObservability(providers)

			red, err := observability.NewREDMetrics(providers.Meter)
			if err != nil {
				return fmt.Errorf("create request metrics: %w", err)
			}

			diffMetrics, err := observability.NewDiffMetrics(providers.Meter)
			if err != nil {
				return fmt.Errorf("create diff metrics: %w", err)
			}

			settings, err := cfg.MatcherSettings()
			if err != nil {
				return err
			}

			maxInput, err := cfg.MaxInputBytes()
			if err != nil {
				return err
			}

			trees, err := newTreeCache(cfg)
			if err != nil {
				return err
			}

			srv, err := mcp.NewServer(mcp.ServerDeps{
				Logger:        providers.Logger,
				Metrics:       red,
				DiffMetrics:   diffMetrics,
				Tracer:        providers.Tracer,
				Matcher:       &settings,
				MaxInputBytes: maxInput,
				Version:       version.Version,
				Cache:         trees,
			})
			if err != nil {
				return err
			}

			providers.Logger.Info("mcp server starting", "tools", srv.ListToolNames())

			return srv.Run(cmd.Context())
		},
	}
}
