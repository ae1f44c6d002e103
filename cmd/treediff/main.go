// Package main provides the treediff CLI entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/treediff/pkg/config"
	"github.com/Sumatoshi-tech/treediff/pkg/observability"
	"github.com/Sumatoshi-tech/treediff/pkg/version"
)

const binaryName = "treediff"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	verbose    bool
	quiet      bool
	logJSON    bool
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   binaryName,
		Short: "Structural differencing of syntax trees",
		Long: `treediff computes an edit script (insert, delete, update, move) that turns one
tree into another. Trees are read from JSON, YAML, flat record or s-expression
documents, or parsed from source code with tree-sitter.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is ./.treediff.yaml or $HOME/.treediff.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and errors")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "write logs as JSON")

	rootCmd.AddCommand(diffCmd(opts))
	rootCmd.AddCommand(parseCmd(opts))
	rootCmd.AddCommand(serverCmd(opts))
	rootCmd.AddCommand(mcpCmd(opts))
	rootCmd.AddCommand(completionCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String(binaryName))
		},
	}
}

// loadConfig reads the configuration file and environment.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.LoadConfig(o.configFile)
}

// initObservability starts tracing, metrics and logging for mode. Logs go to
// the command's error stream so stdout only carries results.
func (o *rootOptions) initObservability(
	cmd *cobra.Command, cfg *config.Config, mode observability.AppMode,
) (observability.Providers, error) {
	obsCfg, err := cfg.ObservabilitySettings(mode, version.Version)
	if err != nil {
		return observability.Providers{}, err
	}

	switch {
	case o.verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case o.quiet:
		obsCfg.LogLevel = slog.LevelWarn
	}

	if o.logJSON {
		obsCfg.LogJSON = true
	}

	providers, err := observability.InitWithWriter(obsCfg, cmd.ErrOrStderr())
	if err != nil {
		return observability.Providers{}, fmt.Errorf("init observability: %w", err)
	}

	return providers, nil
}

// shutdownObservability flushes pending telemetry.
func shutdownObservability(providers observability.Providers) {
	err := providers.Shutdown(context.Background())
	if err != nil {
		providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}
