package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/treediff/pkg/config"
	"github.com/Sumatoshi-tech/treediff/pkg/diff"
	"github.com/Sumatoshi-tech/treediff/pkg/observability"
	"github.com/Sumatoshi-tech/treediff/pkg/render"
)

// diffFlags are the per-run overrides of the configuration file.
type diffFlags struct {
	format          string
	output          string
	color           string
	inputFormat     string
	language        string
	strategy        string
	maxMappings     int
	minHeight       int
	recoveryMaxSize int
	workers         int
	threshold       float64
	verify          bool
}

func diffCmd(opts *rootOptions) *cobra.Command {
	flags := &diffFlags{}

	cmd := &cobra.Command{
		Use:   "diff <src> <dst>",
		Short: "Compute the edit script between two trees",
		Long: `Compare two trees and print the actions that transform src into dst.
Either path may be "-" to read standard input.

Examples:
  treediff diff before.json after.json
  treediff diff -f table old.go new.go
  treediff diff --verify -f summary a.lisp b.lisp`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, opts, flags, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "output format: text, table, json, summary, mappings, tree")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write the result to this file instead of stdout")
	cmd.Flags().StringVar(&flags.color, "color", "", "colorize text output: auto, always, never")
	cmd.Flags().StringVar(&flags.inputFormat, "input-format", "", "input format: auto, json, yaml, flat, lisp, source")
	cmd.Flags().StringVar(&flags.language, "language", "", "tree-sitter grammar for source input (default: detected)")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "", "matching strategy: topdown-bottomup, topdown")
	cmd.Flags().Float64Var(&flags.threshold, "threshold", 0, "bottom-up similarity threshold in [0,1]")
	cmd.Flags().IntVar(&flags.minHeight, "min-height", 0, "minimum subtree height for top-down matching")
	cmd.Flags().IntVar(&flags.recoveryMaxSize, "recovery-max-size", 0, "largest subtree pair handled by recovery")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "goroutines verifying top-down candidates")
	cmd.Flags().IntVar(&flags.maxMappings, "max-mappings", 0, "mappings shown by the mappings format (0 shows all)")
	cmd.Flags().BoolVar(&flags.verify, "verify", false, "replay the script and check it reproduces dst")

	return cmd
}

// apply copies every flag the user set onto cfg and revalidates it.
func (f *diffFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("format") {
		cfg.Output.Format = f.format
	}

	if changed("color") {
		cfg.Output.Color = f.color
	}

	if changed("max-mappings") {
		cfg.Output.MaxMappings = f.maxMappings
	}

	if changed("verify") {
		cfg.Output.Verify = f.verify
	}

	if changed("input-format") {
		cfg.Input.Format = f.inputFormat
	}

	if changed("language") {
		cfg.Input.Language = f.language
	}

	if changed("strategy") {
		cfg.Matcher.Strategy = f.strategy
	}

	if changed("threshold") {
		cfg.Matcher.SimilarityThreshold = f.threshold
	}

	if changed("min-height") {
		cfg.Matcher.MinHeight = f.minHeight
	}

	if changed("recovery-max-size") {
		cfg.Matcher.RecoveryMaxSize = f.recoveryMaxSize
	}

	if changed("workers") {
		cfg.Matcher.Workers = f.workers
	}

	return cfg.Validate()
}

func runDiff(cmd *cobra.Command, opts *rootOptions, flags *diffFlags, srcPath, dstPath string) (err error) {
	if srcPath == stdinPath && dstPath == stdinPath {
		return ErrStdinTwice
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	err = flags.apply(cmd, cfg)
	if err != nil {
		return err
	}

	providers, err := opts.initObservability(cmd, cfg, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer shutdownObservability(providers)

	engine, err := newEngine(cfg, providers)
	if err != nil {
		return err
	}

	loadOpts, err := cfg.LoadOptions()
	if err != nil {
		return err
	}

	src, err := loadTree(srcPath, cmd.InOrStdin(), loadOpts)
	if err != nil {
		return err
	}

	dst, err := loadTree(dstPath, cmd.InOrStdin(), loadOpts)
	if err != nil {
		return err
	}

	result, err := engine.Diff(cmd.Context(), src, dst)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}

	format, err := render.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	out, closeOut, err := createOutput(flags.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, closeOut())
	}()

	return render.Render(out, result, format, render.Options{
		Color:       colorEnabled(cfg.Output.Color, flags.output == ""),
		MaxMappings: cfg.Output.MaxMappings,
	})
}

// newEngine builds a diff engine wired to the providers' logger, tracer and meter.
func newEngine(cfg *config.Config, providers observability.Providers) (*diff.Engine, error) {
	settings, err := cfg.MatcherSettings()
	if err != nil {
		return nil, err
	}

	diffMetrics, err := observability.NewDiffMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create diff metrics: %w", err)
	}

	return diff.New(settings,
		diff.WithLogger(providers.Logger),
		diff.WithTracer(providers.Tracer),
		diff.WithMetrics(diffMetrics),
		diff.WithVerify(cfg.Output.Verify),
	)
}

// colorEnabled resolves a color mode. auto follows fatih/color's terminal
// detection and is off for file output.
func colorEnabled(mode string, terminal bool) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default:
		return terminal && !color.NoColor
	}
}
