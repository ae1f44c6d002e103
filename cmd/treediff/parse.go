package main

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/treediff/pkg/observability"
	"github.com/Sumatoshi-tech/treediff/pkg/render"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
	"github.com/Sumatoshi-tech/treediff/pkg/treeio"
)

// formatTree prints the indented outline used by the tree diff format.
const formatTree = "tree"

type parseFlags struct {
	format      string
	output      string
	inputFormat string
	language    string
}

func parseCmd(opts *rootOptions) *cobra.Command {
	flags := &parseFlags{}

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a tree document or source file and print the tree",
		Long: `Parse a tree document or a source file and print the resulting tree.
Use "-" to read standard input.

Examples:
  treediff parse main.go
  treediff parse -f yaml tree.lisp
  treediff parse -f tree --language python - < script.py`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, opts, flags, args[0])
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "output format: json, yaml, flat, lisp, tree")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write the tree to this file instead of stdout")
	cmd.Flags().StringVar(&flags.inputFormat, "input-format", "", "input format: auto, json, yaml, flat, lisp, source")
	cmd.Flags().StringVar(&flags.language, "language", "", "tree-sitter grammar for source input (default: detected)")

	return cmd
}

func runParse(cmd *cobra.Command, opts *rootOptions, flags *parseFlags, path string) (err error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("input-format") {
		cfg.Input.Format = flags.inputFormat
	}

	if cmd.Flags().Changed("language") {
		cfg.Input.Language = flags.language
	}

	loadOpts, err := cfg.LoadOptions()
	if err != nil {
		return err
	}

	providers, err := opts.initObservability(cmd, cfg, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer shutdownObservability(providers)

	write, err := treeWriter(flags.format)
	if err != nil {
		return err
	}

	parsed, err := loadTree(path, cmd.InOrStdin(), loadOpts)
	if err != nil {
		return err
	}

	providers.Logger.DebugContext(cmd.Context(), "tree parsed",
		"path", displayPath(path), "nodes", parsed.Size(), "height", parsed.Height())

	out, closeOut, err := createOutput(flags.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, closeOut())
	}()

	return write(out, parsed)
}

// treeWriter resolves a parse output format.
func treeWriter(name string) (func(io.Writer, *tree.Tree) error, error) {
	if strings.EqualFold(name, formatTree) {
		return func(w io.Writer, t *tree.Tree) error {
			_, err := io.WriteString(w, render.TreeString(t.Root()))

			return err
		}, nil
	}

	format, err := treeio.ParseFormat(name)
	if err != nil {
		return nil, err
	}

	if format == treeio.FormatSource {
		return nil, treeio.ErrUnsupportedFormat
	}

	return func(w io.Writer, t *tree.Tree) error {
		return treeio.Write(w, t, format)
	}, nil
}
