// Package render formats diff results for terminals and machines.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/treediff/pkg/actions"
	"github.com/Sumatoshi-tech/treediff/pkg/diff"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// ErrUnknownFormat is returned for an unrecognized output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Format is an output format name.
type Format string

// Output formats.
const (
	FormatText     Format = "text"
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatSummary  Format = "summary"
	FormatMappings Format = "mappings"
	FormatTree     Format = "tree"
)

// DefaultMaxMappings is the number of pairs shown by the mappings format.
const DefaultMaxMappings = 12

// Formats lists every output format.
func Formats() []Format {
	return []Format{FormatText, FormatTable, FormatJSON, FormatSummary, FormatMappings, FormatTree}
}

// ParseFormat resolves a format name.
func ParseFormat(name string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))

	for _, known := range Formats() {
		if format == known {
			return format, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Options tune rendering.
type Options struct {
	// Color enables ANSI colors in the text format.
	Color bool
	// MaxMappings limits the mappings format. Zero or less shows every pair.
	MaxMappings int
}

// Render writes result to w in the requested format.
func Render(w io.Writer, result *diff.Result, format Format, opts Options) error {
	var err error

	switch format {
	case FormatText:
		err = renderText(w, result.Script, opts)
	case FormatTable:
		_, err = io.WriteString(w, Table(result.Script)+"\n")
	case FormatJSON:
		err = renderJSON(w, result)
	case FormatSummary:
		_, err = io.WriteString(w, Summary(result.Stats))
	case FormatMappings:
		err = renderMappings(w, result, opts.MaxMappings)
	case FormatTree:
		err = renderTrees(w, result)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}

	return nil
}

func kindColor(kind actions.Kind, enabled bool) *color.Color {
	var c *color.Color

	switch kind {
	case actions.Insert:
		c = color.New(color.FgGreen)
	case actions.Delete:
		c = color.New(color.FgRed)
	case actions.Update:
		c = color.New(color.FgYellow)
	case actions.Move:
		c = color.New(color.FgCyan)
	default:
		c = color.New(color.Reset)
	}

	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}

	return c
}

func renderText(w io.Writer, script actions.Script, opts Options) error {
	if len(script) == 0 {
		_, err := fmt.Fprintln(w, "No changes.")

		return err
	}

	_, err := fmt.Fprintf(w, "Number of actions: %d\n", len(script))
	if err != nil {
		return err
	}

	for _, action := range script {
		_, err = kindColor(action.Kind, opts.Color).Fprintln(w, "  "+action.String())
		if err != nil {
			return err
		}
	}

	return nil
}

// Table renders the script as a borderless table.
func Table(script actions.Script) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	tbl.AppendHeader(table.Row{"#", "Action", "Node", "Type", "Label", "Parent", "Pos"})

	for idx, action := range script {
		label := action.Label
		if action.Kind == actions.Update {
			label = action.OldLabel + " -> " + action.Label
		}

		parent, pos := "", ""
		if action.Kind == actions.Insert || action.Kind == actions.Move {
			parent = action.Parent.String()
			pos = fmt.Sprint(action.Position)
		}

		tbl.AppendRow(table.Row{idx + 1, action.Kind, action.Node, action.Type, label, parent, pos})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d actions", len(script))})

	return tbl.Render()
}

// Summary renders node, mapping and action counts.
func Summary(stats diff.Stats) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Source nodes:      %s\n", humanize.Comma(int64(stats.SrcNodes)))
	fmt.Fprintf(&sb, "Destination nodes: %s\n", humanize.Comma(int64(stats.DstNodes)))
	fmt.Fprintf(&sb, "Mappings:          %s (top-down %s, bottom-up %s, roots %s, recovered %s)\n",
		humanize.Comma(int64(stats.Mappings)),
		humanize.Comma(int64(stats.Match.TopDown)),
		humanize.Comma(int64(stats.Match.BottomUp)),
		humanize.Comma(int64(stats.Match.Roots)),
		humanize.Comma(int64(stats.Match.Recovered)),
	)
	fmt.Fprintf(&sb, "Actions:           %s (insert %s, delete %s, update %s, move %s)\n",
		humanize.Comma(int64(stats.Actions.Total())),
		humanize.Comma(int64(stats.Actions.Inserts)),
		humanize.Comma(int64(stats.Actions.Deletes)),
		humanize.Comma(int64(stats.Actions.Updates)),
		humanize.Comma(int64(stats.Actions.Moves)),
	)
	fmt.Fprintf(&sb, "Elapsed:           %s\n", stats.Duration)

	return sb.String()
}

// MappingJSON is the serialized form of one mapped pair.
type MappingJSON struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// ResultJSON is the document written by the json format.
type ResultJSON struct {
	Actions  actions.Script `json:"actions"`
	Mappings []MappingJSON  `json:"mappings"`
	Stats    diff.Stats     `json:"stats"`
}

// NewResultJSON converts a result to its serialized form.
func NewResultJSON(result *diff.Result) ResultJSON {
	out := ResultJSON{
		Actions:  result.Script,
		Mappings: make([]MappingJSON, 0, result.Mappings.Size()),
		Stats:    result.Stats,
	}

	if out.Actions == nil {
		out.Actions = actions.Script{}
	}

	for src, dst := range result.Mappings.Pairs() {
		out.Mappings = append(out.Mappings, MappingJSON{Src: src.ID, Dst: dst.ID})
	}

	return out
}

func renderJSON(w io.Writer, result *diff.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(NewResultJSON(result))
}

func renderMappings(w io.Writer, result *diff.Result, limit int) error {
	_, err := fmt.Fprintf(w, "Total mappings: %d\n", result.Mappings.Size())
	if err != nil {
		return err
	}

	shown := 0

	for src, dst := range result.Mappings.Pairs() {
		if limit > 0 && shown >= limit {
			break
		}

		_, err = fmt.Fprintf(w, "  %s  ->  %s\n", src, dst)
		if err != nil {
			return err
		}

		shown++
	}

	if hidden := result.Mappings.Size() - shown; hidden > 0 {
		_, err = fmt.Fprintf(w, "  ... %d more\n", hidden)
	}

	return err
}

func renderTrees(w io.Writer, result *diff.Result) error {
	_, err := fmt.Fprintf(w, "Tree BEFORE:\n%sTree AFTER:\n%s", TreeString(result.Src.Root()), TreeString(result.Dst.Root()))

	return err
}

// TreeString dumps a subtree with one node per line, indented by depth:
// "Type: label [start,end]" where the bracket holds byte offsets when known.
func TreeString(n *tree.Node) string {
	var sb strings.Builder

	writeTree(&sb, n, 0)

	return sb.String()
}

func writeTree(sb *strings.Builder, n *tree.Node, depth int) {
	sb.WriteString(strings.Repeat("    ", depth))
	sb.WriteString(string(n.Type))

	if n.Label != "" {
		sb.WriteString(": ")
		sb.WriteString(n.Label)
	}

	if n.Pos != nil && n.Pos.EndOffset > 0 {
		fmt.Fprintf(sb, " [%d,%d]", n.Pos.StartOffset, n.Pos.EndOffset)
	}

	sb.WriteByte('\n')

	for _, child := range n.Children {
		writeTree(sb, child, depth+1)
	}
}
