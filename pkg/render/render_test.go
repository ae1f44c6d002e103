package render_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/treediff/pkg/diff"
	"github.com/Sumatoshi-tech/treediff/pkg/matchers"
	"github.com/Sumatoshi-tech/treediff/pkg/render"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

func diffOf(t *testing.T, src, dst *tree.Node) *diff.Result {
	t.Helper()

	engine, err := diff.New(matchers.DefaultConfig())
	require.NoError(t, err)

	result, err := engine.DiffNodes(context.Background(), src, dst)
	require.NoError(t, err)

	return result
}

func appended(t *testing.T) *diff.Result {
	t.Helper()

	return diffOf(t,
		tree.New("Root", "", tree.New("A1", "")),
		tree.New("Root", "", tree.New("A1", ""), tree.New("B1", "")),
	)
}

func renderString(t *testing.T, result *diff.Result, format render.Format, opts render.Options) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, result, format, opts))

	return buf.String()
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for _, format := range render.Formats() {
		parsed, err := render.ParseFormat(strings.ToUpper(string(format)))
		require.NoError(t, err)
		assert.Equal(t, format, parsed)
	}

	_, err := render.ParseFormat("html")
	require.ErrorIs(t, err, render.ErrUnknownFormat)

	err = render.Render(&bytes.Buffer{}, appended(t), "html", render.Options{})
	require.ErrorIs(t, err, render.ErrUnknownFormat)
}

func TestRender_Text(t *testing.T) {
	t.Parallel()

	out := renderString(t, appended(t), render.FormatText, render.Options{})
	assert.Equal(t, "Number of actions: 1\n  insert dst:2 B1() into src:0 at 1\n", out)

	colored := renderString(t, appended(t), render.FormatText, render.Options{Color: true})
	assert.Contains(t, colored, "\x1b[32m")

	same := diffOf(t, tree.New("A", "x"), tree.New("A", "x"))
	assert.Equal(t, "No changes.\n", renderString(t, same, render.FormatText, render.Options{}))
}

func TestRender_Table(t *testing.T) {
	t.Parallel()

	result := diffOf(t,
		tree.New("Root", "", tree.New("If", "", tree.New("Then", "", tree.New("Print", "a")))),
		tree.New("Root", "", tree.New("If", "", tree.New("Then", "", tree.New("Print", "b")))),
	)

	out := renderString(t, result, render.FormatTable, render.Options{})

	assert.Contains(t, out, "update")
	assert.Contains(t, out, "a -> b")
	assert.Contains(t, strings.ToLower(out), "total: 1 actions")
}

func TestRender_Summary(t *testing.T) {
	t.Parallel()

	out := renderString(t, appended(t), render.FormatSummary, render.Options{})

	assert.Contains(t, out, "Source nodes:      2\n")
	assert.Contains(t, out, "Destination nodes: 3\n")
	assert.Contains(t, out, "Mappings:          2")
	assert.Contains(t, out, "(insert 1, delete 0, update 0, move 0)")
}

func TestRender_JSON(t *testing.T) {
	t.Parallel()

	out := renderString(t, appended(t), render.FormatJSON, render.Options{})

	var decoded render.ResultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))

	require.Len(t, decoded.Actions, 1)
	assert.Equal(t, "B1", string(decoded.Actions[0].Type))
	assert.Len(t, decoded.Mappings, 2)
	assert.Equal(t, 3, decoded.Stats.DstNodes)

	same := diffOf(t, tree.New("A", ""), tree.New("A", ""))
	assert.Contains(t, renderString(t, same, render.FormatJSON, render.Options{}), `"actions": []`)
}

func TestRender_Mappings(t *testing.T) {
	t.Parallel()

	out := renderString(t, appended(t), render.FormatMappings, render.Options{MaxMappings: 1})

	assert.True(t, strings.HasPrefix(out, "Total mappings: 2\n"))
	assert.Equal(t, 1, strings.Count(out, "->"))
	assert.Contains(t, out, "... 1 more")

	all := renderString(t, appended(t), render.FormatMappings, render.Options{})
	assert.Equal(t, 2, strings.Count(all, "->"))
	assert.Contains(t, all, "Root()  ->  Root()")
}

func TestRender_Tree(t *testing.T) {
	t.Parallel()

	out := renderString(t, appended(t), render.FormatTree, render.Options{})

	assert.Equal(t, "Tree BEFORE:\nRoot\n    A1\nTree AFTER:\nRoot\n    A1\n    B1\n", out)
}

func TestTreeString_Positions(t *testing.T) {
	t.Parallel()

	n := tree.NewBuilder().
		WithType("Call").
		WithLabel("f").
		WithPosition(&tree.Positions{StartOffset: 4, EndOffset: 9}).
		Build()

	assert.Equal(t, "Call: f [4,9]\n", render.TreeString(n))
}
