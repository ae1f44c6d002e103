package diff_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/treediff/pkg/actions"
	"github.com/Sumatoshi-tech/treediff/pkg/diff"
	"github.com/Sumatoshi-tech/treediff/pkg/matchers"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

func newEngine(t *testing.T, opts ...diff.Option) *diff.Engine {
	t.Helper()

	engine, err := diff.New(matchers.DefaultConfig(), opts...)
	require.NoError(t, err)

	return engine
}

func TestEngine_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  *tree.Node
		dst  *tree.Node
		want actions.Summary
	}{
		{
			"label change",
			tree.New("Root", "", tree.New("If", "", tree.New("Then", "", tree.New("Print", "a")))),
			tree.New("Root", "", tree.New("If", "", tree.New("Then", "", tree.New("Print", "b")))),
			actions.Summary{Updates: 1},
		},
		{
			"swapped leaves",
			tree.New("Root", "", tree.New("Block", "", tree.New("X", ""), tree.New("Y", ""))),
			tree.New("Root", "", tree.New("Block", "", tree.New("Y", ""), tree.New("X", ""))),
			actions.Summary{Moves: 1},
		},
		{
			"appended child",
			tree.New("Root", "", tree.New("A1", "")),
			tree.New("Root", "", tree.New("A1", ""), tree.New("B1", "")),
			actions.Summary{Inserts: 1},
		},
		{
			"removed child",
			tree.New("Root", "", tree.New("A1", ""), tree.New("B1", "")),
			tree.New("Root", "", tree.New("B1", "")),
			actions.Summary{Deletes: 1},
		},
	}

	engine := newEngine(t, diff.WithVerify(true))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := engine.DiffNodes(context.Background(), tt.src, tt.dst)
			require.NoError(t, err)

			assert.Equal(t, tt.want, result.Stats.Actions)
			assert.Equal(t, tt.want, result.Script.Summarize())
			require.NoError(t, result.Verify())
		})
	}
}

func TestEngine_StatsAndLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine := newEngine(t, diff.WithLogger(logger))

	result, err := engine.DiffNodes(context.Background(),
		tree.New("Root", "", tree.New("If", "", tree.New("Then", "", tree.New("Print", "a")))),
		tree.New("Root", "", tree.New("If", "", tree.New("Then", "", tree.New("Print", "b")))),
	)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Stats.SrcNodes)
	assert.Equal(t, 4, result.Stats.Mappings)
	assert.Equal(t, 4, result.Stats.Match.Total())
	assert.Contains(t, result.Stats.Phases, diff.PhaseTopDown)
	assert.Contains(t, result.Stats.Phases, diff.PhaseBottomUp)
	assert.Contains(t, result.Stats.Phases, diff.PhaseGenerate)

	assert.Contains(t, buf.String(), "diff phase done")
	assert.Contains(t, buf.String(), "diff complete")
}

func TestEngine_TopDownOnlySkipsBottomUp(t *testing.T) {
	t.Parallel()

	cfg := matchers.DefaultConfig()
	cfg.Strategy = matchers.TopDownOnly

	engine, err := diff.New(cfg, diff.WithVerify(true))
	require.NoError(t, err)

	result, err := engine.DiffNodes(context.Background(),
		tree.New("Root", "", tree.New("Leaf", "a")),
		tree.New("Root", "", tree.New("Leaf", "b")),
	)
	require.NoError(t, err)

	assert.NotContains(t, result.Stats.Phases, diff.PhaseBottomUp)
	assert.Equal(t, actions.Summary{Deletes: 2, Inserts: 2}, result.Stats.Actions)
}

func TestEngine_SpansPerPhase(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	engine := newEngine(t, diff.WithTracer(tp.Tracer("test")))

	_, err := engine.DiffNodes(context.Background(), tree.New("A", "x"), tree.New("A", "y"))
	require.NoError(t, err)

	names := make([]string, 0)
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}

	assert.ElementsMatch(t, []string{
		"treediff.diff.topdown", "treediff.diff.bottomup", "treediff.diff.generate", "treediff.diff",
	}, names)
}

func TestEngine_CanceledContextDiscardsWork(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newEngine(t).DiffNodes(ctx, tree.New("A", ""), tree.New("A", ""))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestEngine_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := diff.New(matchers.Config{})
	require.ErrorIs(t, err, matchers.ErrInvalidConfig)

	_, err = newEngine(t).DiffNodes(context.Background(), nil, tree.New("A", ""))
	require.ErrorIs(t, err, tree.ErrMalformedTree)
}

func TestResult_VerifyDetectsBrokenScript(t *testing.T) {
	t.Parallel()

	result, err := newEngine(t).DiffNodes(context.Background(),
		tree.New("Root", "", tree.New("A", "1")),
		tree.New("Root", "", tree.New("A", "2")),
	)
	require.NoError(t, err)

	result.Script = result.Script[:0]
	require.ErrorIs(t, result.Verify(), diff.ErrVerification)

	result.Script = actions.Script{{Kind: actions.Delete, Node: actions.Ref{Side: actions.Source, ID: "missing"}}}
	err = result.Verify()
	require.ErrorIs(t, err, diff.ErrVerification)
	require.ErrorIs(t, err, actions.ErrInvalidAction)
}

func TestEngine_MatchesStandaloneMatcher(t *testing.T) {
	t.Parallel()

	src, err := tree.Build(tree.New("Root", "",
		tree.New("Class", "",
			tree.New("Method", "", tree.New("Name", "f"), tree.New("Stmt", "a"), tree.New("Stmt", "b")),
			tree.New("Field", "x"),
		),
	))
	require.NoError(t, err)

	dst, err := tree.Build(tree.New("Root", "",
		tree.New("Class", "",
			tree.New("Field", "y"),
			tree.New("Method", "", tree.New("Name", "f"), tree.New("Stmt", "a"), tree.New("Stmt", "c")),
		),
		tree.New("Extra", ""),
	))
	require.NoError(t, err)

	for _, strategy := range []matchers.Strategy{matchers.TopDownThenBottomUp, matchers.TopDownOnly} {
		cfg := matchers.DefaultConfig()
		cfg.Strategy = strategy

		engine, err := diff.New(cfg)
		require.NoError(t, err)

		result, err := engine.Diff(context.Background(), src, dst)
		require.NoError(t, err)

		store, stats, err := matchers.Match(context.Background(), src, dst, cfg)
		require.NoError(t, err)

		assert.Equal(t, stats, result.Stats.Match, strategy.String())
		assert.Equal(t, store.Size(), result.Mappings.Size(), strategy.String())

		for a, b := range store.Pairs() {
			assert.Same(t, b, result.Mappings.Dst(a), strategy.String())
		}
	}
}
