package matchers

import (
	"context"
	"fmt"

	"github.com/Sumatoshi-tech/treediff/pkg/mapping"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// Stats counts the pairs contributed by each phase.
type Stats struct {
	TopDown   int `json:"top_down"`
	BottomUp  int `json:"bottom_up"`
	Roots     int `json:"roots"`
	Recovered int `json:"recovered"`
}

// Total returns the number of pairs across all phases.
func (s Stats) Total() int {
	return s.TopDown + s.BottomUp + s.Roots + s.Recovered
}

// Phase identifies one matching phase.
type Phase string

// Matching phases, in execution order.
const (
	PhaseTopDown  Phase = "topdown"
	PhaseBottomUp Phase = "bottomup"
)

// PhaseRunner executes one phase: run performs it and returns the number of
// pairs it added. Runners may wrap run with timing or tracing; a non-nil error
// stops the match.
type PhaseRunner func(ctx context.Context, phase Phase, run func() (int, error)) error

// Match runs the configured phases on src and dst and returns the resulting
// mapping. The context is checked before each phase.
func Match(ctx context.Context, src, dst *tree.Tree, cfg Config) (*mapping.Store, Stats, error) {
	return MatchWith(ctx, src, dst, cfg, runPhase)
}

// MatchWith is Match with every phase executed through runner.
func MatchWith(ctx context.Context, src, dst *tree.Tree, cfg Config, runner PhaseRunner) (*mapping.Store, Stats, error) {
	var stats Stats

	err := cfg.Validate()
	if err != nil {
		return nil, stats, err
	}

	store := mapping.NewStore()

	err = runner(ctx, PhaseTopDown, func() (int, error) {
		added, phaseErr := TopDown(src, dst, store, cfg)
		stats.TopDown = added

		return added, phaseErr
	})
	if err != nil {
		return nil, stats, err
	}

	if cfg.Strategy == TopDownOnly {
		return store, stats, nil
	}

	err = runner(ctx, PhaseBottomUp, func() (int, error) {
		bottomUp, phaseErr := BottomUp(src, dst, store, cfg)
		stats.BottomUp = bottomUp.BottomUp
		stats.Roots = bottomUp.Roots
		stats.Recovered = bottomUp.Recovered

		return bottomUp.Total(), phaseErr
	})
	if err != nil {
		return nil, stats, err
	}

	return store, stats, nil
}

func runPhase(ctx context.Context, phase Phase, run func() (int, error)) error {
	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("before %s: %w", phase, err)
	}

	_, err = run()
	if err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}

	return nil
}
