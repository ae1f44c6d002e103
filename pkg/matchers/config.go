// Package matchers computes the node correspondence between two trees: an
// exact top-down phase that maps the largest isomorphic subtrees, followed by
// a heuristic bottom-up phase that links containers sharing enough mapped
// descendants.
package matchers

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selects which phases Match runs.
type Strategy int

const (
	// TopDownThenBottomUp runs the exact phase followed by the heuristic phase.
	TopDownThenBottomUp Strategy = iota
	// TopDownOnly stops after the exact phase.
	TopDownOnly
)

// Strategy names used by configuration files and flags.
const (
	StrategyNameTopDownBottomUp = "topdown-bottomup"
	StrategyNameTopDown         = "topdown"
)

// Default matcher settings.
const (
	DefaultSimilarityThreshold = 0.5
	DefaultMinHeight           = 1
	DefaultRecoveryMaxSize     = 1000
	DefaultWorkers             = 1
)

// Sentinel errors for configuration validation.
var (
	ErrInvalidConfig   = errors.New("invalid matcher configuration")
	ErrUnknownStrategy = errors.New("unknown matcher strategy")
)

// Config holds the matcher settings. It is passed explicitly to Match; there
// is no process-wide default registry.
type Config struct {
	// SimilarityThreshold is the Dice score a bottom-up candidate must exceed.
	SimilarityThreshold float64
	// MinHeight excludes shorter subtrees from top-down matching.
	MinHeight int
	// RecoveryMaxSize bounds the subtrees on which recovery runs after a
	// bottom-up match. Zero disables recovery.
	RecoveryMaxSize int
	// Workers is the number of goroutines verifying top-down buckets.
	Workers int
	// Strategy selects the phases to run.
	Strategy Strategy
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		MinHeight:           DefaultMinHeight,
		RecoveryMaxSize:     DefaultRecoveryMaxSize,
		Workers:             DefaultWorkers,
		Strategy:            TopDownThenBottomUp,
	}
}

// Validate checks the ranges of every setting.
func (c Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold %v not in [0,1]", ErrInvalidConfig, c.SimilarityThreshold)
	}

	if c.MinHeight < 1 {
		return fmt.Errorf("%w: min height %d must be at least 1", ErrInvalidConfig, c.MinHeight)
	}

	if c.RecoveryMaxSize < 0 {
		return fmt.Errorf("%w: recovery max size %d must not be negative", ErrInvalidConfig, c.RecoveryMaxSize)
	}

	if c.Workers < 1 {
		return fmt.Errorf("%w: workers %d must be positive", ErrInvalidConfig, c.Workers)
	}

	if c.Strategy != TopDownThenBottomUp && c.Strategy != TopDownOnly {
		return fmt.Errorf("%w: %d", ErrUnknownStrategy, c.Strategy)
	}

	return nil
}

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case TopDownThenBottomUp:
		return StrategyNameTopDownBottomUp
	case TopDownOnly:
		return StrategyNameTopDown
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy converts a configuration name into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyNameTopDownBottomUp, "":
		return TopDownThenBottomUp, nil
	case StrategyNameTopDown:
		return TopDownOnly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
