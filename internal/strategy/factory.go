package strategy

import (
	"strings"
)

// Params expresses tunable knobs required by decider constructors.
type Params struct {
	Threshold float64
	Band      float64
	Fraction  float64
}

// Build returns a decider matching the configured mode.
func Build(mode string, params Params) Decider {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "momentum":
		return NewMomentum(params.Threshold, params.Fraction)
	case "breakout", "range_breakout":
		return NewBreakout(params.Band, params.Fraction)
	case "hold", "none":
		return HoldAll{}
	default:
		return NewMomentum(params.Threshold, params.Fraction)
	}
}

// Known reports whether Build recognises mode.
func Known(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "momentum", "breakout", "range_breakout", "hold", "none":
		return true
	}
	return false
}
