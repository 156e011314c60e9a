// Package risk caps how much of a balance a single signal may move.
package risk

import "barreplay/internal/signal"

// Limits caps entry sizing. Exits are never capped.
type Limits struct {
	MaxFraction float64
}

// Clamp bounds a requested fraction to [0, MaxFraction]. A zero MaxFraction means no cap below 1.
func (l Limits) Clamp(fraction float64) float64 {
	fraction = signal.Clamp(fraction)
	if l.MaxFraction > 0 && fraction > l.MaxFraction {
		return l.MaxFraction
	}
	return fraction
}
