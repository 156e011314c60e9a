// Package strategy turns bars into trading decisions and publishes them as Signal events.
package strategy

import (
	"barreplay/internal/market"
	"barreplay/internal/signal"
)

// Decider is a pluggable decision rule. Implementations must be safe for
// concurrent use: parallel replay calls Decide from several goroutines.
type Decider interface {
	Decide(bar market.Bar) signal.Decision
	Name() string
}

// DeciderFunc adapts a plain function to Decider.
type DeciderFunc func(market.Bar) signal.Decision

func (f DeciderFunc) Decide(bar market.Bar) signal.Decision { return f(bar) }

func (f DeciderFunc) Name() string { return "func" }

// HoldAll never trades.
type HoldAll struct{}

func (HoldAll) Decide(market.Bar) signal.Decision { return signal.Decision{Action: signal.Hold} }

func (HoldAll) Name() string { return "Hold" }

// Momentum buys a bar that closed sufficiently above its open and exits on one that closed as far below.
type Momentum struct {
	threshold float64
	fraction  float64
}

// NewMomentum builds a momentum rule; threshold is a relative open-to-close move.
func NewMomentum(threshold, fraction float64) *Momentum {
	if threshold <= 0 {
		threshold = 0.002
	}
	if fraction <= 0 {
		fraction = 0.95
	}
	return &Momentum{threshold: threshold, fraction: signal.Clamp(fraction)}
}

func (m *Momentum) Name() string { return "Momentum" }

func (m *Momentum) Decide(bar market.Bar) signal.Decision {
	if bar.Open <= 0 {
		return signal.Decision{Action: signal.Hold}
	}
	change := (bar.Close - bar.Open) / bar.Open
	switch {
	case change >= m.threshold:
		return signal.Decision{Action: signal.Buy, Fraction: m.fraction, ReferencePrice: bar.Close}
	case change <= -m.threshold:
		return signal.Decision{Action: signal.Sell, Fraction: 1, ReferencePrice: bar.Close}
	default:
		return signal.Decision{Action: signal.Hold}
	}
}

// Breakout positions the close inside the bar's high-low range: the top band buys, the bottom band sells.
type Breakout struct {
	band     float64
	fraction float64
}

// NewBreakout builds a range rule; band is the share of the range at each end, (0, 0.5].
func NewBreakout(band, fraction float64) *Breakout {
	if band <= 0 || band > 0.5 {
		band = 0.2
	}
	if fraction <= 0 {
		fraction = 0.5
	}
	return &Breakout{band: band, fraction: signal.Clamp(fraction)}
}

func (b *Breakout) Name() string { return "Breakout" }

func (b *Breakout) Decide(bar market.Bar) signal.Decision {
	span := bar.High - bar.Low
	if span <= 0 {
		return signal.Decision{Action: signal.Hold}
	}
	pos := (bar.Close - bar.Low) / span
	switch {
	case pos >= 1-b.band:
		return signal.Decision{Action: signal.Buy, Fraction: b.fraction, ReferencePrice: bar.Close}
	case pos <= b.band:
		return signal.Decision{Action: signal.Sell, Fraction: b.fraction, ReferencePrice: bar.Close}
	default:
		return signal.Decision{Action: signal.Hold}
	}
}

// Script replays fixed decisions keyed by bar timestamp; unknown bars hold.
// The map is read-only after construction.
type Script map[int64]signal.Decision

func (s Script) Name() string { return "Script" }

func (s Script) Decide(bar market.Bar) signal.Decision {
	if d, ok := s[bar.Key()]; ok {
		return d
	}
	return signal.Decision{Action: signal.Hold}
}
