package strategy

import (
	"fmt"

	"github.com/rs/zerolog"

	"barreplay/internal/bus"
	"barreplay/internal/metrics"
	"barreplay/internal/risk"
	"barreplay/internal/signal"
)

// Generator reacts to MarketData events and publishes exactly one Signal per bar.
// It holds no mutable state of its own.
type Generator struct {
	decider    Decider
	limits     risk.Limits
	dispatcher *bus.Dispatcher
	log        zerolog.Logger
}

// NewGenerator wires a decider to the dispatcher.
func NewGenerator(decider Decider, limits risk.Limits, dispatcher *bus.Dispatcher, log zerolog.Logger) *Generator {
	if decider == nil {
		decider = HoldAll{}
	}
	return &Generator{decider: decider, limits: limits, dispatcher: dispatcher, log: log}
}

// Attach subscribes the generator to MarketData events.
func (g *Generator) Attach() {
	g.dispatcher.Subscribe(bus.MarketData, g.OnMarketData)
	g.log.Info().Str("decider", g.decider.Name()).Msg("signal generator subscribed")
}

// OnMarketData decides on the bar, normalizes the decision, and publishes it.
// A non-zero trade left without a valid price fails with signal.ErrNoPrice.
func (g *Generator) OnMarketData(ev bus.Event) error {
	d := g.normalize(ev.Bar.Close, g.decider.Decide(ev.Bar))
	if d.Action != signal.Hold && d.Fraction > 0 && !signal.ValidPrice(d.ReferencePrice) {
		return fmt.Errorf("%s %s at %s: %w", g.decider.Name(), d.Action, ev.Bar.Ts, signal.ErrNoPrice)
	}
	metrics.SignalsTotal.WithLabelValues(d.Action.String()).Inc()
	return g.dispatcher.Publish(bus.NewSignal(signal.Signal{Bar: ev.Bar, Decision: d}))
}

func (g *Generator) normalize(price float64, d signal.Decision) signal.Decision {
	switch d.Action {
	case signal.Buy, signal.Sell:
		// the cap sizes entries only; exits may always close the position
		if d.Action == signal.Buy {
			d.Fraction = g.limits.Clamp(d.Fraction)
		} else {
			d.Fraction = signal.Clamp(d.Fraction)
		}
		if !signal.ValidPrice(d.ReferencePrice) {
			d.ReferencePrice = price
		}
	default:
		d = signal.Decision{Action: signal.Hold}
	}
	return d
}
