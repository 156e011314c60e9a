package strategy

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"barreplay/internal/bus"
	"barreplay/internal/market"
	"barreplay/internal/risk"
	"barreplay/internal/signal"
)

func TestGeneratorEmitsOneSignalPerBar(t *testing.T) {
	d := bus.New(zerolog.Nop())
	decider := DeciderFunc(func(bar market.Bar) signal.Decision {
		return signal.Decision{Action: signal.Buy, Fraction: 1.5}
	})
	NewGenerator(decider, risk.Limits{MaxFraction: 0.8}, d, zerolog.Nop()).Attach()

	var got []signal.Signal
	d.Subscribe(bus.Signal, func(ev bus.Event) error {
		got = append(got, ev.Signal)
		return nil
	})

	bars := []market.Bar{{Close: 10}, {Close: 11}, {Close: 12}}
	for _, bar := range bars {
		require.NoError(t, d.Publish(bus.NewMarketData(bar)))
	}

	require.Len(t, got, 3)
	for i, sig := range got {
		require.Equal(t, bars[i], sig.Bar)
		require.Equal(t, signal.Buy, sig.Decision.Action)
		require.Equal(t, 0.8, sig.Decision.Fraction)
		require.Equal(t, bars[i].Close, sig.Decision.ReferencePrice)
	}
}

func TestGeneratorNormalizesUnknownAction(t *testing.T) {
	d := bus.New(zerolog.Nop())
	decider := DeciderFunc(func(market.Bar) signal.Decision {
		return signal.Decision{Action: signal.Action(7), Fraction: 0.3}
	})
	NewGenerator(decider, risk.Limits{}, d, zerolog.Nop()).Attach()

	var got signal.Decision
	d.Subscribe(bus.Signal, func(ev bus.Event) error {
		got = ev.Signal.Decision
		return nil
	})
	require.NoError(t, d.Publish(bus.NewMarketData(market.Bar{Close: 1})))
	require.Equal(t, signal.Decision{Action: signal.Hold}, got)
}

func TestGeneratorPropagatesLedgerFault(t *testing.T) {
	d := bus.New(zerolog.Nop())
	NewGenerator(HoldAll{}, risk.Limits{}, d, zerolog.Nop()).Attach()
	fault := errors.New("ledger fault")
	d.Subscribe(bus.Signal, func(bus.Event) error { return fault })

	err := d.Publish(bus.NewMarketData(market.Bar{Close: 1}))
	require.ErrorIs(t, err, fault)
}

func TestGeneratorCapsEntriesOnly(t *testing.T) {
	d := bus.New(zerolog.Nop())
	actions := []signal.Action{signal.Buy, signal.Sell}
	i := 0
	decider := DeciderFunc(func(market.Bar) signal.Decision {
		a := actions[i%2]
		i++
		return signal.Decision{Action: a, Fraction: 1}
	})
	NewGenerator(decider, risk.Limits{MaxFraction: 0.95}, d, zerolog.Nop()).Attach()

	var got []signal.Decision
	d.Subscribe(bus.Signal, func(ev bus.Event) error {
		got = append(got, ev.Signal.Decision)
		return nil
	})
	require.NoError(t, d.Publish(bus.NewMarketData(market.Bar{Close: 100})))
	require.NoError(t, d.Publish(bus.NewMarketData(market.Bar{Close: 90})))

	require.Len(t, got, 2)
	require.Equal(t, 0.95, got[0].Fraction)
	require.Equal(t, 1.0, got[1].Fraction)
}

func TestGeneratorReplacesNonFinitePrice(t *testing.T) {
	for _, price := range []float64{math.NaN(), math.Inf(1), -5} {
		d := bus.New(zerolog.Nop())
		decider := DeciderFunc(func(market.Bar) signal.Decision {
			return signal.Decision{Action: signal.Buy, Fraction: 0.5, ReferencePrice: price}
		})
		NewGenerator(decider, risk.Limits{}, d, zerolog.Nop()).Attach()

		var got signal.Decision
		d.Subscribe(bus.Signal, func(ev bus.Event) error {
			got = ev.Signal.Decision
			return nil
		})
		require.NoError(t, d.Publish(bus.NewMarketData(market.Bar{Close: 42})))
		require.Equal(t, 42.0, got.ReferencePrice, "decider price %v", price)
	}
}

func TestGeneratorRejectsTradeWithoutPrice(t *testing.T) {
	d := bus.New(zerolog.Nop())
	decider := DeciderFunc(func(market.Bar) signal.Decision {
		return signal.Decision{Action: signal.Sell, Fraction: 1, ReferencePrice: math.NaN()}
	})
	NewGenerator(decider, risk.Limits{}, d, zerolog.Nop()).Attach()
	published := 0
	d.Subscribe(bus.Signal, func(bus.Event) error {
		published++
		return nil
	})

	err := d.Publish(bus.NewMarketData(market.Bar{Close: math.Inf(1)}))
	require.ErrorIs(t, err, signal.ErrNoPrice)
	require.Zero(t, published)
}
