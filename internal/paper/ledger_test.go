package paper

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"barreplay/internal/bus"
	"barreplay/internal/execution"
	"barreplay/internal/market"
	"barreplay/internal/signal"
)

func sig(action signal.Action, fraction, price float64) signal.Signal {
	return signal.Signal{
		Bar:      market.Bar{Ts: time.UnixMilli(0), Close: price},
		Decision: signal.Decision{Action: action, Fraction: fraction, ReferencePrice: price},
	}
}

func TestBuyThenSellTrace(t *testing.T) {
	ledger := NewLedger(1000)

	require.NoError(t, ledger.OnSignal(sig(signal.Buy, 0.95, 100)))
	snap := ledger.Snapshot()
	require.InDelta(t, 50, snap.Cash, 1e-9)
	require.InDelta(t, 9.5, snap.Asset, 1e-9)
	require.Equal(t, Long, snap.State)

	require.NoError(t, ledger.OnSignal(sig(signal.Hold, 0, 110)))
	require.Equal(t, Long, ledger.Snapshot().State)
	require.InDelta(t, 50+9.5*110, ledger.Snapshot().Equity, 1e-9)

	require.NoError(t, ledger.OnSignal(sig(signal.Sell, 1, 90)))
	snap = ledger.Snapshot()
	require.InDelta(t, 905, snap.Cash, 1e-9)
	require.Zero(t, snap.Asset)
	require.Equal(t, Flat, snap.State)
	require.Equal(t, 2, snap.Trades)

	fills := ledger.Fills()
	require.Len(t, fills, 2)
	require.Equal(t, execution.Buy, fills[0].Side)
	require.Equal(t, execution.Sell, fills[1].Side)
	require.InDelta(t, 855, fills[1].Notional(), 1e-9)
}

func TestBuyWhileLongIsNoop(t *testing.T) {
	ledger := NewLedger(1000)
	require.NoError(t, ledger.OnSignal(sig(signal.Buy, 0.5, 10)))
	before := ledger.Snapshot()

	require.NoError(t, ledger.OnSignal(sig(signal.Buy, 1, 10)))
	after := ledger.Snapshot()
	require.Equal(t, before.Cash, after.Cash)
	require.Equal(t, before.Asset, after.Asset)
	require.Equal(t, before.State, after.State)
	require.Equal(t, before.Trades, after.Trades)
}

func TestSellWhileFlatIsNoop(t *testing.T) {
	ledger := NewLedger(1000)
	require.NoError(t, ledger.OnSignal(sig(signal.Sell, 1, 10)))
	snap := ledger.Snapshot()
	require.Equal(t, 1000.0, snap.Cash)
	require.Zero(t, snap.Asset)
	require.Equal(t, Flat, snap.State)
	require.Zero(t, snap.Trades)
}

func TestPartialSellStaysLong(t *testing.T) {
	ledger := NewLedger(1000)
	require.NoError(t, ledger.OnSignal(sig(signal.Buy, 1, 100)))
	require.NoError(t, ledger.OnSignal(sig(signal.Sell, 0.5, 120)))

	snap := ledger.Snapshot()
	require.Equal(t, Long, snap.State)
	require.InDelta(t, 5, snap.Asset, 1e-9)
	require.InDelta(t, 600, snap.Cash, 1e-9)
}

func TestFractionReclamped(t *testing.T) {
	ledger := NewLedger(1000)
	require.NoError(t, ledger.OnSignal(sig(signal.Buy, 4, 100)))
	snap := ledger.Snapshot()
	require.Zero(t, snap.Cash)
	require.InDelta(t, 10, snap.Asset, 1e-9)

	require.NoError(t, ledger.OnSignal(sig(signal.Sell, -1, 100)))
	require.Equal(t, Long, ledger.Snapshot().State)
}

func TestTradeWithoutPrice(t *testing.T) {
	ledger := NewLedger(1000)
	err := ledger.OnSignal(signal.Signal{Decision: signal.Decision{Action: signal.Buy, Fraction: 0.5}})
	require.ErrorIs(t, err, ErrNoPrice)
	require.Equal(t, 1000.0, ledger.Snapshot().Cash)
}

func TestNonFinitePriceRejected(t *testing.T) {
	for _, price := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		ledger := NewLedger(1000)
		buy := signal.Signal{
			Bar:      market.Bar{Ts: time.UnixMilli(0), Close: 100},
			Decision: signal.Decision{Action: signal.Buy, Fraction: 0.5, ReferencePrice: price},
		}
		require.ErrorIs(t, ledger.OnSignal(buy), ErrNoPrice, "buy at %v", price)
		snap := ledger.Snapshot()
		require.Equal(t, 1000.0, snap.Cash)
		require.Zero(t, snap.Asset)
		require.Equal(t, Flat, snap.State)

		require.NoError(t, ledger.OnSignal(sig(signal.Buy, 0.5, 100)))
		sell := buy
		sell.Decision.Action = signal.Sell
		sell.Decision.Fraction = 1
		require.ErrorIs(t, ledger.OnSignal(sell), ErrNoPrice, "sell at %v", price)
		snap = ledger.Snapshot()
		require.InDelta(t, 500, snap.Cash, 1e-9)
		require.InDelta(t, 5, snap.Asset, 1e-9)
		require.Equal(t, Long, snap.State)
		require.False(t, math.IsNaN(snap.Equity))
	}
}

func TestMarkFollowsLatestBar(t *testing.T) {
	ledger := NewLedger(1000)
	late := signal.Signal{Bar: market.Bar{Ts: time.UnixMilli(2000), Close: 120}}
	early := signal.Signal{Bar: market.Bar{Ts: time.UnixMilli(1000), Close: 80}}

	require.NoError(t, ledger.OnSignal(sig(signal.Buy, 1, 100)))
	require.NoError(t, ledger.OnSignal(late))
	require.NoError(t, ledger.OnSignal(early))

	snap := ledger.Snapshot()
	require.Equal(t, 120.0, snap.Mark)
	require.InDelta(t, 10*120, snap.Equity, 1e-9)
}

func TestInvariantUnderRandomSignals(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ledger := NewLedger(DefaultStartingCash)
	actions := []signal.Action{signal.Hold, signal.Buy, signal.Sell}

	for i := 0; i < 5000; i++ {
		s := sig(actions[rng.Intn(len(actions))], rng.Float64()*1.4-0.2, 1+rng.Float64()*200)
		prev := ledger.Snapshot()
		require.NoError(t, ledger.OnSignal(s))
		snap := ledger.Snapshot()
		require.GreaterOrEqual(t, snap.Cash, 0.0)
		require.GreaterOrEqual(t, snap.Asset, 0.0)
		if s.Decision.Action == signal.Buy && prev.State == Long {
			require.Equal(t, prev.Cash, snap.Cash)
			require.Equal(t, prev.Asset, snap.Asset)
			require.Equal(t, Long, snap.State)
		}
		if snap.State == Flat {
			require.Zero(t, snap.Asset)
		}
	}
}

func TestConcurrentSignalsSerialized(t *testing.T) {
	journal := NewJournal(0)
	ledger := NewLedger(1000, WithRecorder(journal))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				action := signal.Buy
				if (i+w)%2 == 1 {
					action = signal.Sell
				}
				_ = ledger.OnSignal(sig(action, 0.5, 10))
			}
		}(w)
	}
	wg.Wait()

	snap := ledger.Snapshot()
	require.GreaterOrEqual(t, snap.Cash, 0.0)
	require.GreaterOrEqual(t, snap.Asset, 0.0)
	require.Len(t, journal.Snapshot(), snap.Trades)

	fills := journal.Snapshot()
	for i, f := range fills {
		require.Equal(t, i+1, f.Seq)
	}
	// fills alternate strictly: every Buy opens from Flat, every Sell follows a Buy or partial Sell
	for i := 1; i < len(fills); i++ {
		if fills[i].Side == execution.Buy {
			require.Equal(t, execution.Sell, fills[i-1].Side)
			require.Zero(t, fills[i-1].Asset)
		}
	}
}

func TestAttachHandlesSignalEvents(t *testing.T) {
	d := bus.New(zerolog.Nop())
	ledger := NewLedger(500)
	ledger.Attach(d)

	require.NoError(t, d.Publish(bus.NewSignal(sig(signal.Buy, 0.5, 50))))
	require.Equal(t, Long, ledger.Snapshot().State)

	err := d.Publish(bus.NewSignal(signal.Signal{Decision: signal.Decision{Action: signal.Sell, Fraction: 1}}))
	var derr *bus.DispatchError
	require.True(t, errors.As(err, &derr))
	require.ErrorIs(t, err, ErrNoPrice)
}
