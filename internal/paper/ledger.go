// Package paper simulates a single-asset portfolio driven by Signal events.
package paper

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"barreplay/internal/bus"
	"barreplay/internal/execution"
	"barreplay/internal/signal"
)

// DefaultStartingCash is the bankroll used when none is configured.
const DefaultStartingCash = 1000.0

const epsilon = 1e-9

var (
	// ErrInvariant reports a transition that would leave cash or asset negative.
	ErrInvariant = errors.New("ledger invariant violated")
	// ErrNoPrice reports a trade signal without a finite, positive reference price.
	ErrNoPrice = signal.ErrNoPrice
)

// FillRecorder captures applied fills.
type FillRecorder interface {
	Record(execution.Fill)
}

// State is the position state of the ledger.
type State int

const (
	Flat State = iota
	Long
)

func (s State) String() string {
	if s == Long {
		return "Long"
	}
	return "Flat"
}

// Ledger is the cash/asset state machine. One instance exists per run and
// every transition happens under its mutex, so signals may arrive from
// several replay goroutines.
type Ledger struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	asset        float64
	state        State
	mark         float64
	markKey      int64
	marked       bool
	seq          int
	journal      *Journal
	recorders    []FillRecorder
	log          zerolog.Logger
}

// Snapshot is a consistent read-only view of the ledger.
type Snapshot struct {
	StartingCash float64
	Cash         float64
	Asset        float64
	State        State
	Mark         float64 // close of the handled bar with the latest timestamp
	Equity       float64 // cash plus asset valued at Mark
	Trades       int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRecorder adds a recorder notified of every fill.
func WithRecorder(r FillRecorder) Option {
	return func(l *Ledger) {
		if r != nil {
			l.recorders = append(l.recorders, r)
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// NewLedger starts a Flat ledger holding startingCash; a negative amount is treated as zero.
func NewLedger(startingCash float64, opts ...Option) *Ledger {
	if startingCash < 0 {
		startingCash = 0
	}
	l := &Ledger{
		startingCash: startingCash,
		cash:         startingCash,
		journal:      NewJournal(64),
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Attach subscribes the ledger to Signal events.
func (l *Ledger) Attach(d *bus.Dispatcher) {
	d.Subscribe(bus.Signal, func(ev bus.Event) error { return l.OnSignal(ev.Signal) })
	l.log.Info().Float64("cash", l.startingCash).Msg("ledger subscribed")
}

// OnSignal applies one signal.
//
//	Buy  while Flat: spend cash*fraction at the reference price, go Long.
//	Sell while Long: sell asset*fraction at the reference price, Flat once nothing is left.
//	Everything else, including zero fractions, leaves the ledger untouched.
func (l *Ledger) OnSignal(sig signal.Signal) error {
	d := sig.Decision
	fraction := signal.Clamp(d.Fraction)

	l.mu.Lock()
	defer l.mu.Unlock()

	// parallel replay delivers bars out of order; keep the mark at the latest bar
	if signal.ValidPrice(sig.Bar.Close) && (!l.marked || sig.Bar.Key() >= l.markKey) {
		l.mark, l.markKey, l.marked = sig.Bar.Close, sig.Bar.Key(), true
	}

	switch {
	case d.Action == signal.Buy && l.state == Flat && fraction > 0:
		if !signal.ValidPrice(d.ReferencePrice) {
			return fmt.Errorf("buy at %s: %w", sig.Bar.Ts, ErrNoPrice)
		}
		spend := l.cash * fraction
		units := spend / d.ReferencePrice
		return l.apply(sig, execution.Buy, units, d.ReferencePrice, l.cash-spend, l.asset+units, Long)

	case d.Action == signal.Sell && l.state == Long && fraction > 0:
		if !signal.ValidPrice(d.ReferencePrice) {
			return fmt.Errorf("sell at %s: %w", sig.Bar.Ts, ErrNoPrice)
		}
		units := l.asset * fraction
		asset := l.asset - units
		next := Long
		if fraction >= 1 || asset < epsilon {
			units, asset, next = l.asset, 0, Flat
		}
		return l.apply(sig, execution.Sell, units, d.ReferencePrice, l.cash+units*d.ReferencePrice, asset, next)
	}
	return nil
}

// apply commits a transition after checking the balance invariant. Callers hold mu.
func (l *Ledger) apply(sig signal.Signal, side execution.Side, units, price, cash, asset float64, next State) error {
	if cash > -epsilon && cash < 0 {
		cash = 0
	}
	if asset > -epsilon && asset < 0 {
		asset = 0
	}
	if !finiteNonNegative(cash) || !finiteNonNegative(asset) {
		return fmt.Errorf("%s at %s: cash=%.8f asset=%.8f: %w", side, sig.Bar.Ts, cash, asset, ErrInvariant)
	}

	l.cash, l.asset, l.state = cash, asset, next
	l.seq++
	fill := execution.Fill{
		Seq:   l.seq,
		Ts:    sig.Bar.Ts,
		Side:  side,
		Units: units,
		Price: price,
		Cash:  cash,
		Asset: asset,
	}
	l.journal.Record(fill)
	for _, r := range l.recorders {
		r.Record(fill)
	}
	l.log.Debug().Str("side", string(side)).Float64("cash", cash).Float64("asset", asset).Str("state", next.String()).Msg("ledger transition")
	return nil
}

func finiteNonNegative(v float64) bool { return v >= 0 && !math.IsInf(v, 0) }

// Snapshot returns the current balances marked at the close of the latest bar seen.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		StartingCash: l.startingCash,
		Cash:         l.cash,
		Asset:        l.asset,
		State:        l.state,
		Mark:         l.mark,
		Equity:       l.cash + l.asset*l.mark,
		Trades:       l.seq,
	}
}

// Fills returns a copy of the applied fills in application order.
func (l *Ledger) Fills() []execution.Fill { return l.journal.Snapshot() }
