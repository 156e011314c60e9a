// Package execution describes fills applied by the paper ledger and reports them.
package execution

import (
	"time"

	"github.com/rs/zerolog"

	"barreplay/internal/metrics"
)

// Side enumerates fill directions.
type Side string

const (
	// Buy opens or adds to the long position.
	Buy Side = "BUY"
	// Sell reduces or closes the long position.
	Sell Side = "SELL"
)

// Fill is one applied ledger transition.
type Fill struct {
	Seq   int
	Ts    time.Time
	Side  Side
	Units float64
	Price float64
	Cash  float64 // cash balance after the fill
	Asset float64 // asset units after the fill
}

// Notional is the cash value moved by the fill.
func (f Fill) Notional() float64 { return f.Units * f.Price }

// Executor reports fills through a zerolog logger.
type Executor struct{ log zerolog.Logger }

// NewExecutor wraps a zerolog logger for fill reporting.
func NewExecutor(log zerolog.Logger) *Executor { return &Executor{log: log} }

// Record logs the fill and counts it.
func (executor *Executor) Record(fill Fill) {
	metrics.FillsTotal.WithLabelValues(string(fill.Side)).Inc()
	executor.log.Info().
		Int("seq", fill.Seq).
		Time("ts", fill.Ts).
		Str("side", string(fill.Side)).
		Float64("units", fill.Units).
		Float64("px", fill.Price).
		Float64("cash", fill.Cash).
		Float64("asset", fill.Asset).
		Msg("paper fill")
}
