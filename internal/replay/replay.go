// Package replay publishes one MarketData event per ingested bar.
//
// Sequential mode walks the bars in index order on the calling goroutine,
// so MarketData, Signal and ledger effects follow input order. Parallel
// mode lets several goroutines claim indices from a shared atomic cursor;
// every bar is published exactly once but delivery order is relaxed, and
// subscribers that mutate shared state must serialize themselves.
//
// Step, Next and Reset drive the bars by hand over a separate cursor that
// Run leaves untouched.
package replay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"barreplay/internal/bus"
	"barreplay/internal/market"
)

// Mode selects how bars are replayed.
type Mode struct {
	Workers int // 0 means sequential
}

// Sequential replays bars in order on the calling goroutine.
func Sequential() Mode { return Mode{} }

// Parallel replays bars on n goroutines with relaxed ordering.
func Parallel(n int) Mode {
	if n < 1 {
		n = 1
	}
	return Mode{Workers: n}
}

// IsParallel reports whether the mode uses worker goroutines.
func (m Mode) IsParallel() bool { return m.Workers > 0 }

func (m Mode) String() string {
	if m.IsParallel() {
		return fmt.Sprintf("parallel(%d)", m.Workers)
	}
	return "sequential"
}

// Stats summarizes a finished replay.
type Stats struct {
	Mode      Mode
	Published int
	Duration  time.Duration
}

// Replayer drives a read-only bar sequence into a dispatcher.
type Replayer struct {
	bars       []market.Bar
	dispatcher *bus.Dispatcher
	log        zerolog.Logger

	mu     sync.Mutex
	cursor int
}

// New builds a replayer. bars must not be modified while a replay runs.
func New(bars []market.Bar, dispatcher *bus.Dispatcher, log zerolog.Logger) *Replayer {
	return &Replayer{bars: bars, dispatcher: dispatcher, log: log}
}

// Run replays every bar once. The first handler fault stops further publishing and is returned.
func (r *Replayer) Run(ctx context.Context, mode Mode) (Stats, error) {
	start := time.Now()
	var (
		published int
		err       error
	)
	if mode.IsParallel() {
		published, err = r.runParallel(ctx, mode.Workers)
	} else {
		published, err = r.runSequential(ctx)
	}
	stats := Stats{Mode: mode, Published: published, Duration: time.Since(start)}

	if err != nil {
		r.log.Error().Err(err).Str("mode", mode.String()).Int("published", published).Msg("replay stopped")
		return stats, err
	}
	r.log.Info().Str("mode", mode.String()).Int("published", published).Dur("elapsed", stats.Duration).Msg("replay complete")
	return stats, nil
}

func (r *Replayer) runSequential(ctx context.Context) (int, error) {
	for i, bar := range r.bars {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := r.dispatcher.Publish(bus.NewMarketData(bar)); err != nil {
			return i + 1, fmt.Errorf("bar %d (%s): %w", i, bar.Ts.Format(time.RFC3339), err)
		}
	}
	return len(r.bars), nil
}

func (r *Replayer) runParallel(ctx context.Context, workers int) (int, error) {
	r.dispatcher.Seal()

	var (
		cursor    atomic.Int64
		published atomic.Int64
	)
	n := int64(len(r.bars))
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				i := cursor.Add(1) - 1
				if i >= n {
					return nil
				}
				bar := r.bars[i]
				published.Add(1)
				if err := r.dispatcher.Publish(bus.NewMarketData(bar)); err != nil {
					return fmt.Errorf("bar %d (%s): %w", i, bar.Ts.Format(time.RFC3339), err)
				}
			}
			return gctx.Err()
		})
	}
	err := g.Wait()
	return int(published.Load()), err
}

// Next returns the bar under the stepping cursor and advances it.
// ok is false once every bar has been handed out.
func (r *Replayer) Next() (bar market.Bar, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= len(r.bars) {
		return market.Bar{}, false
	}
	bar = r.bars[r.cursor]
	r.cursor++
	return bar, true
}

// Step publishes the next bar. It reports false with a nil error when no
// bars are left. A bar whose handlers fail is still consumed.
func (r *Replayer) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	bar, ok := r.Next()
	if !ok {
		r.log.Debug().Int("bars", len(r.bars)).Msg("no more market data")
		return false, nil
	}
	if err := r.dispatcher.Publish(bus.NewMarketData(bar)); err != nil {
		return true, fmt.Errorf("step %s: %w", bar.Ts.Format(time.RFC3339), err)
	}
	return true, nil
}

// Reset rewinds the stepping cursor to the first bar.
func (r *Replayer) Reset() {
	r.mu.Lock()
	r.cursor = 0
	r.mu.Unlock()
}
