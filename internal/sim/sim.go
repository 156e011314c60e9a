// Package sim wires ingestion, the dispatcher, the signal generator, and the paper ledger into one run.
package sim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"barreplay/internal/bus"
	"barreplay/internal/config"
	"barreplay/internal/execution"
	"barreplay/internal/ingest"
	"barreplay/internal/market"
	"barreplay/internal/paper"
	"barreplay/internal/replay"
	"barreplay/internal/risk"
	"barreplay/internal/strategy"
)

// ErrNoData is returned when the configuration names no data source.
var ErrNoData = errors.New("no data source configured")

// Outcome is everything a finished (or aborted) run produced.
type Outcome struct {
	RunID  string
	Ingest *ingest.Result
	Replay replay.Stats
	Ledger paper.Snapshot
	Fills  []execution.Fill
}

// Bars returns the ingested bars, or nil when ingestion did not complete.
func (o *Outcome) Bars() []market.Bar {
	if o == nil || o.Ingest == nil {
		return nil
	}
	return o.Ingest.Bars
}

type options struct {
	decider   strategy.Decider
	recorders []paper.FillRecorder
}

// Option customizes a run.
type Option func(*options)

// WithDecider replaces the configured decision rule.
func WithDecider(d strategy.Decider) Option {
	return func(o *options) { o.decider = d }
}

// WithRecorder adds a fill recorder next to the execution logger.
func WithRecorder(r paper.FillRecorder) Option {
	return func(o *options) { o.recorders = append(o.recorders, r) }
}

// ReplayMode converts the configured replay section to a replay.Mode.
func ReplayMode(cfg *config.Config) replay.Mode {
	if strings.EqualFold(cfg.Replay.Mode, config.ModeParallel) {
		return replay.Parallel(cfg.Replay.Workers)
	}
	return replay.Sequential()
}

// Run loads cfg.Data and replays it. An ingestion failure aborts before any
// event is published. A replay fault stops publishing; the returned Outcome
// then holds the ledger as it stood when the fault surfaced.
func Run(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Data == "" {
		return nil, ErrNoData
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	out := &Outcome{RunID: uuid.NewString()}
	log = log.With().Str("run", out.RunID).Logger()

	pipeline, err := ingest.NewPipeline(cfg.IngestConfig(), log)
	if err != nil {
		return nil, err
	}
	res, err := pipeline.Load(ctx, cfg.Data)
	if err != nil {
		return out, fmt.Errorf("ingest: %w", err)
	}
	out.Ingest = res

	dispatcher := bus.New(log)

	ledgerOpts := []paper.Option{paper.WithLogger(log), paper.WithRecorder(execution.NewExecutor(log))}
	for _, r := range o.recorders {
		ledgerOpts = append(ledgerOpts, paper.WithRecorder(r))
	}
	ledger := paper.NewLedger(cfg.Paper.StartingCash, ledgerOpts...)
	ledger.Attach(dispatcher)

	decider := o.decider
	if decider == nil {
		decider = strategy.Build(cfg.Strategy.Mode, cfg.StrategyParams())
	}
	strategy.NewGenerator(decider, risk.Limits{MaxFraction: cfg.Risk.MaxFraction}, dispatcher, log).Attach()
	dispatcher.Seal()

	mode := ReplayMode(cfg)
	out.Replay, err = replay.New(res.Bars, dispatcher, log).Run(ctx, mode)
	out.Ledger = ledger.Snapshot()
	out.Fills = ledger.Fills()
	if err != nil {
		return out, fmt.Errorf("replay: %w", err)
	}

	log.Info().
		Str("mode", mode.String()).
		Int("bars", len(res.Bars)).
		Float64("cash", out.Ledger.Cash).
		Float64("asset", out.Ledger.Asset).
		Str("state", out.Ledger.State.String()).
		Int("trades", out.Ledger.Trades).
		Msg("run complete")
	return out, nil
}
