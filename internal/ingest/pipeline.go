// Package ingest turns a delimited bar source into an ordered bar sequence using parallel parser workers.
//
// Two distribution policies exist. Chunked groups whole lines into chunks
// that run on the task pool, each parsing into a private buffer; the
// buffers are concatenated by chunk sequence once every future resolves.
// Queued streams records through a bounded channel (the producer blocks
// when it is full) to parser goroutines that keep private (index, bar)
// buffers, placed into index slots after all workers join. Both keep input
// order without sorting, and no worker appends to shared storage.
package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"barreplay/internal/market"
	"barreplay/internal/metrics"
)

// Result is the outcome of a completed load.
type Result struct {
	Bars     []market.Bar
	Records  int
	Skipped  int
	Rejected []Rejection
	Duration time.Duration
}

// Pipeline loads bar sources according to its Config.
type Pipeline struct {
	cfg     Config
	log     zerolog.Logger
	observe func(line int)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers a callback invoked by the worker that parsed each record.
func WithObserver(fn func(line int)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

// NewPipeline validates cfg after applying defaults.
func NewPipeline(cfg Config, log zerolog.Logger, opts ...Option) (*Pipeline, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Load opens path and ingests it.
func (p *Pipeline) Load(ctx context.Context, path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &IngestionError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	res, err := p.LoadReader(ctx, file)
	if err != nil {
		var ierr *IngestionError
		if errors.As(err, &ierr) && ierr.Path == "" {
			ierr.Path = path
		}
		return nil, err
	}
	return res, nil
}

// LoadReader ingests a source whose first line is a header.
func (p *Pipeline) LoadReader(ctx context.Context, r io.Reader) (*Result, error) {
	start := time.Now()
	src := newLineSource(r)

	var (
		res *Result
		err error
	)
	if !src.skipHeader() {
		if err := src.err(); err != nil {
			return nil, &IngestionError{Op: "read", Err: err}
		}
		res = &Result{}
	} else if p.cfg.Policy == Queued {
		res, err = p.loadQueued(ctx, src)
	} else {
		res, err = p.loadChunked(ctx, src)
	}
	if err != nil {
		p.log.Error().Err(err).Str("policy", string(p.cfg.Policy)).Msg("ingest failed")
		return nil, err
	}

	res.Duration = time.Since(start)
	metrics.BarsIngested.Add(float64(len(res.Bars)))
	p.log.Info().
		Str("policy", string(p.cfg.Policy)).
		Str("on_error", string(p.cfg.OnError)).
		Int("workers", p.cfg.Workers).
		Int("records", res.Records).
		Int("bars", len(res.Bars)).
		Int("skipped", res.Skipped).
		Dur("elapsed", res.Duration).
		Msg("ingest complete")
	return res, nil
}

// partial is a worker-private accumulation buffer.
type partial struct {
	bars     []market.Bar
	slots    []int // input index per bar; queued policy only
	skipped  int
	rejected []Rejection
}

// consume parses rec into part, applying the error policy.
// Under FailFast a malformed record yields an *IngestionError.
func (p *Pipeline) consume(part *partial, rec record, slot int) error {
	bar, err := market.ParseRecord(rec.text)
	if p.observe != nil {
		p.observe(rec.line)
	}
	if err == nil {
		part.bars = append(part.bars, bar)
		if slot >= 0 {
			part.slots = append(part.slots, slot)
		}
		return nil
	}

	metrics.RecordsRejected.WithLabelValues(reasonOf(err)).Inc()
	if p.cfg.OnError == FailFast {
		return parseFailure(rec.line, err)
	}
	p.log.Debug().Int("line", rec.line).Err(err).Msg("record skipped")
	part.skipped++
	if len(part.rejected) < maxRejected {
		part.rejected = append(part.rejected, Rejection{Line: rec.line, Reason: reasonOf(err), Err: err})
	}
	return nil
}

// mergeRejected folds worker rejections into res, keeping the earliest lines.
func mergeRejected(res *Result, parts []partial) {
	for _, part := range parts {
		res.Skipped += part.skipped
		res.Rejected = append(res.Rejected, part.rejected...)
	}
	sort.Slice(res.Rejected, func(i, j int) bool { return res.Rejected[i].Line < res.Rejected[j].Line })
	if len(res.Rejected) > maxRejected {
		res.Rejected = res.Rejected[:maxRejected]
	}
}
