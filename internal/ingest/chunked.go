package ingest

import (
	"context"
	"errors"

	"barreplay/internal/market"
	"barreplay/internal/pool"
)

func (p *Pipeline) loadChunked(ctx context.Context, src *lineSource) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := pool.New(p.cfg.Workers, pool.WithLogger(p.log))
	defer workers.Shutdown(false)

	var (
		futures []*pool.Future
		records int
	)
	for seq := 0; ctx.Err() == nil; seq++ {
		c, ok := src.nextChunk(seq, p.cfg.ChunkBytes)
		if !ok {
			break
		}
		records += len(c.records)
		f, err := workers.Submit(func() (any, error) {
			return p.parseChunk(ctx, cancel, c)
		})
		if err != nil {
			return nil, &IngestionError{Op: "parse", Err: err}
		}
		futures = append(futures, f)
	}
	if err := src.err(); err != nil {
		cancel()
		drain(futures)
		return nil, &IngestionError{Op: "read", Err: err}
	}

	parts := make([]partial, len(futures))
	var failure *IngestionError
	var other error
	for i, f := range futures {
		v, err := f.Wait(context.Background())
		if err != nil {
			var ierr *IngestionError
			switch {
			case errors.As(err, &ierr):
				if failure == nil || ierr.Line < failure.Line {
					failure = ierr
				}
			case errors.Is(err, context.Canceled):
			default:
				if other == nil {
					other = err
				}
			}
			continue
		}
		parts[i] = *v.(*partial)
	}
	switch {
	case failure != nil:
		return nil, failure
	case other != nil:
		return nil, &IngestionError{Op: "parse", Err: other}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}

	total := 0
	for _, part := range parts {
		total += len(part.bars)
	}
	res := &Result{Bars: make([]market.Bar, 0, total), Records: records}
	for _, part := range parts {
		res.Bars = append(res.Bars, part.bars...)
	}
	mergeRejected(res, parts)
	return res, nil
}

// parseChunk runs on a pool worker and only touches its own buffer.
func (p *Pipeline) parseChunk(ctx context.Context, cancel context.CancelFunc, c chunk) (*partial, error) {
	part := &partial{bars: make([]market.Bar, 0, len(c.records))}
	for _, rec := range c.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.consume(part, rec, -1); err != nil {
			cancel()
			return nil, err
		}
	}
	return part, nil
}

func drain(futures []*pool.Future) {
	for _, f := range futures {
		<-f.Done()
	}
}
