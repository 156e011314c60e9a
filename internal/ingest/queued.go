package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"barreplay/internal/market"
)

type slotted struct {
	index int
	rec   record
}

func (p *Pipeline) loadQueued(ctx context.Context, src *lineSource) (*Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan slotted, p.cfg.QueueCapacity)
	parts := make([]partial, p.cfg.Workers)
	records := 0

	// single producer; blocks while the queue is full
	g.Go(func() error {
		defer close(queue)
		for {
			rec, ok := src.next()
			if !ok {
				break
			}
			select {
			case queue <- slotted{index: records, rec: rec}:
				records++
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		if err := src.err(); err != nil {
			return &IngestionError{Op: "read", Err: err}
		}
		return nil
	})

	for w := 0; w < p.cfg.Workers; w++ {
		part := &parts[w]
		g.Go(func() error {
			for item := range queue {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := p.consume(part, item.rec, item.index); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// index-slotted placement; every worker has joined
	slots := make([]market.Bar, records)
	filled := make([]bool, records)
	for _, part := range parts {
		for i, idx := range part.slots {
			slots[idx] = part.bars[i]
			filled[idx] = true
		}
	}
	res := &Result{Bars: make([]market.Bar, 0, records), Records: records}
	for i, ok := range filled {
		if ok {
			res.Bars = append(res.Bars, slots[i])
		}
	}
	mergeRejected(res, parts)
	return res, nil
}
