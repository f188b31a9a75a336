package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// DefaultBatchSize is the per-request row cap of the backing store.
const DefaultBatchSize = 1000

// maxInflightBatches bounds concurrent range requests.
const maxInflightBatches = 8

// FetchAll reads every row matching filter in batches of batchSize. Batches
// run concurrently and are concatenated in order. The first failing batch
// fails the whole fetch; no partial result is returned.
func FetchAll(ctx context.Context, src domain.EventSource, filter domain.EventFilter, batchSize int) ([]domain.Event, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	total, err := src.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query: fetch all: count: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	batches := int((total + int64(batchSize) - 1) / int64(batchSize))
	results := make([][]domain.Event, batches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflightBatches)
	for i := 0; i < batches; i++ {
		start := i * batchSize
		end := start + batchSize - 1
		g.Go(func() error {
			rows, err := src.FetchRange(gctx, filter, start, end)
			if err != nil {
				return fmt.Errorf("query: fetch all: rows %d-%d: %w", start, end, err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Event, 0, total)
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}
