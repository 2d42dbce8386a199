package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Jamessukanto/rag-multimodal/internal/logging"
)

// BatchProcessor schedules bulk embedding work. It offers two strategies:
// fixed-size sequential batches, or a bounded concurrent pool over single
// items. Both compose with the rate-limited Client — the limiter remains
// the true throughput bottleneck, the processor only shapes dispatch.
type BatchProcessor struct {
	// BatchSize is the number of items per sequential batch.
	// Defaults to 10 if zero.
	BatchSize int

	// MaxConcurrent bounds the worker pool for concurrent processing.
	// Defaults to 5 if zero.
	MaxConcurrent int
}

// ProcessInBatches processes items in fixed-size sequential batches,
// calling fn once per batch. Results are returned in input order. The
// first batch error aborts the run.
func (p *BatchProcessor) ProcessInBatches(ctx context.Context, items []Item, fn func(context.Context, []Item) ([]Result, error)) ([]Result, error) {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	log := logging.FromContext(ctx)
	totalBatches := (len(items) + batchSize - 1) / batchSize

	all := make([]Result, 0, len(items))
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}

		results, err := fn(ctx, items[i:end])
		if err != nil {
			return nil, fmt.Errorf("embedding: batch %d/%d failed: %w", i/batchSize+1, totalBatches, err)
		}
		all = append(all, results...)

		log.Debug("processed embedding batch",
			slog.Int("batch", i/batchSize+1),
			slog.Int("total", totalBatches),
		)
	}

	return all, nil
}

// ProcessConcurrent processes every item through fn on a bounded worker
// pool. Results are returned in input order regardless of completion
// order. The first error cancels the remaining work and is returned.
func (p *BatchProcessor) ProcessConcurrent(ctx context.Context, items []Item, fn func(context.Context, Item) (Result, error)) ([]Result, error) {
	maxConcurrent := p.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, maxConcurrent)
	results := make([]Result, len(items))

	for i, item := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			// A worker failure cancels the context; its error takes
			// precedence over the cancellation it caused.
			mu.Lock()
			err := firstErr
			mu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("embedding: concurrent processing failed: %w", err)
			}
			return nil, fmt.Errorf("embedding: concurrent processing cancelled: %w", ctx.Err())
		}

		wg.Add(1)
		go func(idx int, it Item) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := fn(ctx, it)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			results[idx] = result
		}(i, item)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("embedding: concurrent processing failed: %w", firstErr)
	}
	return results, nil
}
