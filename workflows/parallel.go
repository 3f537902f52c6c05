package workflows

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/tailored-agentic-units/sentiment/config"
	"github.com/tailored-agentic-units/sentiment/observability"
)

const parallelSource = "workflows.ProcessParallel"

// TaskProcessor processes a single item independently of its siblings.
type TaskProcessor[TItem, TResult any] func(
	ctx context.Context,
	item TItem,
) (TResult, error)

type indexedItem[TItem any] struct {
	index int
	item  TItem
}

// ProcessParallel fans items out to a worker pool and fans the outcomes back
// in, preserving input order in the returned result.
//
// Worker count is MaxWorkers when set, otherwise min(NumCPU*2, WorkerCap,
// len(items)).
//
// With FailFast the first failure cancels the remaining work and is returned
// as a *ParallelError. Without it every item settles; an error is returned
// only when every item failed, and individual failures are left in
// result.Errors for the caller to inspect.
//
// settle, when non-nil, observes every settlement including failures. It is
// invoked from a single goroutine in completion order.
func ProcessParallel[TItem, TResult any](
	ctx context.Context,
	cfg config.ParallelConfig,
	items []TItem,
	processor TaskProcessor[TItem, TResult],
	settle SettleFunc[TItem, TResult],
) (ParallelResult[TItem, TResult], error) {
	observer, err := observability.ResolveObserver(cfg.Observer)
	if err != nil {
		return ParallelResult[TItem, TResult]{}, fmt.Errorf("failed to resolve observer: %w", err)
	}

	workerCount := 0
	if len(items) > 0 {
		workerCount = calculateWorkerCount(cfg.MaxWorkers, cfg.WorkerCap, len(items))
	}

	observability.Emit(ctx, observer, EventParallelStart, observability.LevelInfo, parallelSource, map[string]any{
		"item_count":   len(items),
		"worker_count": workerCount,
		"fail_fast":    cfg.FailFast(),
		"has_settle":   settle != nil,
	})

	if len(items) == 0 {
		result := ParallelResult[TItem, TResult]{
			Results:     []TResult{},
			Errors:      []TaskError[TItem]{},
			Settlements: []Settlement[TItem, TResult]{},
		}
		complete(ctx, observer, result, false)
		return result, nil
	}

	workQueue := make(chan indexedItem[TItem], len(items))
	settled := make(chan Settlement[TItem, TResult], len(items))
	done := make(chan struct{})

	var result ParallelResult[TItem, TResult]
	go func() {
		defer close(done)
		result = collect(settled, len(items), settle)
	}()

	workCtx := ctx
	cancel := context.CancelFunc(func() {})
	if cfg.FailFast() {
		workCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	var wg sync.WaitGroup
	for i := range workerCount {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processWorker(workCtx, workerID, workQueue, settled, processor, len(items), observer, cfg.FailFast(), cancel)
		}(i)
	}

	for i, item := range items {
		workQueue <- indexedItem[TItem]{index: i, item: item}
	}
	close(workQueue)

	wg.Wait()
	close(settled)
	<-done

	if ctx.Err() != nil {
		complete(ctx, observer, result, true)
		return result, fmt.Errorf("parallel execution cancelled: %w", ctx.Err())
	}

	if len(result.Errors) > 0 && (cfg.FailFast() || len(result.Results) == 0) {
		complete(ctx, observer, result, true)
		return result, &ParallelError[TItem]{Errors: result.Errors}
	}

	complete(ctx, observer, result, false)
	return result, nil
}

func complete[TItem, TResult any](ctx context.Context, observer observability.Observer, result ParallelResult[TItem, TResult], failed bool) {
	level := observability.LevelInfo
	if failed {
		level = observability.LevelWarning
	}
	observability.Emit(ctx, observer, EventParallelComplete, level, parallelSource, map[string]any{
		"items_processed": len(result.Results),
		"items_failed":    len(result.Errors),
		"error":           failed,
	})
}

func calculateWorkerCount(maxWorkers, workerCap, itemCount int) int {
	if maxWorkers > 0 {
		return maxWorkers
	}

	workers := min(min(runtime.NumCPU()*2, workerCap), itemCount)
	if workers <= 0 {
		workers = 1
	}
	return workers
}

func processWorker[TItem, TResult any](
	ctx context.Context,
	workerID int,
	workQueue <-chan indexedItem[TItem],
	settled chan<- Settlement[TItem, TResult],
	processor TaskProcessor[TItem, TResult],
	total int,
	observer observability.Observer,
	failFast bool,
	cancel context.CancelFunc,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-workQueue:
			if !ok {
				return
			}

			observability.Emit(ctx, observer, EventWorkerStart, observability.LevelVerbose, parallelSource, map[string]any{
				"worker_id":   workerID,
				"item_index":  work.index,
				"total_items": total,
			})

			value, err := processor(ctx, work.item)

			observability.Emit(ctx, observer, EventWorkerComplete, observability.LevelVerbose, parallelSource, map[string]any{
				"worker_id":   workerID,
				"item_index":  work.index,
				"total_items": total,
				"error":       err != nil,
			})

			outcome := Settlement[TItem, TResult]{Index: work.index, Item: work.item, Err: err}
			if err == nil {
				outcome.Result = value
			}
			settled <- outcome

			if err != nil && failFast {
				cancel()
				return
			}
		}
	}
}

// collect drains settlements, reports each to settle, and rebuilds input
// order once the channel closes.
func collect[TItem, TResult any](
	settled <-chan Settlement[TItem, TResult],
	itemCount int,
	settle SettleFunc[TItem, TResult],
) ParallelResult[TItem, TResult] {
	byIndex := make([]*Settlement[TItem, TResult], itemCount)
	completed := 0

	for outcome := range settled {
		completed++
		byIndex[outcome.Index] = &outcome
		if settle != nil {
			settle(completed, itemCount, outcome)
		}
	}

	result := ParallelResult[TItem, TResult]{
		Results:     make([]TResult, 0, completed),
		Errors:      make([]TaskError[TItem], 0),
		Settlements: make([]Settlement[TItem, TResult], 0, completed),
	}

	for _, outcome := range byIndex {
		if outcome == nil {
			continue
		}
		result.Settlements = append(result.Settlements, *outcome)
		if outcome.Err != nil {
			result.Errors = append(result.Errors, TaskError[TItem]{
				Index: outcome.Index,
				Item:  outcome.Item,
				Err:   outcome.Err,
			})
		} else {
			result.Results = append(result.Results, outcome.Result)
		}
	}

	return result
}
