package workflows

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/sentiment/config"
	"github.com/tailored-agentic-units/sentiment/observability"
)

const chainSource = "workflows.ProcessChain"

// StepProcessor folds one item into the accumulated state.
type StepProcessor[TItem, TContext any] func(
	ctx context.Context,
	item TItem,
	state TContext,
) (TContext, error)

type ChainResult[TContext any] struct {
	// Final is the state after the last completed step.
	Final TContext

	// Steps is the number of steps successfully completed.
	Steps int
}

// ProcessChain runs processor over items strictly in order, threading state
// from one step to the next. Context cancellation is checked before every
// step, so no step starts once ctx is done. The first failure stops the
// chain and is returned as a *ChainError; result.Final then holds the state
// from before the failing step.
func ProcessChain[TItem, TContext any](
	ctx context.Context,
	cfg config.ChainConfig,
	items []TItem,
	initial TContext,
	processor StepProcessor[TItem, TContext],
	progress ProgressFunc[TContext],
) (ChainResult[TContext], error) {
	observer, err := observability.ResolveObserver(cfg.Observer)
	if err != nil {
		return ChainResult[TContext]{}, fmt.Errorf("failed to resolve observer: %w", err)
	}

	observability.Emit(ctx, observer, EventChainStart, observability.LevelInfo, chainSource, map[string]any{
		"item_count":            len(items),
		"has_progress_callback": progress != nil,
	})

	result := ChainResult[TContext]{Final: initial}
	state := initial

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			observability.Emit(ctx, observer, EventChainComplete, observability.LevelWarning, chainSource, map[string]any{
				"steps_completed": i,
				"error":           true,
				"error_type":      "cancellation",
			})
			return result, &ChainError[TItem, TContext]{
				StepIndex: i,
				Item:      item,
				State:     state,
				Err:       fmt.Errorf("processing cancelled: %w", err),
			}
		}

		observability.Emit(ctx, observer, EventStepStart, observability.LevelVerbose, chainSource, map[string]any{
			"step_index":  i,
			"total_steps": len(items),
		})

		updated, err := processor(ctx, item, state)

		observability.Emit(ctx, observer, EventStepComplete, observability.LevelVerbose, chainSource, map[string]any{
			"step_index":  i,
			"total_steps": len(items),
			"error":       err != nil,
		})

		if err != nil {
			observability.Emit(ctx, observer, EventChainComplete, observability.LevelWarning, chainSource, map[string]any{
				"steps_completed": i,
				"error":           true,
				"error_type":      "processor",
			})
			return result, &ChainError[TItem, TContext]{
				StepIndex: i,
				Item:      item,
				State:     state,
				Err:       err,
			}
		}

		state = updated
		result.Final = state
		result.Steps = i + 1

		if progress != nil {
			progress(i+1, len(items), state)
		}
	}

	observability.Emit(ctx, observer, EventChainComplete, observability.LevelInfo, chainSource, map[string]any{
		"steps_completed": len(items),
		"error":           false,
	})

	return result, nil
}
