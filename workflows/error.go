package workflows

import (
	"fmt"
	"sort"
	"strings"
)

// ChainError reports the step at which a chain stopped, with the item being
// processed and the state accumulated up to that point.
type ChainError[TItem, TContext any] struct {
	StepIndex int
	Item      TItem
	State     TContext
	Err       error
}

func (e *ChainError[TItem, TContext]) Error() string {
	return fmt.Sprintf("chain failed at step %d: %v", e.StepIndex, e.Err)
}

func (e *ChainError[TItem, TContext]) Unwrap() error {
	return e.Err
}

// TaskError captures failure context for a single parallel task. Index is
// the item's position in the input slice.
type TaskError[TItem any] struct {
	Index int
	Item  TItem
	Err   error
}

// ParallelResult holds the outcome of ProcessParallel. Results and Errors are
// dense and in input order; Settlements interleaves both, also in input
// order. Items never started under fail-fast appear in none of them.
type ParallelResult[TItem, TResult any] struct {
	Results     []TResult
	Errors      []TaskError[TItem]
	Settlements []Settlement[TItem, TResult]
}

// ParallelError wraps the task failures that caused ProcessParallel to fail.
//
// Error message formats:
//   - Single failure: "parallel execution failed: item 5: connection refused"
//   - Multiple failures: "parallel execution failed: 3 items failed with 2 error types: 'timeout' (2 items), 'refused' (1 item)"
type ParallelError[TItem any] struct {
	Errors []TaskError[TItem]
}

func (e *ParallelError[TItem]) Error() string {
	if len(e.Errors) == 0 {
		return "parallel execution failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("parallel execution failed: item %d: %v",
			e.Errors[0].Index, e.Errors[0].Err,
		)
	}

	errorCounts := make(map[string]int)
	for _, taskErr := range e.Errors {
		errorCounts[taskErr.Err.Error()]++
	}

	type errorSummary struct {
		msg   string
		count int
	}
	var summaries []errorSummary
	for msg, count := range errorCounts {
		summaries = append(summaries, errorSummary{msg, count})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].count != summaries[j].count {
			return summaries[i].count > summaries[j].count
		}
		return summaries[i].msg < summaries[j].msg
	})

	var parts []string
	for _, s := range summaries {
		if s.count == 1 {
			parts = append(parts, fmt.Sprintf("'%s' (1 item)", s.msg))
		} else {
			parts = append(parts, fmt.Sprintf("'%s' (%d items)", s.msg, s.count))
		}
	}

	return fmt.Sprintf(
		"parallel execution failed: %d items failed with %d error types: %s",
		len(e.Errors), len(errorCounts), strings.Join(parts, ", "),
	)
}

// Unwrap exposes every task error to errors.Is and errors.As.
func (e *ParallelError[TItem]) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, taskErr := range e.Errors {
		errs[i] = taskErr.Err
	}
	return errs
}
