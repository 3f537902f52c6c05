package workflows_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tailored-agentic-units/sentiment/config"
	"github.com/tailored-agentic-units/sentiment/workflows"
)

func settleAll() config.ParallelConfig {
	cfg := config.SettleAllParallelConfig()
	cfg.Observer = "noop"
	return cfg
}

func failFast() config.ParallelConfig {
	cfg := config.DefaultParallelConfig()
	cfg.Observer = "noop"
	return cfg
}

func TestProcessParallel_EmptyInput(t *testing.T) {
	processor := func(ctx context.Context, item string) (string, error) {
		return item, nil
	}

	result, err := workflows.ProcessParallel(context.Background(), failFast(), []string{}, processor, nil)
	if err != nil {
		t.Fatalf("Expected no error for empty input, got: %v", err)
	}
	if len(result.Results) != 0 || len(result.Errors) != 0 || len(result.Settlements) != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}

func TestProcessParallel_OrderPreservation(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}

	// later items finish first
	processor := func(ctx context.Context, n int) (string, error) {
		time.Sleep(time.Duration(n) * 5 * time.Millisecond)
		return fmt.Sprintf("item-%d", n), nil
	}

	result, err := workflows.ProcessParallel(context.Background(), failFast(), items, processor, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for i, n := range items {
		if want := fmt.Sprintf("item-%d", n); result.Results[i] != want {
			t.Errorf("Results[%d] = %q, want %q", i, result.Results[i], want)
		}
		if result.Settlements[i].Index != i {
			t.Errorf("Settlements[%d].Index = %d", i, result.Settlements[i].Index)
		}
	}
}

func TestProcessParallel_FailFast(t *testing.T) {
	cfg := failFast()
	cfg.MaxWorkers = 1
	items := []string{"ok", "bad", "never", "never"}

	var started atomic.Int32
	processor := func(ctx context.Context, item string) (string, error) {
		started.Add(1)
		if item == "bad" {
			return "", errors.New("boom")
		}
		return item, nil
	}

	result, err := workflows.ProcessParallel(context.Background(), cfg, items, processor, nil)

	var pErr *workflows.ParallelError[string]
	if !errors.As(err, &pErr) {
		t.Fatalf("Expected ParallelError, got: %v", err)
	}
	if len(pErr.Errors) != 1 || pErr.Errors[0].Index != 1 {
		t.Errorf("Expected single failure at index 1, got %+v", pErr.Errors)
	}
	if got := started.Load(); got != 2 {
		t.Errorf("Expected processing to stop after failure, %d items started", got)
	}
	if len(result.Results) != 1 {
		t.Errorf("Expected partial results to be kept, got %d", len(result.Results))
	}
}

func TestProcessParallel_SettleAll_PartialFailure(t *testing.T) {
	items := []string{"news", "social", "filings"}

	processor := func(ctx context.Context, item string) (string, error) {
		if item == "social" {
			return "", errors.New("upstream timeout")
		}
		return strings.ToUpper(item), nil
	}

	result, err := workflows.ProcessParallel(context.Background(), settleAll(), items, processor, nil)
	if err != nil {
		t.Fatalf("Partial failure should not fail the fan-out, got: %v", err)
	}

	if len(result.Results) != 2 || result.Results[0] != "NEWS" || result.Results[1] != "FILINGS" {
		t.Errorf("Results = %v, want [NEWS FILINGS]", result.Results)
	}
	if len(result.Errors) != 1 || result.Errors[0].Item != "social" {
		t.Errorf("Errors = %+v, want social failure", result.Errors)
	}
	if len(result.Settlements) != 3 || !result.Settlements[1].Failed() {
		t.Errorf("Settlements should record all three items with index 1 failed")
	}
}

func TestProcessParallel_SettleAll_AllFailures(t *testing.T) {
	processor := func(ctx context.Context, item string) (string, error) {
		return "", errors.New("refused")
	}

	result, err := workflows.ProcessParallel(context.Background(), settleAll(), []string{"a", "b"}, processor, nil)

	var pErr *workflows.ParallelError[string]
	if !errors.As(err, &pErr) {
		t.Fatalf("Expected ParallelError when every item fails, got: %v", err)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(result.Errors))
	}
}

func TestProcessParallel_SettleCallback(t *testing.T) {
	items := []int{1, 2, 3, 4}

	processor := func(ctx context.Context, n int) (int, error) {
		if n%2 == 0 {
			return 0, fmt.Errorf("even %d", n)
		}
		return n * 10, nil
	}

	var calls []int
	var failures int
	settle := func(completed, total int, s workflows.Settlement[int, int]) {
		calls = append(calls, completed)
		if total != len(items) {
			t.Errorf("total = %d, want %d", total, len(items))
		}
		if s.Failed() {
			failures++
		} else if s.Result != s.Item*10 {
			t.Errorf("settlement result %d does not match item %d", s.Result, s.Item)
		}
	}

	if _, err := workflows.ProcessParallel(context.Background(), settleAll(), items, processor, settle); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(calls) != len(items) {
		t.Fatalf("settle called %d times, want %d (failures included)", len(calls), len(items))
	}
	for i, completed := range calls {
		if completed != i+1 {
			t.Errorf("call %d reported completed=%d, want %d", i, completed, i+1)
		}
	}
	if failures != 2 {
		t.Errorf("failures observed = %d, want 2", failures)
	}
}

func TestProcessParallel_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	processor := func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			cancel()
		}
		<-ctx.Done()
		return 0, ctx.Err()
	}

	_, err := workflows.ProcessParallel(ctx, settleAll(), []int{0, 1, 2}, processor, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestProcessParallel_MaxWorkers(t *testing.T) {
	cfg := settleAll()
	cfg.MaxWorkers = 2

	var current, peak atomic.Int32
	processor := func(ctx context.Context, n int) (int, error) {
		c := current.Add(1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return n, nil
	}

	if _, err := workflows.ProcessParallel(context.Background(), cfg, make([]int, 10), processor, nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestParallelError_Messages(t *testing.T) {
	single := &workflows.ParallelError[string]{Errors: []workflows.TaskError[string]{
		{Index: 5, Item: "x", Err: errors.New("connection refused")},
	}}
	if got, want := single.Error(), "parallel execution failed: item 5: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	multiple := &workflows.ParallelError[string]{Errors: []workflows.TaskError[string]{
		{Index: 0, Err: errors.New("timeout")},
		{Index: 1, Err: errors.New("refused")},
		{Index: 2, Err: errors.New("timeout")},
	}}
	want := "parallel execution failed: 3 items failed with 2 error types: 'timeout' (2 items), 'refused' (1 item)"
	if got := multiple.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !errors.Is(&workflows.ParallelError[int]{Errors: []workflows.TaskError[int]{{Err: context.DeadlineExceeded}}}, context.DeadlineExceeded) {
		t.Error("ParallelError should unwrap to its task errors")
	}
}

func TestProcessParallel_InvalidObserver(t *testing.T) {
	cfg := settleAll()
	cfg.Observer = "nonexistent"

	processor := func(ctx context.Context, n int) (int, error) { return n, nil }
	if _, err := workflows.ProcessParallel(context.Background(), cfg, []int{1}, processor, nil); err == nil {
		t.Error("Expected error for unknown observer")
	}
}
