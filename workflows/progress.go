package workflows

// ProgressFunc is called after each successful chain step with the number of
// steps completed so far, the total, and the current state.
type ProgressFunc[TContext any] func(
	completed int,
	total int,
	state TContext,
)

// Settlement is the outcome of one parallel item. Exactly one of Result and
// Err is meaningful.
type Settlement[TItem, TResult any] struct {
	Index  int
	Item   TItem
	Result TResult
	Err    error
}

func (s Settlement[TItem, TResult]) Failed() bool {
	return s.Err != nil
}

// SettleFunc is called once per settled item, successes and failures alike,
// in completion order. Calls are serialized, so implementations need no
// locking of their own.
type SettleFunc[TItem, TResult any] func(
	completed int,
	total int,
	settlement Settlement[TItem, TResult],
)
