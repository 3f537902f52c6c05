package hub

import (
	"context"
	"sync/atomic"
)

// MessageChannel is a buffered channel bound to an owning context. Sends and
// receives abort when the caller's context is done, the owner's context is
// done, or the channel is closed.
type MessageChannel[T any] struct {
	channel chan T
	context context.Context
	cancel  context.CancelFunc
	closed  atomic.Int32
}

func NewMessageChannel[T any](ctx context.Context, bufferSize int) *MessageChannel[T] {
	channelCtx, cancel := context.WithCancel(ctx)
	return &MessageChannel[T]{
		channel: make(chan T, bufferSize),
		context: channelCtx,
		cancel:  cancel,
	}
}

func (mc *MessageChannel[T]) Send(ctx context.Context, message T) error {
	if mc.IsClosed() {
		return ErrHubClosed
	}
	select {
	case mc.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mc.context.Done():
		return ErrHubClosed
	}
}

func (mc *MessageChannel[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case message := <-mc.channel:
		return message, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-mc.context.Done():
		return zero, ErrHubClosed
	}
}

// Close cancels the channel's context. The underlying channel is never
// closed, so a racing Send cannot panic.
func (mc *MessageChannel[T]) Close() {
	if mc.closed.CompareAndSwap(0, 1) {
		mc.cancel()
	}
}

func (mc *MessageChannel[T]) IsClosed() bool {
	return mc.closed.Load() == 1
}
