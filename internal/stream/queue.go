// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package stream

import (
	"sync"
)

// Queue is an unbounded FIFO channel. Send never blocks, so a slow consumer
// can never stall the producer; values are delivered on Out in send order.
//
// A Queue owns one forwarding goroutine for its whole life. Close must be
// called to release it.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
	out    chan T
	done   chan struct{}
}

// NewQueue creates an empty queue and starts its forwarding goroutine.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}
	go q.forward()
	return q
}

// Send appends v to the queue. It returns false if the queue is closed.
func (q *Queue[T]) Send(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Out returns the receive side of the queue. It is closed after Close once
// every value sent before Close has been received.
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Len returns the number of values waiting to be received.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new values. Buffered values are still delivered.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Discard closes the queue and drops anything still buffered.
// Use it when nobody will read Out again, e.g. a listener that was shut down.
func (q *Queue[T]) Discard() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *Queue[T]) forward() {
	defer close(q.done)
	defer close(q.out)

	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.signal
			continue
		}
		next := q.items[0]
		q.mu.Unlock()

		// The head stays in items until it is received, so Len counts it and
		// Discard can drop it.
		for delivered := false; !delivered; {
			select {
			case q.out <- next:
				delivered = true
				q.mu.Lock()
				if len(q.items) > 0 {
					var zero T
					q.items[0] = zero
					q.items = q.items[1:]
				}
				q.mu.Unlock()
			case <-q.signal:
				q.mu.Lock()
				dropped := len(q.items) == 0
				q.mu.Unlock()
				if dropped {
					delivered = true
				}
			}
		}
	}
}
