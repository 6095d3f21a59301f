// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package stream

import (
	"context"
	"sync"
)

// State is a single-slot, replayable broadcast value.
//
// Subscribers immediately receive the current value (if one has been set) and
// then the latest value after every Set. Delivery is conflating: a subscriber
// that falls behind skips intermediate values and sees only the newest one.
// Set never blocks on subscribers.
type State[T any] struct {
	mu      sync.RWMutex
	value   T
	set     bool
	version uint64
	subs    map[*subscriber[T]]struct{}
}

type subscriber[T any] struct {
	wake chan struct{}
}

// NewState creates a State with no value.
func NewState[T any]() *State[T] {
	return &State[T]{subs: make(map[*subscriber[T]]struct{})}
}

// NewStateOf creates a State holding an initial value.
func NewStateOf[T any](initial T) *State[T] {
	s := NewState[T]()
	s.value = initial
	s.set = true
	return s
}

// Set replaces the current value and wakes every subscriber.
func (s *State[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.set = true
	s.version++
	for sub := range s.subs {
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

// Value returns the current value and whether one has been set.
func (s *State[T]) Value() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.set
}

// Subscribe returns a channel that replays the current value and then
// follows updates until ctx is done, at which point the channel is closed.
func (s *State[T]) Subscribe(ctx context.Context) <-chan T {
	out := make(chan T)
	sub := &subscriber[T]{wake: make(chan struct{}, 1)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	if s.set {
		sub.wake <- struct{}{}
	}
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
		}()

		var lastSent uint64
		sentAny := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.wake:
			}

			s.mu.RLock()
			v, version := s.value, s.version
			s.mu.RUnlock()
			if sentAny && version == lastSent {
				continue
			}

			select {
			case out <- v:
				lastSent = version
				sentAny = true
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Subscribers returns the number of active subscriptions.
func (s *State[T]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
