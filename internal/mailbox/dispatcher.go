// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package mailbox

import (
	"errors"
	"sync"

	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// ErrClosed is returned by calls on a closed Dispatcher.
var ErrClosed = errors.New("dispatcher closed")

type op int

const (
	opAdd op = iota
	opRemove
	opDispatch
	opCount
)

type request[T any] struct {
	op      op
	mailbox *stream.Queue[T]
	value   T
	reply   chan int
}

// Dispatcher broadcasts every dispatched value to all registered mailboxes.
//
// The registry is owned by a single goroutine; AddMailbox, RemoveMailbox and
// Dispatch are requests to it, applied in the order they are received and
// acknowledged before returning. Once RemoveMailbox returns, that mailbox
// gets nothing further. Delivery never blocks: mailboxes are unbounded.
type Dispatcher[T any] struct {
	name     string
	requests chan request[T]
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewDispatcher creates a dispatcher and starts its goroutine. Close must
// be called to stop it. name labels logs and metrics.
func NewDispatcher[T any](name string) *Dispatcher[T] {
	d := &Dispatcher[T]{
		name:     name,
		requests: make(chan request[T]),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Name returns the dispatcher's name.
func (d *Dispatcher[T]) Name() string {
	return d.name
}

// AddMailbox registers mb. Registering the same mailbox twice is a no-op.
func (d *Dispatcher[T]) AddMailbox(mb *stream.Queue[T]) error {
	_, err := d.call(request[T]{op: opAdd, mailbox: mb})
	return err
}

// RemoveMailbox deregisters mb. Removing an unknown mailbox is a no-op.
func (d *Dispatcher[T]) RemoveMailbox(mb *stream.Queue[T]) error {
	_, err := d.call(request[T]{op: opRemove, mailbox: mb})
	return err
}

// NewMailbox creates a mailbox and registers it.
func (d *Dispatcher[T]) NewMailbox() (*stream.Queue[T], error) {
	mb := stream.NewQueue[T]()
	if err := d.AddMailbox(mb); err != nil {
		mb.Discard()
		return nil, err
	}
	return mb, nil
}

// Dispatch delivers v to every registered mailbox and returns how many
// received it. Mailboxes found closed are dropped from the registry.
func (d *Dispatcher[T]) Dispatch(v T) (int, error) {
	return d.call(request[T]{op: opDispatch, value: v})
}

// Count returns the number of registered mailboxes.
func (d *Dispatcher[T]) Count() int {
	n, _ := d.call(request[T]{op: opCount})
	return n
}

// Close stops the dispatcher. Registered mailboxes are not closed; they
// belong to their listeners. Close is idempotent.
func (d *Dispatcher[T]) Close() {
	d.once.Do(func() { close(d.quit) })
	<-d.done
}

func (d *Dispatcher[T]) call(req request[T]) (int, error) {
	req.reply = make(chan int, 1)
	select {
	case d.requests <- req:
	case <-d.quit:
		return 0, ErrClosed
	}
	// An accepted request is always answered.
	return <-req.reply, nil
}

func (d *Dispatcher[T]) run() {
	defer close(d.done)

	registry := make(map[*stream.Queue[T]]struct{})
	order := make([]*stream.Queue[T], 0, 4)

	remove := func(mb *stream.Queue[T]) {
		if _, ok := registry[mb]; !ok {
			return
		}
		delete(registry, mb)
		for i, m := range order {
			if m == mb {
				order = append(order[:i], order[i+1:]...)
				break
			}
		}
	}

	for {
		// Shutdown takes priority over pending requests.
		select {
		case <-d.quit:
			metrics.SetMailboxCount(d.name, 0)
			logging.Debug().Str("dispatcher", d.name).Int("mailboxes", len(order)).Msg("Dispatcher stopped")
			return
		default:
		}

		select {
		case <-d.quit:
			metrics.SetMailboxCount(d.name, 0)
			logging.Debug().Str("dispatcher", d.name).Int("mailboxes", len(order)).Msg("Dispatcher stopped")
			return

		case req := <-d.requests:
			switch req.op {
			case opAdd:
				if _, ok := registry[req.mailbox]; !ok && req.mailbox != nil {
					registry[req.mailbox] = struct{}{}
					order = append(order, req.mailbox)
				}
				metrics.SetMailboxCount(d.name, len(order))
				req.reply <- len(order)

			case opRemove:
				remove(req.mailbox)
				metrics.SetMailboxCount(d.name, len(order))
				req.reply <- len(order)

			case opDispatch:
				delivered, dropped := 0, 0
				for _, mb := range append([]*stream.Queue[T](nil), order...) {
					if mb.Send(req.value) {
						delivered++
						continue
					}
					dropped++
					remove(mb)
				}
				if dropped > 0 {
					metrics.SetMailboxCount(d.name, len(order))
					logging.Debug().Str("dispatcher", d.name).Int("dropped", dropped).Msg("Pruned closed mailboxes")
				}
				metrics.RecordMailboxDispatch(d.name, delivered, dropped)
				req.reply <- delivered

			case opCount:
				req.reply <- len(order)
			}
		}
	}
}
