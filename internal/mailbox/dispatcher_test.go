// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package mailbox

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

type event struct {
	Kind   string
	Clicks int
}

func receive(t *testing.T, mb *stream.Queue[event]) event {
	t.Helper()
	select {
	case ev := <-mb.Out():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return event{}
}

func assertEmpty(t *testing.T, mb *stream.Queue[event]) {
	t.Helper()
	select {
	case ev := <-mb.Out():
		t.Errorf("unexpected delivery %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDispatcher_Broadcast(t *testing.T) {
	tests := []struct {
		name      string
		mailboxes int
		remove    int
	}{
		{"single mailbox", 1, 0},
		{"five mailboxes", 5, 0},
		{"five mailboxes one removed", 5, 1},
		{"all removed", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher[event]("test")
			defer d.Close()

			var mailboxes []*stream.Queue[event]
			for i := 0; i < tt.mailboxes; i++ {
				mb, err := d.NewMailbox()
				if err != nil {
					t.Fatalf("NewMailbox() error = %v", err)
				}
				defer mb.Discard()
				mailboxes = append(mailboxes, mb)
			}
			for i := 0; i < tt.remove; i++ {
				if err := d.RemoveMailbox(mailboxes[i]); err != nil {
					t.Fatalf("RemoveMailbox() error = %v", err)
				}
			}

			sent := event{Kind: "knob_turn", Clicks: 2}
			delivered, err := d.Dispatch(sent)
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if want := tt.mailboxes - tt.remove; delivered != want {
				t.Errorf("delivered = %d, want %d", delivered, want)
			}

			for i, mb := range mailboxes {
				if i < tt.remove {
					assertEmpty(t, mb)
					continue
				}
				if got := receive(t, mb); got != sent {
					t.Errorf("mailbox %d got %+v, want %+v", i, got, sent)
				}
				assertEmpty(t, mb)
			}
		})
	}
}

func TestDispatcher_FIFOPerMailbox(t *testing.T) {
	d := NewDispatcher[event]("fifo")
	defer d.Close()

	mb, err := d.NewMailbox()
	if err != nil {
		t.Fatalf("NewMailbox() error = %v", err)
	}
	defer mb.Discard()

	for i := 0; i < 100; i++ {
		if _, err := d.Dispatch(event{Kind: "tick", Clicks: i}); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}
	for i := 0; i < 100; i++ {
		if got := receive(t, mb); got.Clicks != i {
			t.Fatalf("expected clicks %d, got %d", i, got.Clicks)
		}
	}
}

func TestDispatcher_SlowMailboxDoesNotBlockOthers(t *testing.T) {
	d := NewDispatcher[event]("slow")
	defer d.Close()

	slow, _ := d.NewMailbox()
	defer slow.Discard()
	fast, _ := d.NewMailbox()
	defer fast.Discard()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			_, _ = d.Dispatch(event{Kind: "frame", Clicks: i})
		}
		close(done)
	}()

	for i := 0; i < 1000; i++ {
		receive(t, fast)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on the slow mailbox")
	}
	if slow.Len() != 1000 {
		t.Errorf("expected slow mailbox to buffer 1000 events, got %d", slow.Len())
	}
}

func TestDispatcher_DuplicateAndUnknown(t *testing.T) {
	d := NewDispatcher[event]("dup")
	defer d.Close()

	mb := stream.NewQueue[event]()
	defer mb.Discard()

	_ = d.AddMailbox(mb)
	_ = d.AddMailbox(mb)
	if d.Count() != 1 {
		t.Errorf("expected duplicate registration to be ignored, count = %d", d.Count())
	}

	other := stream.NewQueue[event]()
	defer other.Discard()
	if err := d.RemoveMailbox(other); err != nil {
		t.Errorf("removing an unknown mailbox should be a no-op, got %v", err)
	}
	if d.Count() != 1 {
		t.Errorf("count = %d, want 1", d.Count())
	}
}

func TestDispatcher_PrunesClosedMailboxes(t *testing.T) {
	d := NewDispatcher[event]("prune")
	defer d.Close()

	open, _ := d.NewMailbox()
	defer open.Discard()
	closed, _ := d.NewMailbox()
	closed.Discard()

	delivered, err := d.Dispatch(event{Kind: "press"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if d.Count() != 1 {
		t.Errorf("expected closed mailbox to be pruned, count = %d", d.Count())
	}
}

func TestDispatcher_ConcurrentRegistration(t *testing.T) {
	d := NewDispatcher[event]("race")
	defer d.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = d.Dispatch(event{Kind: "next_track"})
			}
		}
	}()

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				mb, err := d.NewMailbox()
				if err != nil {
					return
				}
				_ = d.RemoveMailbox(mb)
				// nothing may arrive after removal was acknowledged
				n := mb.Len()
				time.Sleep(time.Microsecond)
				if mb.Len() != n {
					t.Errorf("delivery after RemoveMailbox returned")
				}
				mb.Discard()
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()

	if d.Count() != 0 {
		t.Errorf("expected empty registry, count = %d", d.Count())
	}
}

func TestDispatcher_Closed(t *testing.T) {
	d := NewDispatcher[event]("closed")
	d.Close()
	d.Close()

	if _, err := d.Dispatch(event{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch: expected ErrClosed, got %v", err)
	}
	if _, err := d.NewMailbox(); !errors.Is(err, ErrClosed) {
		t.Errorf("NewMailbox: expected ErrClosed, got %v", err)
	}
	if err := d.RemoveMailbox(stream.NewQueue[event]()); !errors.Is(err, ErrClosed) {
		t.Errorf("RemoveMailbox: expected ErrClosed, got %v", err)
	}
}
