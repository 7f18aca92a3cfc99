package feed

import (
	"context"
	"testing"
	"time"
)

func TestEvents_TryNextEmpty(t *testing.T) {
	ev := newEvents(4)
	if _, ok := ev.TryNext(); ok {
		t.Error("TryNext on an empty buffer must not block or return an event")
	}
}

func TestEvents_FIFO(t *testing.T) {
	ev := newEvents(8)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev.emit(ctx, Event{Kind: EventBatchProgress, Completed: i})
	}
	if ev.Len() != 5 {
		t.Fatalf("expected 5 buffered events, got %d", ev.Len())
	}

	for i := 0; i < 5; i++ {
		got, ok := ev.TryNext()
		if !ok {
			t.Fatalf("event %d missing", i)
		}
		if got.Completed != i {
			t.Errorf("expected event %d, got %d", i, got.Completed)
		}
	}
}

func TestEvents_FullBufferBlocksInsteadOfDropping(t *testing.T) {
	ev := newEvents(1)
	ctx := context.Background()

	ev.emit(ctx, Event{FeedID: "first"})

	delivered := make(chan struct{})
	go func() {
		ev.emit(ctx, Event{FeedID: "second"})
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("emit into a full buffer must block")
	case <-time.After(50 * time.Millisecond):
	}

	got, ok := ev.TryNext()
	if !ok || got.FeedID != "first" {
		t.Fatalf("expected first event, got %+v ok=%v", got, ok)
	}

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("blocked emit did not complete after space freed up")
	}

	got, ok = ev.TryNext()
	if !ok || got.FeedID != "second" {
		t.Errorf("expected second event, got %+v ok=%v", got, ok)
	}
}

func TestEvents_EmitUnblocksOnCancel(t *testing.T) {
	ev := newEvents(1)
	ev.emit(context.Background(), Event{FeedID: "filler"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ev.emit(ctx, Event{FeedID: "stuck"})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit did not give up on cancelled context")
	}
}
