package feed

import "context"

// EventKind identifies what a coordinator event reports.
type EventKind int

const (
	// EventRefreshStarted fires when a worker picks a feed up.
	EventRefreshStarted EventKind = iota
	// EventRefreshFinished fires on success, including 304 refreshes
	// (zero new, zero updated).
	EventRefreshFinished
	// EventRefreshFailed fires when a refresh ends in a feed-scoped error.
	EventRefreshFailed
	// EventRefreshCancelled fires when a refresh was aborted.
	EventRefreshCancelled
	// EventBatchProgress reports completed/total for the current batch.
	EventBatchProgress
	// EventFeedRemoved fires after an unsubscribe completed.
	EventFeedRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventRefreshStarted:
		return "refresh started"
	case EventRefreshFinished:
		return "refresh finished"
	case EventRefreshFailed:
		return "refresh failed"
	case EventRefreshCancelled:
		return "refresh cancelled"
	case EventBatchProgress:
		return "progress"
	case EventFeedRemoved:
		return "feed removed"
	default:
		return "unknown"
	}
}

// Event is one message from the coordinator to the presentation layer.
type Event struct {
	Kind      EventKind
	FeedID    string
	FeedTitle string

	// Refresh counters, set on EventRefreshFinished.
	New     int
	Updated int

	// Error details, set on EventRefreshFailed.
	ErrKind ErrorKind
	Err     string

	// Batch counters, set on EventBatchProgress.
	Completed int
	Total     int
}

// Events is a bounded, ordered, single-producer event channel. The
// coordinator emits into it; the presentation layer polls it without
// blocking its own loop. When the buffer is full the emitter blocks,
// so events are delayed under back-pressure, never dropped.
type Events struct {
	ch chan Event
}

func newEvents(size int) *Events {
	if size < 1 {
		size = 1
	}
	return &Events{ch: make(chan Event, size)}
}

// emit blocks until the event is buffered or ctx is done.
func (e *Events) emit(ctx context.Context, ev Event) {
	select {
	case e.ch <- ev:
	case <-ctx.Done():
	}
}

// TryNext returns the next pending event without blocking. The second
// return is false when the buffer is empty.
func (e *Events) TryNext() (Event, bool) {
	select {
	case ev := <-e.ch:
		return ev, true
	default:
		return Event{}, false
	}
}

// Len reports how many events are currently buffered.
func (e *Events) Len() int {
	return len(e.ch)
}
