package feed

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmlarsen/skim/internal/config"
	"github.com/jmlarsen/skim/internal/debuglog"
	"github.com/jmlarsen/skim/internal/storage"
	"github.com/jmlarsen/skim/internal/validation"
)

// RefreshReason records why a refresh was requested.
type RefreshReason int

const (
	ReasonManual RefreshReason = iota
	ReasonScheduled
)

// Phase is a feed's position in the refresh state machine. A feed is in
// at most one non-idle phase at a time; further requests for it are
// coalesced until it returns to idle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseQueued
	PhaseFetching
	PhaseNormalizing
	PhaseMerging
)

// OutcomeStatus is the terminal result of one refresh attempt.
type OutcomeStatus int

const (
	OutcomeSuccess OutcomeStatus = iota
	OutcomeNotModified
	OutcomeFailure
	OutcomeCancelled
)

// Outcome is produced by exactly one worker and consumed by the
// coordinator, which turns it into an event.
type Outcome struct {
	FeedID string
	Status OutcomeStatus
	Stats  storage.MergeStats
	Err    error

	feed     *storage.Feed
	articles []*storage.Article
}

// Indexer receives merged articles for secondary indexing (full-text
// search). Calls happen on the coordinator goroutine after a merge
// committed, never inside the store transaction.
type Indexer interface {
	IndexArticles(feed *storage.Feed, articles []*storage.Article)
	RemoveFeed(feedID string)
}

type requestKind int

const (
	reqRefreshFeed requestKind = iota
	reqRefreshAll
	reqUnsubscribe
)

type coordRequest struct {
	kind   requestKind
	feedID string
	reason RefreshReason
	reply  chan error
}

// workerReport is either a phase change (outcome nil) or a terminal
// outcome. Workers report; only the coordinator mutates task state.
type workerReport struct {
	feedID  string
	phase   Phase
	outcome *Outcome
}

type taskState struct {
	phase   Phase
	cancel  context.CancelFunc
	removal chan error // set when an unsubscribe waits for this task
}

type queuedRefresh struct {
	feedID string
	reason RefreshReason
}

// Coordinator owns the refresh pipeline: it accepts refresh requests,
// fans work out across a bounded worker pool, tracks every feed's
// phase, and serializes outcomes into the event channel.
//
// The feed-state map lives on the run loop goroutine and is mutated
// only there; workers communicate exclusively through reports.
type Coordinator struct {
	store      *storage.Store
	fetcher    *Fetcher
	normalizer *Normalizer
	events     *Events
	cfg        *config.Config
	policy     storage.DeletePolicy
	indexer    Indexer
	validator  *validation.FeedURLValidator

	requests chan coordRequest
	reports  chan workerReport

	ctx     context.Context
	cancel  context.CancelFunc
	loop    sync.WaitGroup
	workers sync.WaitGroup
}

func NewCoordinator(store *storage.Store, cfg *config.Config) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:      store,
		fetcher:    NewFetcher(cfg),
		normalizer: NewNormalizer(),
		events:     newEvents(cfg.Refresh.EventBufferSize),
		cfg:        cfg,
		policy:     storage.DeletePolicy(cfg.Database.DeletePolicy),
		validator:  validation.NewFeedURLValidator(),
		requests:   make(chan coordRequest),
		reports:    make(chan workerReport),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetIndexer registers a secondary index. Must be called before Start.
func (c *Coordinator) SetIndexer(ix Indexer) {
	c.indexer = ix
}

// SetForceRefresh makes fetches ignore ETag/Last-Modified caching.
func (c *Coordinator) SetForceRefresh(force bool) {
	c.fetcher.SetIgnoreCache(force)
}

// SetPermissiveValidation relaxes URL validation for development setups
// (localhost feeds, private addresses).
func (c *Coordinator) SetPermissiveValidation(permissive bool) {
	if permissive {
		c.validator = validation.NewPermissiveFeedURLValidator()
	} else {
		c.validator = validation.NewFeedURLValidator()
	}
}

// Events returns the channel the presentation layer drains.
func (c *Coordinator) Events() *Events {
	return c.events
}

// Start launches the run loop. The scheduled ticker enqueues due feeds
// at the configured cadence.
func (c *Coordinator) Start() {
	c.loop.Add(1)
	go c.run()
}

// Stop cancels all in-flight refreshes and waits for the pipeline to
// drain. Pending queue entries are discarded.
func (c *Coordinator) Stop() {
	c.cancel()
	c.loop.Wait()
}

// Subscribe validates the URL, creates the feed, and schedules its
// first refresh. The articles arrive asynchronously via events.
func (c *Coordinator) Subscribe(url string) (*storage.Feed, error) {
	normalized, err := c.validator.ValidateAndNormalize(url)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}

	id := FeedID(normalized)
	if _, err := c.store.GetFeed(id); err == nil {
		return nil, fmt.Errorf("already subscribed to %s", normalized)
	} else if !errors.Is(err, storage.ErrFeedNotFound) {
		return nil, fmt.Errorf("looking up feed: %w", err)
	}

	now := time.Now()
	f := &storage.Feed{
		ID:      id,
		URL:     normalized,
		Enabled: true,
		AddedAt: now,
	}
	if err := c.store.SaveFeed(f); err != nil {
		return nil, fmt.Errorf("saving feed: %w", err)
	}

	c.RefreshFeed(id, ReasonManual)
	return f, nil
}

// RefreshFeed requests a refresh for one feed. Requests for a feed that
// is already queued or running are coalesced.
func (c *Coordinator) RefreshFeed(feedID string, reason RefreshReason) {
	select {
	case c.requests <- coordRequest{kind: reqRefreshFeed, feedID: feedID, reason: reason}:
	case <-c.ctx.Done():
	}
}

// RefreshAll enqueues every enabled feed in subscription order.
func (c *Coordinator) RefreshAll(reason RefreshReason) {
	select {
	case c.requests <- coordRequest{kind: reqRefreshAll, reason: reason}:
	case <-c.ctx.Done():
	}
}

// Unsubscribe removes a feed: any in-flight refresh is cancelled first,
// then the feed row and its articles are deleted or orphaned per the
// configured policy. Blocks until the removal committed.
func (c *Coordinator) Unsubscribe(feedID string) error {
	reply := make(chan error, 1)
	select {
	case c.requests <- coordRequest{kind: reqUnsubscribe, feedID: feedID, reply: reply}:
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// FeedID derives the stable feed identity from its subscription URL.
func FeedID(url string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(url)))
}

func (c *Coordinator) run() {
	defer c.loop.Done()

	tasks := make(map[string]*taskState)
	var queue []queuedRefresh
	active := 0
	batchDone, batchTotal := 0, 0

	ticker := time.NewTicker(c.cfg.Refresh.Interval)
	defer ticker.Stop()

	enqueue := func(feedID string, reason RefreshReason) {
		if _, busy := tasks[feedID]; busy {
			debuglog.Feed(feedID).Debugf("refresh request coalesced")
			return
		}
		tasks[feedID] = &taskState{phase: PhaseQueued}
		queue = append(queue, queuedRefresh{feedID: feedID, reason: reason})
		batchTotal++
	}

	dispatch := func() {
		for active < c.cfg.Refresh.Workers && len(queue) > 0 {
			next := queue[0]
			queue = queue[1:]

			st, ok := tasks[next.feedID]
			if !ok {
				continue
			}

			f, err := c.store.GetFeed(next.feedID)
			if err != nil {
				// Unsubscribed while queued.
				delete(tasks, next.feedID)
				batchTotal--
				continue
			}

			taskCtx, taskCancel := context.WithCancel(c.ctx)
			st.phase = PhaseFetching
			st.cancel = taskCancel
			active++

			c.events.emit(c.ctx, Event{
				Kind:      EventRefreshStarted,
				FeedID:    f.ID,
				FeedTitle: f.Title,
			})

			c.workers.Add(1)
			go c.runWorker(taskCtx, taskCancel, f)
		}
	}

	removeFeed := func(feedID string, reply chan error) {
		err := c.store.DeleteFeed(feedID, c.policy)
		if err == nil && c.indexer != nil {
			c.indexer.RemoveFeed(feedID)
		}
		c.events.emit(c.ctx, Event{Kind: EventFeedRemoved, FeedID: feedID})
		if reply != nil {
			reply <- err
		}
	}

	handleOutcome := func(out *Outcome) {
		st := tasks[out.FeedID]
		active--
		batchDone++

		switch out.Status {
		case OutcomeSuccess, OutcomeNotModified:
			if c.indexer != nil && len(out.articles) > 0 {
				c.indexer.IndexArticles(out.feed, out.articles)
			}
			ev := Event{
				Kind:    EventRefreshFinished,
				FeedID:  out.FeedID,
				New:     out.Stats.New,
				Updated: out.Stats.Updated,
			}
			if out.feed != nil {
				ev.FeedTitle = out.feed.Title
			}
			c.events.emit(c.ctx, ev)
		case OutcomeFailure:
			ev := Event{
				Kind:    EventRefreshFailed,
				FeedID:  out.FeedID,
				ErrKind: KindOf(out.Err),
			}
			if out.Err != nil {
				ev.Err = out.Err.Error()
			}
			c.events.emit(c.ctx, ev)
		case OutcomeCancelled:
			c.events.emit(c.ctx, Event{Kind: EventRefreshCancelled, FeedID: out.FeedID})
		}

		if st != nil && st.removal != nil {
			removeFeed(out.FeedID, st.removal)
		}
		delete(tasks, out.FeedID)

		c.events.emit(c.ctx, Event{
			Kind:      EventBatchProgress,
			Completed: batchDone,
			Total:     batchTotal,
		})
		if batchDone >= batchTotal {
			batchDone, batchTotal = 0, 0
		}
	}

	scheduleDue := func() {
		feeds, err := c.store.GetAllFeeds()
		if err != nil {
			debuglog.Errorf("listing feeds for scheduled refresh: %v", err)
			return
		}
		now := time.Now()
		for _, f := range feeds {
			if !f.Enabled {
				continue
			}
			interval := f.RefreshInterval
			if interval <= 0 {
				interval = c.cfg.Refresh.Interval
			}
			if now.Sub(f.LastRefreshed) >= interval {
				enqueue(f.ID, ReasonScheduled)
			}
		}
	}

	for {
		select {
		case <-c.ctx.Done():
			// Workers were cancelled with the root context; consume
			// their final reports so none of them block on the way out.
			for active > 0 {
				rep := <-c.reports
				if rep.outcome != nil {
					active--
				}
			}
			c.workers.Wait()
			return

		case req := <-c.requests:
			switch req.kind {
			case reqRefreshFeed:
				enqueue(req.feedID, req.reason)
			case reqRefreshAll:
				feeds, err := c.store.GetAllFeeds()
				if err != nil {
					debuglog.Errorf("listing feeds for refresh: %v", err)
					break
				}
				for _, f := range feeds {
					if f.Enabled {
						enqueue(f.ID, req.reason)
					}
				}
			case reqUnsubscribe:
				st, busy := tasks[req.feedID]
				if !busy {
					removeFeed(req.feedID, req.reply)
					break
				}
				if st.phase == PhaseQueued {
					for i, q := range queue {
						if q.feedID == req.feedID {
							queue = append(queue[:i], queue[i+1:]...)
							break
						}
					}
					delete(tasks, req.feedID)
					batchTotal--
					removeFeed(req.feedID, req.reply)
					break
				}
				// In flight: cancel, then remove once the worker's
				// terminal outcome arrives.
				st.removal = req.reply
				st.cancel()
			}
			dispatch()

		case rep := <-c.reports:
			if rep.outcome == nil {
				if st, ok := tasks[rep.feedID]; ok {
					st.phase = rep.phase
				}
			} else {
				handleOutcome(rep.outcome)
			}
			dispatch()

		case <-ticker.C:
			scheduleDue()
			dispatch()
		}
	}
}

func (c *Coordinator) runWorker(ctx context.Context, cancel context.CancelFunc, f *storage.Feed) {
	defer c.workers.Done()
	defer cancel()

	out := c.refresh(ctx, f)

	switch out.Status {
	case OutcomeSuccess, OutcomeNotModified:
		// status already recorded inside refresh
	case OutcomeFailure:
		msg := "refresh failed"
		if out.Err != nil {
			msg = out.Err.Error()
		}
		if err := c.store.RecordFailure(f.ID, msg); err != nil && !errors.Is(err, storage.ErrFeedNotFound) {
			debuglog.Feed(f.ID).Errorf("recording failure: %v", err)
		}
	case OutcomeCancelled:
		// leave the feed's stored state untouched
	}

	c.reports <- workerReport{feedID: f.ID, outcome: out}
}

// refresh runs fetch, normalize, and merge for one feed, strictly in
// that order. The context is checked at every stage boundary, so
// cancellation latency is bounded by one pipeline stage.
func (c *Coordinator) refresh(ctx context.Context, f *storage.Feed) *Outcome {
	log := debuglog.Feed(f.ID)

	res, err := c.fetcher.Fetch(ctx, f)
	if err != nil {
		if KindOf(err) == KindCancelled {
			log.Infof("fetch cancelled")
			return &Outcome{FeedID: f.ID, Status: OutcomeCancelled}
		}
		log.Warnf("fetch failed: %v", err)
		return &Outcome{FeedID: f.ID, Status: OutcomeFailure, Err: err}
	}

	if res.NotModified {
		log.Debugf("not modified")
		if err := c.store.RecordSuccess(f.ID, "", ""); err != nil && !errors.Is(err, storage.ErrFeedNotFound) {
			log.Errorf("recording refresh: %v", err)
		}
		return &Outcome{FeedID: f.ID, Status: OutcomeNotModified, feed: f}
	}

	if ctx.Err() != nil {
		return &Outcome{FeedID: f.ID, Status: OutcomeCancelled}
	}
	c.reports <- workerReport{feedID: f.ID, phase: PhaseNormalizing}

	doc, err := c.normalizer.Normalize(res.Body, f.ID)
	if err != nil {
		log.Warnf("normalize failed: %v", err)
		return &Outcome{FeedID: f.ID, Status: OutcomeFailure, Err: err}
	}
	if doc.Skipped > 0 {
		log.Infof("skipped %d malformed items", doc.Skipped)
	}

	if ctx.Err() != nil {
		return &Outcome{FeedID: f.ID, Status: OutcomeCancelled}
	}
	c.reports <- workerReport{feedID: f.ID, phase: PhaseMerging}

	stats, err := c.store.MergeArticles(ctx, f.ID, doc.Articles)
	if err != nil {
		if KindOf(err) == KindCancelled {
			log.Infof("merge cancelled, transaction rolled back")
			return &Outcome{FeedID: f.ID, Status: OutcomeCancelled}
		}
		log.Errorf("merge failed: %v", err)
		return &Outcome{FeedID: f.ID, Status: OutcomeFailure, Err: refreshErr(KindStore, err)}
	}

	if err := c.store.UpdateFeedInfo(f.ID, doc.Title, doc.Description); err != nil && !errors.Is(err, storage.ErrFeedNotFound) {
		log.Errorf("updating feed info: %v", err)
	}
	if err := c.store.RecordSuccess(f.ID, res.ETag, res.LastModified); err != nil && !errors.Is(err, storage.ErrFeedNotFound) {
		log.Errorf("recording refresh: %v", err)
	}

	log.Infof("refreshed: %d new, %d updated, %d unchanged", stats.New, stats.Updated, stats.Unchanged)

	updated, err := c.store.GetFeed(f.ID)
	if err != nil {
		updated = f
	}

	return &Outcome{
		FeedID:   f.ID,
		Status:   OutcomeSuccess,
		Stats:    stats,
		feed:     updated,
		articles: doc.Articles,
	}
}
