package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"basegraph.app/courier/common/logger"
	"basegraph.app/courier/internal/forge"
	"basegraph.app/courier/internal/model"
)

type Config struct {
	// Interval is the poll interval until the server sends a hint.
	Interval time.Duration
	// RateLimitBackoff replaces the hint after a rate-limited poll.
	RateLimitBackoff time.Duration
}

// NotificationProcessor abstracts Processor for testability.
type NotificationProcessor interface {
	Process(ctx context.Context, note model.Notification) Outcome
}

// Worker polls the inbox and runs every notification in its own goroutine. Webhook
// deliveries enter through Submit and share the same processing.
type Worker struct {
	inbox     Inbox
	processor NotificationProcessor
	cfg       Config
	interval  time.Duration // latest server hint, or cfg.Interval
	// pending is set when a notification was left unread, so the next poll must not be
	// conditional or the forge would answer 304 and hide it.
	pending atomic.Bool

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

// New creates a Worker. inbox may be nil when polling is disabled and only Submit is used.
func New(inbox Inbox, processor NotificationProcessor, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = 5 * time.Minute
	}
	return &Worker{
		inbox:     inbox,
		processor: processor,
		cfg:       cfg,
		interval:  cfg.Interval,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run polls until ctx is done or Stop is called. In-flight notifications are not
// cancelled; use Wait to drain them.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "courier.worker.poller"})
	slog.InfoContext(ctx, "poller started", "interval", w.cfg.Interval)

	for {
		next := w.Poll(ctx)

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-w.stopCh:
			timer.Stop()
			slog.InfoContext(ctx, "poller stopping")
			return nil
		case <-timer.C:
		}
	}
}

// Stop ends Run after the current poll. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.stoppedCh
}

// Poll fetches one batch, submits every notification and returns how long to sleep
// before the next poll.
func (w *Worker) Poll(ctx context.Context) time.Duration {
	conditional := !w.pending.Swap(false)
	batch, err := w.inbox.Notifications(ctx, conditional)
	switch {
	case errors.Is(err, forge.ErrRateLimited):
		w.retryLater(conditional)
		slog.WarnContext(ctx, "notification poll rate limited, backing off", "backoff", w.cfg.RateLimitBackoff)
		return w.cfg.RateLimitBackoff
	case err != nil:
		w.retryLater(conditional)
		slog.ErrorContext(ctx, "notification poll failed", "error", err)
		return w.interval
	}

	if batch.PollInterval > 0 {
		w.interval = batch.PollInterval
	}

	if batch.NotModified {
		slog.DebugContext(ctx, "no notification changes")
		return w.interval
	}

	slog.InfoContext(ctx, "fetched notifications", "count", len(batch.Notifications))
	for _, note := range batch.Notifications {
		w.Submit(ctx, note)
	}
	return w.interval
}

// retryLater keeps the pending flag a failed unconditional poll consumed.
func (w *Worker) retryLater(conditional bool) {
	if !conditional {
		w.pending.Store(true)
	}
}

// Submit processes note in the background. The work outlives ctx cancellation so a
// webhook request can return before processing ends.
func (w *Worker) Submit(ctx context.Context, note model.Notification) {
	ctx = context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if w.processor.Process(ctx, note).Retryable() {
			w.pending.Store(true)
		}
	}()
}

// Wait blocks until every submitted notification has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}
