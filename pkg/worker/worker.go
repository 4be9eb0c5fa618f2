package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/shiplog/shiplog/pkg/channel"
	"github.com/shiplog/shiplog/pkg/source"
	"github.com/shiplog/shiplog/pkg/throttle"
)

// Worker is the long-lived task for one channel: it drains an inbox of
// file events, throttles after failures, and drives the channel's
// consumer.
type Worker struct {
	Channel   *channel.Channel
	QueuePoll time.Duration

	inbox     *inbox
	consumer  *channel.Consumer
	throttle  *throttle.Throttle
	matchCache map[string]*source.Source
	logger    *slog.Logger
}

// New returns a Worker for ch with the given inbox capacity.
func New(ch *channel.Channel, queueSize int, queuePoll time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	th := ch.Throttle
	if th == nil {
		th = throttle.New(time.Second, 1, time.Minute)
	}
	return &Worker{
		Channel:    ch,
		QueuePoll:  queuePoll,
		inbox:      newInbox(queueSize),
		consumer:   ch.NewConsumer(),
		throttle:   th,
		matchCache: make(map[string]*source.Source),
		logger:     logger,
	}
}

// Submit enqueues an event for this worker, coalescing with any already
// queued event for the same path. It returns false if the event was
// dropped due to a full inbox with no coalescing target.
func (w *Worker) Submit(ev Event) bool {
	return w.inbox.push(ev)
}

// QueueLen reports how many distinct paths are currently queued.
func (w *Worker) QueueLen() int { return w.inbox.len() }

// Dropped reports how many events have been dropped due to inbox overflow.
func (w *Worker) Dropped() int { return w.inbox.droppedCount() }

// Run drives the worker's main loop until ctx is cancelled, implementing
// the throttle/flush/dispatch state machine.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drainOnShutdown()
			return
		default:
		}

		if w.throttle.Active() {
			d := w.throttle.Remaining()
			if w.QueuePoll > 0 && d > w.QueuePoll {
				d = w.QueuePoll
			}
			w.sleep(ctx, d)
			continue
		}

		if w.consumer.DueForFlush(time.Now()) {
			if err := w.consumer.Flush(); err != nil {
				w.logger.Warn("worker: scheduled flush failed", "channel", w.Channel.Name, "err", err)
				w.throttle.Trigger()
			}
			continue
		}

		ev, ok := w.inbox.pop()
		if !ok {
			w.sleep(ctx, w.QueuePoll)
			continue
		}

		if w.throttle.Active() {
			w.inbox.requeue(ev)
			continue
		}

		if err := w.dispatch(ev); err != nil {
			w.logger.Warn("worker: dispatch failed", "channel", w.Channel.Name, "path", ev.Path, "err", err)
			w.throttle.Trigger()
			w.inbox.requeue(ev)
			continue
		}
		w.throttle.Reset()
	}
}

func (w *Worker) drainOnShutdown() {
	if err := w.consumer.Flush(); err != nil {
		w.logger.Warn("worker: shutdown flush failed", "channel", w.Channel.Name, "err", err)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = w.QueuePoll
	}
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *Worker) dispatch(ev Event) error {
	if ev.Flags.Has(Delete) {
		delete(w.matchCache, ev.Path)
		if !ev.Flags.Has(Create) && !ev.Flags.Has(Modify) {
			return nil
		}
	}

	src, ok := w.matchCache[ev.Path]
	if !ok {
		src, ok = w.Channel.Match(ev.Path)
		if !ok {
			return nil
		}
		w.matchCache[ev.Path] = src
	}

	w.detectTruncation(ev.Path)

	_, err := w.consumer.Consume(ev.Path, src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			delete(w.matchCache, ev.Path)
			return nil
		}
		return err
	}
	return nil
}

// detectTruncation resets the tracked offset for path to 0 when the file
// on disk is now shorter than the last tracked offset — the same
// size-versus-offset comparison the reference tailer used to notice a
// rotated-in-place (truncated) file.
func (w *Worker) detectTruncation(path string) {
	offset, ok := w.Channel.Tracker.Get(path)
	if !ok || offset == 0 {
		return
	}
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	if fi.Size() < offset {
		w.logger.Warn("worker: file truncated, resetting offset", "channel", w.Channel.Name, "path", path)
		if err := w.Channel.Tracker.Set(path, 0); err != nil {
			w.logger.Error("worker: failed resetting offset after truncation", "channel", w.Channel.Name, "path", path, "err", err)
		}
	}
}
