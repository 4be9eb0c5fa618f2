package channel

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shiplog/shiplog/pkg/block"
	"github.com/shiplog/shiplog/pkg/source"
)

// Stats summarizes one Consume call.
type Stats struct {
	Count   int // blocks acknowledged (persisted to the tracker)
	Pending int // blocks still buffered by the sink when Consume returned
	Bytes   int64
	Errors  int
	Elapsed time.Duration
}

// Consumer carries the batching/pending state that must persist across
// repeated Consume calls on the same channel (so a channel worker reuses
// one Consumer for its whole lifetime).
type Consumer struct {
	ch *Channel

	slack        map[string]int // remaining strict-slack budget, per path
	pending      map[string]int64
	flushAt      map[string]time.Time
	pendingCount int // blocks accumulated since the last flush, across all paths
}

// NewConsumer returns a fresh Consumer bound to ch.
func (c *Channel) NewConsumer() *Consumer {
	return &Consumer{
		ch:      c,
		slack:   make(map[string]int),
		pending: make(map[string]int64),
		flushAt: make(map[string]time.Time),
	}
}

// Consume reads path from its tracked offset (or
// from 0/EOF per Backfill) through to EOF, delivering forms to the
// channel's sink and advancing the tracker.
func (cs *Consumer) Consume(path string, explicit *source.Source) (Stats, error) {
	start := time.Now()
	src, err := cs.ch.resolveSource(path, explicit)
	if err != nil {
		return Stats{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("channel %s: open %s: %w", cs.ch.Name, path, err)
	}
	defer f.Close()

	offset, hasOffset := cs.ch.Tracker.Get(path)
	switch {
	case hasOffset:
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return Stats{}, fmt.Errorf("channel %s: seek %s: %w", cs.ch.Name, path, err)
		}
	case cs.ch.Backfill:
		// already at 0
	default:
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return Stats{}, fmt.Errorf("channel %s: seek %s: %w", cs.ch.Name, path, err)
		}
	}

	fi, err := src.Forms(f)
	if err != nil {
		return Stats{}, fmt.Errorf("channel %s: build form iterator for %s: %w", cs.ch.Name, path, err)
	}

	stats, err := cs.step(path, fi, f, src)
	stats.Elapsed = time.Since(start)
	if err != nil {
		return stats, err
	}

	// Per the original consumer's bookkeeping: a call that consumed zero
	// bytes still advances the tracker to the file's current position, so
	// a tail-from-now channel records where it started.
	if stats.Count == 0 && stats.Pending == 0 {
		if pos, serr := f.Seek(0, io.SeekCurrent); serr == nil {
			_ = cs.ch.Tracker.Set(path, pos)
		}
	}

	return stats, nil
}

func (cs *Consumer) step(path string, fi *source.FormIterator, f *os.File, src *source.Source) (Stats, error) {
	var stats Stats
	if cs.slackFor(path) <= 0 {
		cs.slack[path] = cs.ch.StrictSlack
	}

	for {
		rec, ok, err := fi.Next()
		if err != nil {
			newFi, handled := cs.handleBlockError(path, f, src, rec, err, &stats)
			if handled {
				fi = newFi
				continue
			}
			return stats, err
		}
		if !ok {
			break
		}

		pending, aerr := cs.ch.Sink.Accept(rec.Value, rec.Block)
		if aerr != nil {
			newFi, handled := cs.handleBlockError(path, f, src, rec, fmt.Errorf("sink accept: %w", aerr), &stats)
			if handled {
				fi = newFi
				continue
			}
			return stats, aerr
		}

		stats.Bytes += rec.Block.End - rec.Block.Begin

		if pending {
			cs.armFlush(path)
			cs.pending[path] = rec.Block.End
			cs.pendingCount++
			stats.Pending++
			if cs.ch.BatchSize > 0 && cs.pendingCount >= cs.ch.BatchSize {
				if ferr := cs.Flush(); ferr != nil {
					return stats, ferr
				}
				stats.Count += stats.Pending
				stats.Pending = 0
			}
		} else {
			if serr := cs.ch.Tracker.Set(rec.Block.Path, rec.Block.End); serr != nil {
				return stats, fmt.Errorf("channel %s: persist offset: %w", cs.ch.Name, serr)
			}
			// the acknowledgement covers every form buffered before it.
			if _, had := cs.pending[rec.Block.Path]; had {
				delete(cs.pending, rec.Block.Path)
				delete(cs.flushAt, rec.Block.Path)
				cs.pendingCount -= stats.Pending
				stats.Count += stats.Pending
				stats.Pending = 0
			}
			stats.Count++
		}

		cs.slack[path] = cs.ch.StrictSlack
	}

	if cs.totalPending() > 0 {
		if ferr := cs.Flush(); ferr != nil {
			return stats, ferr
		}
		stats.Count += stats.Pending
		stats.Pending = 0
	}
	return stats, nil
}

// handleBlockError applies the strict/slack policy: propagate if strict
// with no slack left, otherwise log-and-skip by decrementing slack,
// counting the offending block plus every currently-pending block as
// errors, advancing the tracker and file pointer past the failed block's
// end, and rebuilding fi so its internal buffer state stays coherent with
// the new file position (reusing the old iterator after an out-of-band
// seek would desync its buffer from the stream, per the original
// channel's error()/step() re-entering Source.forms(fo) from block.end).
func (cs *Consumer) handleBlockError(path string, f *os.File, src *source.Source, rec source.Record, err error, stats *Stats) (*source.FormIterator, bool) {
	if cs.ch.Strict && cs.slackFor(path) <= 0 {
		return nil, false
	}
	cs.slack[path]--
	stats.Errors += stats.Pending + 1
	cs.pendingCount -= stats.Pending
	stats.Pending = 0
	cs.ch.logger().Warn("channel: dropping block after error", "channel", cs.ch.Name, "path", path, "err", err)

	delete(cs.pending, path)
	delete(cs.flushAt, path)

	safe, ok := failedBlockEnd(rec, err)
	if !ok {
		safe, ok = cs.ch.Tracker.Get(path)
		if !ok {
			safe = 0
		}
	}
	if serr := cs.ch.Tracker.Set(path, safe); serr != nil {
		cs.ch.logger().Error("channel: persist offset after error failed", "channel", cs.ch.Name, "path", path, "err", serr)
	}
	if _, serr := f.Seek(safe, io.SeekStart); serr != nil {
		cs.ch.logger().Error("channel: reseek after error failed", "channel", cs.ch.Name, "path", path, "err", serr)
		return nil, false
	}

	newFi, ferr := src.Forms(f)
	if ferr != nil {
		cs.ch.logger().Error("channel: rebuild form iterator after error failed", "channel", cs.ch.Name, "path", path, "err", ferr)
		return nil, false
	}
	return newFi, true
}

// failedBlockEnd reports the byte offset just past the block that caused
// err, so the caller can skip past it: rec.Block is populated whenever the
// error came from the sink or from a source-level match/form rejection,
// and a block-iterator-level ParseError carries its own range.
func failedBlockEnd(rec source.Record, err error) (int64, bool) {
	if rec.Block.Path != "" {
		return rec.Block.End, true
	}
	var partial *block.PartialBlockError
	if errors.As(err, &partial) {
		return partial.End, true
	}
	return 0, false
}

func (cs *Consumer) slackFor(path string) int {
	if v, ok := cs.slack[path]; ok {
		return v
	}
	return cs.ch.StrictSlack
}

func (cs *Consumer) armFlush(path string) {
	if cs.ch.FlushFrequency <= 0 {
		return
	}
	if _, ok := cs.flushAt[path]; !ok {
		cs.flushAt[path] = time.Now().Add(cs.ch.FlushFrequency)
	}
}

func (cs *Consumer) totalPending() int {
	return len(cs.pending)
}

// DueForFlush reports whether any path's flush timer has expired.
func (cs *Consumer) DueForFlush(now time.Time) bool {
	for _, at := range cs.flushAt {
		if !now.Before(at) {
			return true
		}
	}
	return false
}

// Flush forces the sink to deliver every buffered form. On success, every
// path with pending state has its tracker offset advanced to the last
// pending End and its pending/flush-timer state cleared. Flush is
// all-or-nothing: a failing Flush leaves pending state untouched so the
// caller can retry.
func (cs *Consumer) Flush() error {
	if err := cs.ch.Sink.Flush(); err != nil {
		return fmt.Errorf("channel %s: flush: %w", cs.ch.Name, err)
	}
	var firstErr error
	for path, end := range cs.pending {
		if err := cs.ch.Tracker.Set(path, end); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("channel %s: persist flushed offset: %w", cs.ch.Name, err)
		}
	}
	cs.pending = make(map[string]int64)
	cs.flushAt = make(map[string]time.Time)
	cs.pendingCount = 0
	return firstErr
}
