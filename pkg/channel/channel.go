// Package channel owns a set of sources, a sink, a tracker and a throttle,
// and drives consumption of one file at a time to completion.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/shiplog/shiplog/pkg/sink"
	"github.com/shiplog/shiplog/pkg/source"
	"github.com/shiplog/shiplog/pkg/throttle"
	"github.com/shiplog/shiplog/pkg/tracker"
)

// ErrAmbiguousSource is returned when a path matches more than one
// configured source.
var ErrAmbiguousSource = errors.New("channel: path matches more than one source")

// ErrNoSource is returned when a path matches no configured source.
var ErrNoSource = errors.New("channel: no source matches path")

// ErrLockTimeout is returned by Lock when the advisory lock could not be
// acquired within the requested timeout.
var ErrLockTimeout = errors.New("channel: timed out acquiring lock")

// Channel composes a named pipeline: a set of sources sharing one sink,
// tracker and throttle.
type Channel struct {
	Name    string
	Sources []*source.Source
	Sink    sink.Sink
	Tracker tracker.Tracker
	Logger  *slog.Logger

	StateDir string
	LockFile string

	BatchSize      int
	Strict         bool
	StrictSlack    int
	Backfill       bool
	Track          bool
	FlushFrequency time.Duration

	Throttle *throttle.Throttle
}

// TrackPath returns the canonical tracker file path for name under dir, the
// same `{state_dir}/{channel_name}.track` convention the original tool
// used.
func TrackPath(dir, name string) string {
	return filepath.Join(dir, name+".track")
}

// LockPath returns the canonical lock file path for name under dir.
func LockPath(dir, name string) string {
	return filepath.Join(dir, name+".lock")
}

// Match returns the first configured source whose globs select path.
func (c *Channel) Match(path string) (*source.Source, bool) {
	for _, s := range c.Sources {
		if s.Match(path) {
			return s, true
		}
	}
	return nil, false
}

// resolveSource picks the Source to use for a Consume call: the explicitly
// given one, or the unique match among c.Sources.
func (c *Channel) resolveSource(path string, explicit *source.Source) (*source.Source, error) {
	if explicit != nil {
		return explicit, nil
	}
	var found *source.Source
	for _, s := range c.Sources {
		if s.Match(path) {
			if found != nil {
				return nil, fmt.Errorf("%w: %s", ErrAmbiguousSource, path)
			}
			found = s
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSource, path)
	}
	return found, nil
}

// Lock acquires the channel's advisory exclusive lock file, blocking up to
// timeout. The returned func releases it. An empty LockFile makes Lock a
// no-op.
func (c *Channel) Lock(timeout time.Duration) (func() error, error) {
	if c.LockFile == "" {
		return func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.LockFile), 0o755); err != nil {
		return nil, fmt.Errorf("channel %s: create lock dir: %w", c.Name, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	fl := flock.New(c.LockFile)
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("channel %s: lock: %w", c.Name, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, c.LockFile)
	}
	return fl.Unlock, nil
}

func (c *Channel) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
