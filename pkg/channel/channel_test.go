package channel

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shiplog/shiplog/pkg/block"
	"github.com/shiplog/shiplog/pkg/sink/memsink"
	"github.com/shiplog/shiplog/pkg/source"
	"github.com/shiplog/shiplog/pkg/tracker/memtracker"
)

// onceFailingSink wraps a memsink.Sink and fails Accept exactly once, on the
// callN'th call, to exercise the slack-recovery path over a multi-read file.
type onceFailingSink struct {
	inner *memsink.Sink
	callN int
	calls int
}

func (s *onceFailingSink) Accept(form any, b block.Block) (bool, error) {
	s.calls++
	if s.calls == s.callN {
		return false, errors.New("onceFailingSink: simulated failure")
	}
	return s.inner.Accept(form, b)
}

func (s *onceFailingSink) Flush() error { return s.inner.Flush() }

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestSource(path string) *source.Source {
	return &source.Source{
		Name:       "test",
		Globs:      []string{path},
		Pattern:    regexp.MustCompile(`(?P<msg>.*)`),
		ReadSize:   64,
		BufferSize: 1 << 16,
	}
}

func TestConsumeAcknowledgedImmediatelyAdvancesTracker(t *testing.T) {
	path := writeFile(t, "one\ntwo\nthree\n")
	tr := memtracker.New()
	sk := memsink.New(0) // batch size 0: every accept is acknowledged

	ch := &Channel{Name: "t", Sources: []*source.Source{newTestSource(path)}, Sink: sk, Tracker: tr, Backfill: true, StrictSlack: 1}
	cs := ch.NewConsumer()

	stats, err := cs.Consume(path, nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 0, stats.Pending)

	off, ok := tr.Get(path)
	assert.True(t, ok)
	assert.Equal(t, int64(14), off)
	assert.Len(t, sk.Delivered, 3)
}

func TestConsumeResumesFromTrackedOffset(t *testing.T) {
	path := writeFile(t, "one\ntwo\nthree\n")
	tr := memtracker.New()
	assert.NoError(t, tr.Set(path, 4)) // already consumed "one\n"
	sk := memsink.New(0)

	ch := &Channel{Name: "t", Sources: []*source.Source{newTestSource(path)}, Sink: sk, Tracker: tr, StrictSlack: 1}
	cs := ch.NewConsumer()

	stats, err := cs.Consume(path, nil)
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Len(t, sk.Delivered, 2)
	assert.Equal(t, "two", sk.Delivered[0].Form.(map[string]string)["msg"])
}

func TestConsumeBatchesPendingFormsUntilBatchSize(t *testing.T) {
	path := writeFile(t, "one\ntwo\nthree\nfour\n")
	tr := memtracker.New()
	sk := memsink.New(2) // buffers until explicitly flushed

	ch := &Channel{Name: "t", Sources: []*source.Source{newTestSource(path)}, Sink: sk, Tracker: tr, BatchSize: 2, Backfill: true, StrictSlack: 1}
	cs := ch.NewConsumer()

	stats, err := cs.Consume(path, nil)
	assert.NoError(t, err)
	assert.Equal(t, 4, stats.Count) // flushed in the loop as two batches of 2
	assert.Equal(t, 0, stats.Pending)

	off, ok := tr.Get(path)
	assert.True(t, ok)
	assert.Equal(t, int64(19), off)
}

func TestConsumeNoBytesStillAdvancesTrackerToTell(t *testing.T) {
	path := writeFile(t, "")
	tr := memtracker.New()
	sk := memsink.New(0)

	ch := &Channel{Name: "t", Sources: []*source.Source{newTestSource(path)}, Sink: sk, Tracker: tr, StrictSlack: 1}
	cs := ch.NewConsumer()

	stats, err := cs.Consume(path, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, stats.Count)

	off, ok := tr.Get(path)
	assert.True(t, ok)
	assert.Equal(t, int64(0), off)
}

func TestConsumeWithoutTrackOrBackfillStartsAtEnd(t *testing.T) {
	path := writeFile(t, "existing\n")
	tr := memtracker.New()
	sk := memsink.New(0)

	ch := &Channel{Name: "t", Sources: []*source.Source{newTestSource(path)}, Sink: sk, Tracker: tr, Backfill: false, StrictSlack: 1}
	cs := ch.NewConsumer()

	stats, err := cs.Consume(path, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
	off, ok := tr.Get(path)
	assert.True(t, ok)
	assert.Equal(t, int64(len("existing\n")), off)
}

func TestConsumeAmbiguousSourcesErrors(t *testing.T) {
	path := writeFile(t, "x\n")
	tr := memtracker.New()
	sk := memsink.New(0)
	s1 := newTestSource(path)
	s1.Globs = []string{filepath.Join(filepath.Dir(path), "*.log")}
	s2 := newTestSource(path)
	s2.Globs = []string{filepath.Join(filepath.Dir(path), "*.log")}

	ch := &Channel{Name: "t", Sources: []*source.Source{s1, s2}, Sink: sk, Tracker: tr}
	cs := ch.NewConsumer()

	_, err := cs.Consume(path, nil)
	assert.ErrorIs(t, err, ErrAmbiguousSource)
}

func TestFlushFailureKeepsPendingBlocksForRetry(t *testing.T) {
	path := writeFile(t, "one\ntwo\n")
	tr := memtracker.New()
	sk := memsink.New(10)
	sk.FailFlush = true

	ch := &Channel{Name: "t", Sources: []*source.Source{newTestSource(path)}, Sink: sk, Tracker: tr, Backfill: true, StrictSlack: 1}
	cs := ch.NewConsumer()

	_, err := cs.Consume(path, nil)
	assert.Error(t, err)
	_, ok := tr.Get(path)
	assert.False(t, ok) // nothing was ever acknowledged
}

func TestStrictModeWithNoSlackPropagatesMatchError(t *testing.T) {
	path := writeFile(t, "x\n")
	tr := memtracker.New()
	sk := memsink.New(0)
	s := &source.Source{Globs: []string{path}, Pattern: regexp.MustCompile(`^NEVER_MATCHES$`), Strict: true, ReadSize: 64, BufferSize: 1 << 16}

	ch := &Channel{Name: "t", Sources: []*source.Source{s}, Sink: sk, Tracker: tr, Strict: true, StrictSlack: 0, Backfill: true}
	cs := ch.NewConsumer()

	_, err := cs.Consume(path, nil)
	assert.ErrorIs(t, err, source.ErrNoMatch)
}

func TestEditRoundTripsTrackerState(t *testing.T) {
	tr := memtracker.New()
	assert.NoError(t, tr.Set("/var/log/a.log", 10))
	ch := &Channel{Name: "t", Tracker: tr}

	var buf bytes.Buffer
	assert.NoError(t, ch.ReadState(&buf))

	tr2 := memtracker.New()
	ch2 := &Channel{Name: "t", Tracker: tr2}
	n, err := ch2.WriteState(&buf)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	off, ok := tr2.Get("/var/log/a.log")
	assert.True(t, ok)
	assert.Equal(t, int64(10), off)
}

// TestSinkFailureOnceRecoversWithinSameConsumeCall exercises the slack-error
// recovery path over a file larger than ReadSize, forcing the block iterator
// through multiple fill() calls: one sink failure must skip exactly the
// offending record and then correctly resume decoding every record after it,
// instead of re-reading already-buffered bytes.
func TestSinkFailureOnceRecoversWithinSameConsumeCall(t *testing.T) {
	path := writeFile(t, "rec0\nrec1\nrec2\nrec3\nrec4\nrec5\n")
	tr := memtracker.New()
	inner := memsink.New(0) // batch size 0: every accept is acknowledged immediately
	sk := &onceFailingSink{inner: inner, callN: 3}

	s := &source.Source{
		Name:       "test",
		Globs:      []string{path},
		Pattern:    regexp.MustCompile(`(?P<msg>.*)`),
		ReadSize:   8, // smaller than the file: forces several buffer fills
		BufferSize: 1 << 16,
	}
	ch := &Channel{Name: "t", Sources: []*source.Source{s}, Sink: sk, Tracker: tr, Backfill: true, StrictSlack: 2}
	cs := ch.NewConsumer()

	stats, err := cs.Consume(path, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 5, stats.Count) // every record but the one that errored

	var got []string
	for _, d := range inner.Delivered {
		got = append(got, d.Form.(map[string]string)["msg"])
	}
	assert.Equal(t, []string{"rec0", "rec1", "rec3", "rec4", "rec5"}, got)

	off, ok := tr.Get(path)
	assert.True(t, ok)
	assert.Equal(t, int64(len("rec0\nrec1\nrec2\nrec3\nrec4\nrec5\n")), off)
}

func TestMatchReturnsFirstSourceWithGlobHit(t *testing.T) {
	s1 := &source.Source{Name: "a", Globs: []string{"/var/log/a*.log"}}
	s2 := &source.Source{Name: "b", Globs: []string{"/var/log/*.log"}}
	ch := &Channel{Sources: []*source.Source{s1, s2}}

	matched, ok := ch.Match("/var/log/a.log")
	assert.True(t, ok)
	assert.Equal(t, "a", matched.Name)
}
