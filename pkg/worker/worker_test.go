package worker

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shiplog/shiplog/pkg/channel"
	"github.com/shiplog/shiplog/pkg/sink/memsink"
	"github.com/shiplog/shiplog/pkg/source"
	"github.com/shiplog/shiplog/pkg/tracker/memtracker"
)

func TestWorkerConsumesOnModifyEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	assert.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	sk := memsink.New(0)
	ch := &channel.Channel{
		Name:    "t",
		Sources: []*source.Source{{Globs: []string{filepath.Join(dir, "*.log")}, Pattern: regexp.MustCompile(`.*`), ReadSize: 64, BufferSize: 1 << 16}},
		Sink:    sk,
		Tracker: memtracker.New(),
		Backfill: true,
		StrictSlack: 1,
	}
	w := New(ch, 4, 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go w.Run(ctx)

	w.Submit(Event{Path: path, Flags: Modify})
	time.Sleep(100 * time.Millisecond)

	assert.Len(t, sk.Delivered, 1)
}

func TestWorkerDeleteEventDropsMatchCache(t *testing.T) {
	ch := &channel.Channel{Name: "t"}
	w := New(ch, 4, 10*time.Millisecond, nil)
	w.matchCache["/var/log/a.log"] = &source.Source{}

	err := w.dispatch(Event{Path: "/var/log/a.log", Flags: Delete})
	assert.NoError(t, err)
	_, ok := w.matchCache["/var/log/a.log"]
	assert.False(t, ok)
}

func TestWorkerUnmatchedPathIsNoop(t *testing.T) {
	ch := &channel.Channel{Name: "t", Sources: []*source.Source{{Globs: []string{"/nope/*.log"}}}}
	w := New(ch, 4, 10*time.Millisecond, nil)
	err := w.dispatch(Event{Path: "/var/log/a.log", Flags: Modify})
	assert.NoError(t, err)
}
