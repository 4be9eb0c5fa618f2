// Package memsink implements an in-memory sink.Sink used by tests.
package memsink

import (
	"sync"

	"github.com/shiplog/shiplog/pkg/block"
)

// Delivered pairs one accepted form with the block it came from.
type Delivered struct {
	Form  any
	Block block.Block
}

// Sink buffers forms until Flush is called, at which point they move from
// Pending into Delivered. Configuring BatchSize as 0 makes every Accept
// immediately acknowledged instead of buffered.
type Sink struct {
	BatchSize int
	FailFlush bool

	mu        sync.Mutex
	pending   []Delivered
	Delivered []Delivered
}

// New returns a Sink that buffers up to batchSize forms before a caller
// must Flush (0 means every Accept is acknowledged immediately).
func New(batchSize int) *Sink {
	return &Sink{BatchSize: batchSize}
}

func (s *Sink) Accept(form any, b block.Block) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BatchSize <= 0 {
		s.Delivered = append(s.Delivered, Delivered{Form: form, Block: b})
		return false, nil
	}
	s.pending = append(s.pending, Delivered{Form: form, Block: b})
	return true, nil
}

func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFlush {
		return errFlush
	}
	s.Delivered = append(s.Delivered, s.pending...)
	s.pending = nil
	return nil
}

// Pending returns a snapshot of the currently buffered, unacknowledged
// forms.
func (s *Sink) Pending() []Delivered {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivered, len(s.pending))
	copy(out, s.pending)
	return out
}

var errFlush = sinkFlushError{}

type sinkFlushError struct{}

func (sinkFlushError) Error() string { return "memsink: flush failed" }
