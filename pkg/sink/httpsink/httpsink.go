// Package httpsink implements a sink.Sink that batches forms and ships them
// as newline-delimited JSON to an HTTP bulk endpoint, retrying a failed
// POST up to maxSubmissionAttempts times back to back, with no delay
// between attempts.
package httpsink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shiplog/shiplog/pkg/block"
)

const maxSubmissionAttempts = 5

// Sink buffers forms until BatchSize is reached or Flush is called, then
// POSTs them as a single newline-delimited JSON body.
type Sink struct {
	URL       string
	BatchSize int
	Client    *http.Client
	Logger    *slog.Logger

	pending []any
}

// New returns a Sink posting to url, batching up to batchSize forms.
func New(url string, batchSize int, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		URL:       url,
		BatchSize: batchSize,
		Client:    &http.Client{Timeout: 20 * time.Second},
		Logger:    logger,
	}
}

// Accept buffers form and reports it pending until BatchSize forms are
// buffered; the form that fills the batch submits the whole batch itself
// and is reported acknowledged (pending=false) once that submit succeeds.
func (s *Sink) Accept(form any, _ block.Block) (bool, error) {
	s.pending = append(s.pending, form)
	if s.BatchSize > 0 && len(s.pending) < s.BatchSize {
		return true, nil
	}
	if err := s.submit(); err != nil {
		return true, err
	}
	return false, nil
}

// Flush forces delivery of whatever is currently buffered.
func (s *Sink) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	return s.submit()
}

func (s *Sink) submit() error {
	batch := s.pending
	s.pending = nil

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, form := range batch {
		if err := enc.Encode(form); err != nil {
			s.pending = batch
			return fmt.Errorf("httpsink: encode form: %w", err)
		}
	}
	payload := buf.Bytes()

	var lastErr error
	for attempt := 0; attempt < maxSubmissionAttempts; attempt++ {
		resp, err := s.Client.Post(s.URL, "application/x-ndjson", bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			s.Logger.Warn("httpsink: submit failed", "attempt", attempt+1, "err", err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("httpsink: unexpected status %d", resp.StatusCode)
		s.Logger.Warn("httpsink: submit rejected", "attempt", attempt+1, "status", resp.StatusCode)
	}
	// restore the batch so a subsequent Flush/Accept can retry it.
	s.pending = append(batch, s.pending...)
	return fmt.Errorf("httpsink: giving up after %d attempts: %w", maxSubmissionAttempts, lastErr)
}
