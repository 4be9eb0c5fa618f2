package httpsink

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shiplog/shiplog/pkg/block"
	"github.com/stretchr/testify/assert"
)

func TestAcceptBatchesUntilThreshold(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, 2, nil)
	b := block.Block{Path: "a", Begin: 0, End: 1}

	pending, err := s.Accept("one", b)
	assert.NoError(t, err)
	assert.True(t, pending)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	pending, err = s.Accept("two", b)
	assert.NoError(t, err)
	assert.False(t, pending, "a form that triggers a successful submit is acknowledged, not pending")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFlushForcesSubmissionBelowThreshold(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, 10, nil)
	_, err := s.Accept("one", block.Block{Path: "a", Begin: 0, End: 1})
	assert.NoError(t, err)

	assert.NoError(t, s.Flush())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubmitFailureReturnsErrorAndKeepsBatchPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(srv.URL, 1, nil)
	_, err := s.Accept("one", block.Block{Path: "a", Begin: 0, End: 1})
	assert.Error(t, err)
	assert.Len(t, s.pending, 1)
}
