// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package block carves an append-only byte stream into delimited records
// with exact byte offsets.
package block

import (
	"errors"
	"fmt"
	"io"
)

// Block is one delimited record pulled from a stream.
type Block struct {
	Path  string
	Begin int64
	End   int64
	Raw   []byte
}

// ReadSeekNamer is the minimal file-like capability the iterators need: a
// regular file satisfies it directly.
type ReadSeekNamer interface {
	io.Reader
	io.Seeker
	Name() string
}

// ErrPartial is returned by Next when strict mode is enabled and the
// remaining buffered bytes do not form a complete block.
var ErrPartial = errors.New("block: partial block")

// PartialBlockError carries the offending byte range alongside ErrPartial.
type PartialBlockError struct {
	Path        string
	Begin, End  int64
}

func (e *PartialBlockError) Error() string {
	return fmt.Sprintf("block: partial block in %s [%d:%d]", e.Path, e.Begin, e.End)
}

func (e *PartialBlockError) Unwrap() error { return ErrPartial }

// Options tune the buffering behavior shared by every Iterator
// implementation.
type Options struct {
	// ReadSize is how many bytes are requested from the stream per read.
	ReadSize int
	// MaxBufferSize bounds how much unparsed data may accumulate before a
	// block is forcibly discarded.
	MaxBufferSize int
	// Strict turns a would-be-discarded partial block into an error.
	Strict bool
}

// DefaultOptions mirrors the original reference implementation's defaults.
func DefaultOptions() Options {
	return Options{ReadSize: 4096, MaxBufferSize: 1 << 20, Strict: false}
}

// Iterator is a pull-based, single-pass sequence of Blocks. Ok is false at
// clean end of stream; a non-nil error always implies ok is false.
type Iterator interface {
	Next() (b Block, ok bool, err error)
}

// base holds the state shared by the line and multi-line iterators: the
// unparsed buffer, the stream position of buf[0], and whether the stream has
// been exhausted.
type base struct {
	r    ReadSeekNamer
	opts Options

	buf     []byte
	pos     int64 // stream offset of buf[0]
	eof     bool
	discard bool
}

func newBase(r ReadSeekNamer, opts Options) (*base, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("block: determine start offset: %w", err)
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultOptions().ReadSize
	}
	if opts.MaxBufferSize < opts.ReadSize {
		opts.MaxBufferSize = DefaultOptions().MaxBufferSize
	}
	return &base{r: r, opts: opts, pos: pos}, nil
}

// fill reads more bytes into buf, returning false once the stream has hit
// EOF and nothing new was read.
func (b *base) fill() (bool, error) {
	if b.eof {
		return false, nil
	}
	room := b.opts.MaxBufferSize - len(b.buf)
	if room <= 0 {
		return false, nil
	}
	n := b.opts.ReadSize
	if n > room {
		n = room
	}
	chunk := make([]byte, n)
	read, err := io.ReadFull(b.r, chunk)
	if read > 0 {
		b.buf = append(b.buf, chunk[:read]...)
	}
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			b.eof = true
			return read > 0, nil
		}
		return false, fmt.Errorf("block: read %s: %w", b.r.Name(), err)
	}
	return true, nil
}

// advance drops the first n bytes of buf, moving pos forward.
func (b *base) advance(n int) {
	b.buf = b.buf[n:]
	b.pos += int64(n)
}

// overflow discards the whole buffer because no block could be parsed
// before hitting MaxBufferSize, arming discard so the next partial block is
// dropped too.
func (b *base) overflow() error {
	begin, end := b.pos, b.pos+int64(len(b.buf))
	path := b.r.Name()
	if b.opts.Strict {
		b.advance(len(b.buf))
		return &PartialBlockError{Path: path, Begin: begin, End: end}
	}
	b.advance(len(b.buf))
	b.discard = true
	return nil
}
