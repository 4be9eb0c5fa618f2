package block

import "bytes"

// LineIterator emits one Block per terminal-delimited line, terminal
// included in Raw.
type LineIterator struct {
	b        *base
	terminal []byte
}

// NewLineIterator builds a line-mode iterator over r, splitting on terminal.
func NewLineIterator(r ReadSeekNamer, terminal string, opts Options) (*LineIterator, error) {
	b, err := newBase(r, opts)
	if err != nil {
		return nil, err
	}
	if terminal == "" {
		terminal = "\n"
	}
	return &LineIterator{b: b, terminal: []byte(terminal)}, nil
}

// Next returns the next complete line, reading from the stream as needed.
func (it *LineIterator) Next() (Block, bool, error) {
	for {
		if blk, ok := it.parse(); ok {
			return blk, true, nil
		}
		grew, err := it.b.fill()
		if err != nil {
			return Block{}, false, err
		}
		if !grew {
			if len(it.b.buf) == 0 {
				return Block{}, false, nil
			}
			if err := it.b.overflow(); err != nil {
				return Block{}, false, err
			}
			if it.b.eof {
				// remainder is a partial trailing line: never emitted.
				return Block{}, false, nil
			}
		}
	}
}

func (it *LineIterator) parse() (Block, bool) {
	buf := it.b.buf
	idx := bytes.Index(buf, it.terminal)
	if idx < 0 {
		return Block{}, false
	}
	end := idx + len(it.terminal)
	raw := append([]byte(nil), buf[:end]...)
	begin := it.b.pos
	it.b.advance(end)
	if it.b.discard {
		it.b.discard = false
		return it.parse()
	}
	return Block{Path: it.b.r.Name(), Begin: begin, End: begin + int64(len(raw)), Raw: raw}, true
}
