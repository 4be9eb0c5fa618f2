package block

import (
	"bytes"
	"regexp"
)

// MultiLineIterator emits one Block per record whose start is marked by a
// prefix regex match and whose end is the byte just before the next prefix
// match that is itself immediately preceded by terminal.
type MultiLineIterator struct {
	b        *base
	prefix   *regexp.Regexp
	terminal []byte
	started  bool // true once the first prefix match has been located
}

// NewMultiLineIterator builds a multi-line iterator over r.
func NewMultiLineIterator(r ReadSeekNamer, prefix *regexp.Regexp, terminal string, opts Options) (*MultiLineIterator, error) {
	b, err := newBase(r, opts)
	if err != nil {
		return nil, err
	}
	if terminal == "" {
		terminal = "\n"
	}
	return &MultiLineIterator{b: b, prefix: prefix, terminal: []byte(terminal)}, nil
}

func (it *MultiLineIterator) Next() (Block, bool, error) {
	for {
		blk, ok, done, err := it.parse()
		if err != nil {
			return Block{}, false, err
		}
		if ok {
			return blk, true, nil
		}
		if done {
			return Block{}, false, nil
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
				return Block{}, false, nil
			}
		}
	}
}

// parse attempts one block extraction. done is true at EOF once nothing
// more can be emitted (caller should stop); ok and done both false means
// more data is needed (caller should fill).
func (it *MultiLineIterator) parse() (blk Block, ok bool, done bool, err error) {
	buf := it.b.buf

	first := it.prefix.FindIndex(buf)
	if first == nil {
		return Block{}, false, false, nil
	}
	if first[0] != 0 {
		// bytes before the first prefix match are a partial leading block.
		begin, end := it.b.pos, it.b.pos+int64(first[0])
		path := it.b.r.Name()
		if it.b.opts.Strict {
			return Block{}, false, false, &PartialBlockError{Path: path, Begin: begin, End: end}
		}
		it.b.advance(first[0])
		return it.parse()
	}

	// Search forward for the next prefix match preceded by exactly terminal.
	searchFrom := len(it.terminal)
	for searchFrom <= len(buf) {
		rest := buf[searchFrom:]
		next := it.prefix.FindIndex(rest)
		if next == nil {
			break
		}
		matchStart := searchFrom + next[0]
		if matchStart < len(it.terminal) {
			searchFrom = searchFrom + next[0] + 1
			continue
		}
		if bytes.Equal(buf[matchStart-len(it.terminal):matchStart], it.terminal) {
			raw := append([]byte(nil), buf[:matchStart]...)
			begin := it.b.pos
			it.b.advance(matchStart)
			if it.b.discard {
				it.b.discard = false
				return it.parse()
			}
			return Block{Path: it.b.r.Name(), Begin: begin, End: begin + int64(len(raw)), Raw: raw}, true, false, nil
		}
		searchFrom = matchStart + 1
	}

	// No confirmed next boundary yet; only safe to emit at EOF, and only if
	// the buffer already ends with terminal.
	if it.b.eof {
		if len(buf) >= len(it.terminal) && bytes.Equal(buf[len(buf)-len(it.terminal):], it.terminal) {
			raw := append([]byte(nil), buf...)
			begin := it.b.pos
			it.b.advance(len(buf))
			if it.b.discard {
				it.b.discard = false
				return Block{}, false, true, nil
			}
			return Block{Path: it.b.r.Name(), Begin: begin, End: begin + int64(len(raw)), Raw: raw}, true, false, nil
		}
		if len(buf) == 0 {
			return Block{}, false, true, nil
		}
		// trailing partial block at EOF.
		if it.b.opts.Strict {
			begin, end := it.b.pos, it.b.pos+int64(len(buf))
			return Block{}, false, false, &PartialBlockError{Path: it.b.r.Name(), Begin: begin, End: end}
		}
		return Block{}, false, true, nil
	}
	return Block{}, false, false, nil
}
