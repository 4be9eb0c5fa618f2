// Package source owns glob matching, block-content extraction, redaction,
// structured form mapping and filtering for one configured log source.
package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/shiplog/shiplog/pkg/block"
	"github.com/shiplog/shiplog/pkg/form"
)

// ErrNoMatch is returned (or logged, in non-strict mode) when Pattern does
// not match a block's raw content.
var ErrNoMatch = errors.New("source: pattern did not match block")

// ErrForm is returned (or logged) when the form mapping rejects a matched
// block's fields.
var ErrForm = errors.New("source: form mapping failed")

// Filter reports whether a matched, form-mapped record should be delivered
// to the sink. It never returns an error: a filter drop is not a failure.
type Filter func(record any, fields map[string]string, b block.Block) bool

// Source is one configured file pattern plus its parsing pipeline.
type Source struct {
	Name         string
	Globs        []string
	ExcludeGlobs []string

	Multiline bool
	Prefix    *regexp.Regexp // required when Multiline is true
	Terminal  string
	Pattern   *regexp.Regexp // applied to each block's raw content

	Rules  []ProcessingRule
	Form   form.Func
	Filter Filter

	Strict     bool
	ReadSize   int
	BufferSize int
}

// Match reports whether path is selected by this source's globs.
func (s *Source) Match(path string) bool {
	matched := false
	for _, g := range s.Globs {
		if ok, _ := filepath.Match(g, path); ok {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, g := range s.ExcludeGlobs {
		if ok, _ := filepath.Match(g, path); ok {
			return false
		}
	}
	return true
}

// Blocks builds the appropriate block.Iterator for this source's
// configuration over an already-positioned file.
func (s *Source) Blocks(f block.ReadSeekNamer) (block.Iterator, error) {
	opts := block.Options{ReadSize: s.ReadSize, MaxBufferSize: s.BufferSize, Strict: s.Strict}
	if s.Multiline {
		if s.Prefix == nil {
			return nil, fmt.Errorf("source %s: multiline source missing Prefix", s.Name)
		}
		return block.NewMultiLineIterator(f, s.Prefix, s.Terminal, opts)
	}
	return block.NewLineIterator(f, s.Terminal, opts)
}

// Record pairs a form-mapped value with the block it was extracted from.
type Record struct {
	Value any
	Block block.Block
}

// FormIterator yields Records, applying redaction rules, the Pattern
// extraction, the Form mapping and the Filter in sequence.
type FormIterator struct {
	src    *Source
	blocks block.Iterator
}

// Forms wraps Blocks with this source's matching/mapping/filtering pipeline.
func (s *Source) Forms(f block.ReadSeekNamer) (*FormIterator, error) {
	it, err := s.Blocks(f)
	if err != nil {
		return nil, err
	}
	return &FormIterator{src: s, blocks: it}, nil
}

// Next returns the next delivered Record. It skips blocks dropped by
// redaction rules or the Filter. ok is false at clean end of stream.
func (fi *FormIterator) Next() (Record, bool, error) {
	for {
		b, ok, err := fi.blocks.Next()
		if err != nil {
			return Record{}, false, err
		}
		if !ok {
			return Record{}, false, nil
		}

		content := b.Raw
		if len(fi.src.Rules) > 0 {
			keep, redacted := applyRules(fi.src.Rules, content)
			if !keep {
				continue
			}
			content = redacted
		}

		var fields map[string]string
		if fi.src.Pattern != nil {
			m := fi.src.Pattern.FindSubmatch(content)
			if m == nil {
				if fi.src.Strict {
					return Record{Block: b}, false, fmt.Errorf("%w: %s", ErrNoMatch, fi.src.Name)
				}
				continue
			}
			fields = namedGroups(fi.src.Pattern, m)
		} else {
			fields = map[string]string{"raw": string(content)}
		}

		var value any = fields
		if fi.src.Form != nil {
			value, err = fi.src.Form(fields)
			if err != nil {
				if fi.src.Strict {
					return Record{Block: b}, false, fmt.Errorf("%w: %v", ErrForm, err)
				}
				continue
			}
		}

		if fi.src.Filter != nil && !fi.src.Filter(value, fields, b) {
			continue
		}

		return Record{Value: value, Block: b}, true, nil
	}
}

func namedGroups(re *regexp.Regexp, match [][]byte) map[string]string {
	out := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" || i >= len(match) {
			continue
		}
		if match[i] != nil {
			out[name] = string(match[i])
		}
	}
	return out
}
