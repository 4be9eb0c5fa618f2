package channel

import (
	"encoding/json"
	"fmt"
	"io"
)

// editDocument is the on-wire shape for Edit: {"tracker": {"<path>": <offset>, ...}}.
type editDocument struct {
	Tracker map[string]int64 `json:"tracker"`
}

// ReadState serializes the channel's current tracker contents as JSON in
// the {"tracker": {...}} shape used by operational edit tooling.
func (c *Channel) ReadState(w io.Writer) error {
	doc := editDocument{Tracker: make(map[string]int64)}
	if err := c.Tracker.Each(func(path string, offset int64) bool {
		doc.Tracker[path] = offset
		return true
	}); err != nil {
		return fmt.Errorf("channel %s: read state: %w", c.Name, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteState reads a {"tracker": {...}} document from r and applies every
// entry to the channel's tracker, overwriting existing offsets. The whole
// document is validated before any entry is applied, so a malformed
// document leaves the tracker untouched.
func (c *Channel) WriteState(r io.Reader) (int, error) {
	var doc editDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("channel %s: decode state: %w", c.Name, err)
	}
	for path, offset := range doc.Tracker {
		if offset < 0 {
			return 0, fmt.Errorf("channel %s: negative offset for %s", c.Name, path)
		}
	}
	applied := 0
	for path, offset := range doc.Tracker {
		if err := c.Tracker.Set(path, offset); err != nil {
			return applied, fmt.Errorf("channel %s: set %s: %w", c.Name, path, err)
		}
		applied++
	}
	return applied, nil
}
