// Package sink defines the contract a channel delivers forms to.
package sink

import "github.com/shiplog/shiplog/pkg/block"

// Sink accepts one form at a time and may buffer it before acknowledging.
//
// Accept returns pending=false once b is durably accepted by the
// downstream system and the channel may advance its tracker past b.End
// immediately. It returns pending=true when b has merely been buffered;
// the channel holds b.End as pending until a later acknowledged form or a
// successful Flush.
//
// Flush is all-or-nothing: either every currently buffered form has been
// delivered and it returns nil, or none of them have and it returns an
// error.
type Sink interface {
	Accept(form any, b block.Block) (pending bool, err error)
	Flush() error
}
