// Package presence holds per-connection ephemeral state: the local
// participant's own presence, the buffered update awaiting flush, and
// the view of other connected participants.
package presence

import "encoding/json"

// Data is a flat presence document: arbitrary JSON-valued keys.
type Data map[string]json.RawMessage

// Clone returns an independent shallow copy.
func (d Data) Clone() Data {
	c := make(Data, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// Merge applies patch onto old: a key set to JSON null deletes the key
// (the wire format's way of retracting a presence key); any other value
// overwrites it. Returns a new Data, leaving old untouched.
func Merge(old, patch Data) Data {
	out := old.Clone()
	for k, v := range patch {
		if string(v) == "null" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// BufferKind discriminates a pending presence flush: a full update
// declares "my entire presence is this", a partial update carries only
// the changed keys.
type BufferKind int

const (
	BufferPartial BufferKind = iota + 1
	BufferFull
)

// Buffer is the not-yet-flushed presence write queued by UpdatePresence
// calls, per SPEC_FULL.md §3/§4.6. A nil *Buffer means nothing is
// pending.
type Buffer struct {
	Kind BufferKind
	Data Data
}

// Push folds one more presence patch into the buffer, implementing the
// coalescing rule from SPEC_FULL.md §4.6:
//   - nil buffer adopts the kind of the first update;
//   - a queued full update absorbs later partials into its data (stays full);
//   - a queued partial absorbs later keys from both partial and full
//     updates into its data (stays partial).
func (b *Buffer) Push(kind BufferKind, patch Data) *Buffer {
	if b == nil {
		return &Buffer{Kind: kind, Data: patch.Clone()}
	}
	b.Data = Merge(b.Data, patch)
	return b
}
