// Package history implements the bounded undo/redo stacks and the
// batch (transactional grouping) semantics of SPEC_FULL.md §4.6.
package history

import "github.com/Polqt/collabroom/presence"

// MaxEntries bounds undoStack.length per invariant 6 in SPEC_FULL.md §3.
const MaxEntries = 50

// Item is one element of a history Entry: either an Op (typed as `any`
// here so this package stays independent of crdt's concrete Op type —
// room glues the two together) or a presence patch captured for undo.
type Item struct {
	Op       any // crdt.Op, or nil if this item is a presence patch
	Presence presence.Data
}

// Entry is one undoable unit: a sequence of items applied/reverted
// together.
type Entry []Item

// Stacks holds the undo/redo history plus batch/pause bookkeeping.
type Stacks struct {
	undo []Entry
	redo []Entry

	paused       bool
	pausedEntry  Entry
	batching     bool
	batchEntry   Entry
}

// NewStacks returns empty undo/redo stacks.
func NewStacks() *Stacks { return &Stacks{} }

// CanUndo reports whether Undo would have an entry to pop.
func (s *Stacks) CanUndo() bool { return len(s.undo) > 0 }

// CanRedo reports whether Redo would have an entry to pop.
func (s *Stacks) CanRedo() bool { return len(s.redo) > 0 }

// UndoLen and RedoLen expose stack depth for tests/assertions.
func (s *Stacks) UndoLen() int { return len(s.undo) }
func (s *Stacks) RedoLen() int { return len(s.redo) }

// IsBatching reports whether a Batch is currently open.
func (s *Stacks) IsBatching() bool { return s.batching }

// IsPaused reports whether history appends are currently redirected into
// the paused buffer instead of the undo stack.
func (s *Stacks) IsPaused() bool { return s.paused }

// Append records entry as a new undoable unit, per invariant 7/6:
// during a batch its items accumulate into the batch's single entry
// (committed by EndBatch), and while paused they accumulate into the
// paused buffer (committed by Resume). Otherwise a non-empty append is
// pushed and clears the redo stack (invariant/property: "any local
// mutation outside undo/redo empties redoStack"); batched and paused
// appends clear it when EndBatch/Resume commits them.
func (s *Stacks) Append(entry Entry) {
	if len(entry) == 0 {
		return
	}
	if s.batching {
		s.batchEntry = append(s.batchEntry, entry...)
		return
	}
	if s.paused {
		s.pausedEntry = append(s.pausedEntry, entry...)
		return
	}
	s.push(entry)
	s.redo = nil
}

func (s *Stacks) push(entry Entry) {
	s.undo = append(s.undo, entry)
	if len(s.undo) > MaxEntries {
		s.undo = s.undo[1:]
	}
}

// Pause redirects subsequent Append calls into a single pending entry
// instead of the undo stack, until Resume.
func (s *Stacks) Pause() {
	s.paused = true
}

// Resume flushes whatever was accumulated while paused as one history
// entry and stops redirecting.
func (s *Stacks) Resume() {
	s.paused = false
	if len(s.pausedEntry) > 0 {
		entry := s.pausedEntry
		s.pausedEntry = nil
		s.push(entry)
		s.redo = nil
	}
}

// BeginBatch opens a batch. Callers must check IsBatching first — nested
// batches are a caller error (SPEC_FULL.md §7), and Stacks itself does
// not guard against it so the caller can produce a precise panic message
// with context this package doesn't have.
func (s *Stacks) BeginBatch() {
	s.batching = true
	s.batchEntry = nil
}

// EndBatch closes the batch, appending its accumulated entry as one
// history unit (if non-empty) and reporting whether anything was
// produced (so the caller knows whether to clear the redo stack and emit
// a notification).
func (s *Stacks) EndBatch() (entry Entry, produced bool) {
	entry = s.batchEntry
	s.batching = false
	s.batchEntry = nil
	if len(entry) == 0 {
		return entry, false
	}
	s.push(entry)
	s.redo = nil
	return entry, true
}

// PopUndo pops the most recent undo entry. It does not touch the redo
// stack: the caller computes and pushes the reverse entry via PushRedo
// once it has applied the popped entry. Returns false if there is
// nothing to undo.
func (s *Stacks) PopUndo() (Entry, bool) {
	if len(s.undo) == 0 {
		return nil, false
	}
	n := len(s.undo) - 1
	entry := s.undo[n]
	s.undo = s.undo[:n]
	return entry, true
}

// PushRedo pushes an entry produced by undoing onto the redo stack.
func (s *Stacks) PushRedo(entry Entry) {
	if len(entry) == 0 {
		return
	}
	s.redo = append(s.redo, entry)
	if len(s.redo) > MaxEntries {
		s.redo = s.redo[1:]
	}
}

// PopRedo is PopUndo's mirror for Redo().
func (s *Stacks) PopRedo() (Entry, bool) {
	if len(s.redo) == 0 {
		return nil, false
	}
	n := len(s.redo) - 1
	entry := s.redo[n]
	s.redo = s.redo[:n]
	return entry, true
}

// PushUndo pushes an entry produced by redoing back onto the undo stack.
func (s *Stacks) PushUndo(entry Entry) {
	if len(entry) == 0 {
		return
	}
	s.push(entry)
}
