package room

import (
	"github.com/Polqt/collabroom/crdt"
	"github.com/Polqt/collabroom/history"
	"github.com/Polqt/collabroom/presence"
)

// Tx is the handle a Batch callback mutates through. Go has no implicit
// call-context the way the source's closure-based batch(fn) does, so
// the batched mutations go through this explicit handle instead of the
// room's normal public methods — which lets Batch run fn directly on
// the loop goroutine without a callback re-entering the internal
// command channel (which would deadlock a single-goroutine serializer).
type Tx struct {
	r *Room
}

// UpdateStorage applies ops within the enclosing batch.
func (t *Tx) UpdateStorage(ops []crdt.Op) { t.r.dispatchLocalOps(ops) }

// UpdatePresence merges patch within the enclosing batch, always
// recorded onto the batch's coalesced undo entry.
func (t *Tx) UpdatePresence(patch presence.Data) { t.r.applyLocalPresence(patch, true) }

// Batch runs fn with every mutation it makes through tx coalesced into
// one undo entry, per SPEC_FULL.md §4.6. Notifications are not deferred:
// each tx call notifies node and presence subscribers as it applies, as
// it would outside a batch. Nested Batch calls panic (caller error,
// matching spec.md §7's programmer-misuse convention); calling any other
// Room public method from inside fn (rather than the tx handle it was
// given) reenters the internal command channel from its own consumer
// goroutine and hangs instead, which is why Tx exists: use it, not the
// closed-over *Room.
//
// batching is set for the duration of fn so Batch, Undo and Redo, called
// from any goroutine, can detect and reject the attempt before ever
// touching the internal command channel — checking inside exec's closure
// would be too late: the loop goroutine is busy running fn synchronously
// and isn't there to receive the call, so the channel send would hang
// instead of panicking.
func (r *Room) Batch(fn func(tx *Tx)) {
	if r.batching.Load() {
		panic("room: nested Batch")
	}
	r.exec(func() {
		tx := &Tx{r: r}
		r.batching.Store(true)
		defer r.batching.Store(false)
		r.hist.Batch(func() { fn(tx) }, nil)
	})
}

// Undo reverts the most recent history entry, pushing its inverse onto
// the redo stack. A no-op if the undo stack is empty. Panics if called
// while a Batch is in flight, per spec.md §4.6/§7.
func (r *Room) Undo() {
	if r.batching.Load() {
		panic("room: Undo called during a batch")
	}
	r.exec(func() {
		entry, ok := r.hist.PopUndo()
		if !ok {
			return
		}
		r.hist.PushRedo(r.applyHistoryEntry(entry))
	})
}

// Redo reapplies the most recently undone entry, pushing its inverse
// back onto the undo stack. A no-op if the redo stack is empty. Panics
// if called while a Batch is in flight, per spec.md §4.6/§7.
func (r *Room) Redo() {
	if r.batching.Load() {
		panic("room: Redo called during a batch")
	}
	r.exec(func() {
		entry, ok := r.hist.PopRedo()
		if !ok {
			return
		}
		r.hist.PushUndo(r.applyHistoryEntry(entry))
	})
}

// CanUndo/CanRedo report whether Undo/Redo would do anything.
func (r *Room) CanUndo() bool {
	var out bool
	r.exec(func() { out = r.hist.CanUndo() })
	return out
}

func (r *Room) CanRedo() bool {
	var out bool
	r.exec(func() { out = r.hist.CanRedo() })
	return out
}

// PauseHistory redirects subsequent mutations into one pending entry
// instead of the undo stack, until ResumeHistory.
func (r *Room) PauseHistory() { r.exec(r.hist.Pause) }

// ResumeHistory flushes whatever accumulated while paused as a single
// undo entry.
func (r *Room) ResumeHistory() { r.exec(r.hist.Resume) }

// applyHistoryEntry replays entry's items (which are already, by
// construction, the inverse of whatever forward mutation produced them)
// and returns their own inverse, so the caller can push it onto the
// opposite stack. Op items immediately adjacent to each other are
// grouped into one crdt.ApplyOps call so a multi-op entry produces one
// coalesced set of node-update notifications instead of one per op.
func (r *Room) applyHistoryEntry(entry history.Entry) history.Entry {
	var result history.Entry
	var opRun []crdt.Op

	flushRun := func() {
		if len(opRun) == 0 {
			return
		}
		updates, reverse, _ := crdt.ApplyOps(r.reg, opRun, true, r.offlineOps, r.reg.GenerateOpID)
		for _, op := range opRun {
			r.offlineOps[op.ID()] = op
		}
		for nodeID, update := range updates {
			r.notifyNodeUpdate(nodeID, update)
		}
		r.pendingOutboundOps = append(r.pendingOutboundOps, opRun...)
		for _, op := range reverse {
			result = append(result, history.Item{Op: op})
		}
		opRun = nil
	}

	for _, item := range entry {
		if op, ok := item.Op.(crdt.Op); ok {
			opRun = append(opRun, op)
			continue
		}
		flushRun()

		reversePatch := reversePresencePatch(r.myPresence, item.Presence)
		r.myPresence = presence.Merge(r.myPresence, item.Presence)
		r.myPresenceTopic.Emit(r.myPresence.Clone())
		r.presenceBuffer = r.presenceBuffer.Push(presence.BufferPartial, item.Presence)
		result = append(result, history.Item{Presence: reversePatch})
	}
	flushRun()

	r.scheduleFlush()
	return result
}
