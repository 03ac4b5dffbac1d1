package crdt

// ApplyOps runs ops through ApplyOp in order, aggregating per-node
// storage updates (merged with mergeStorageUpdates) and reverse ops
// (unshifted so replaying them in order undoes the forward sequence),
// per SPEC_FULL.md §4.3.
//
// offline is the client's outstanding-local-ops map: a remote op whose
// id is found there is this client's own write being echoed back
// (SourceAck) and is removed; a remote op whose id isn't found is a
// genuinely new remote write (SourceRemote). isLocal ops (fresh local
// mutations, and undo/redo replays) always use SourceUndoRedoReconnect
// and are never looked up in offline.
//
// genOpID assigns an id to any op missing one — both fresh local ops
// handed to the room without an id and ops synthesized by undo/redo get
// their id here, before any caller records them by id.
func ApplyOps(reg *Registry, ops []Op, isLocal bool, offline map[string]Op, genOpID func() string) (updates map[string]StorageUpdate, reverse []Op, acked []string) {
	updates = map[string]StorageUpdate{}
	createdNodeIDs := map[string]struct{}{}

	for _, op := range ops {
		if op.ID() == "" {
			op.SetID(genOpID())
		}

		var source OpSource
		switch {
		case isLocal:
			source = SourceUndoRedoReconnect
		default:
			if _, found := offline[op.ID()]; found {
				delete(offline, op.ID())
				acked = append(acked, op.ID())
				source = SourceAck
			} else {
				source = SourceRemote
			}
		}

		result := ApplyOp(reg, op, source)
		if !result.Modified {
			continue
		}

		if isCreateOp(op) {
			createdNodeIDs[result.Update.NodeID] = struct{}{}
		}

		if result.Update.ParentID != "" {
			if _, parentCreatedThisApply := createdNodeIDs[result.Update.ParentID]; parentCreatedThisApply {
				// The parent's own creation already represents this
				// subtree; don't also surface the child as a separate
				// per-node notification.
				reverse = prependAll(reverse, result.Reverse)
				continue
			}
		}

		if existing, ok := updates[result.Update.NodeID]; ok {
			updates[result.Update.NodeID] = mergeStorageUpdates(existing, result.Update)
		} else {
			updates[result.Update.NodeID] = result.Update
		}

		reverse = prependAll(reverse, result.Reverse)
	}

	return updates, reverse, acked
}

func isCreateOp(op Op) bool {
	switch op.Kind() {
	case OpCreateObject, OpCreateList, OpCreateMap, OpCreateRegister:
		return true
	default:
		return false
	}
}

// prependAll unshifts ops onto the front of reverse, preserving ops'
// internal order, so that replaying the final `reverse` slice front to
// back undoes the forward sequence back to front.
func prependAll(reverse []Op, ops []Op) []Op {
	if len(ops) == 0 {
		return reverse
	}
	out := make([]Op, 0, len(ops)+len(reverse))
	out = append(out, ops...)
	out = append(out, reverse...)
	return out
}
