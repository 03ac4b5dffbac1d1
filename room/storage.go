package room

import (
	"context"

	"github.com/Polqt/collabroom/crdt"
	"github.com/Polqt/collabroom/history"
)

// UpdateStorage applies ops locally (optimistically), records their
// reverse onto the undo stack (unless a batch/pause redirects it), and
// queues them for the next flush. ops are the structural primitive the
// whole storage model is built from (SPEC_FULL.md §3/§4.3) — this
// package does not layer a LiveObject/LiveMap/LiveList convenience API
// on top; callers (or cmd/roomclient) build ops directly.
func (r *Room) UpdateStorage(ops []crdt.Op) {
	r.exec(func() { r.dispatchLocalOps(ops) })
}

// dispatchLocalOps is the shared core behind UpdateStorage and Tx's
// in-batch mutation: assign ids, apply, notify, queue for flush, append
// history. Must only run on the loop goroutine.
func (r *Room) dispatchLocalOps(ops []crdt.Op) []crdt.Op {
	if len(ops) == 0 {
		return nil
	}
	updates, reverse, _ := crdt.ApplyOps(r.reg, ops, true, r.offlineOps, r.reg.GenerateOpID)
	for _, op := range ops {
		r.offlineOps[op.ID()] = op
	}
	for nodeID, update := range updates {
		r.notifyNodeUpdate(nodeID, update)
	}
	r.pendingOutboundOps = append(r.pendingOutboundOps, ops...)
	r.scheduleFlush()
	r.hist.Append(opsToEntry(reverse))
	return reverse
}

// GetStorageSnapshot returns a flattened view of every node currently in
// the tree, for inspection/debugging/tests. Mutating the returned map
// has no effect on the room's actual storage.
func (r *Room) GetStorageSnapshot() map[string]crdt.SerializedCrdt {
	var out map[string]crdt.SerializedCrdt
	r.exec(func() { out = crdt.Snapshot(r.reg) })
	return out
}

// StorageHasLoaded reports whether INITIAL_STORAGE_STATE has been
// received (or there never was a connection yet, in which case it's
// false).
func (r *Room) StorageHasLoaded() bool {
	var loaded bool
	r.exec(func() { loaded = r.storageLoaded })
	return loaded
}

// GetStorage resolves once INITIAL_STORAGE_STATE has actually loaded —
// immediately, if it already has — per spec.md §4.5's "pending
// getStorage() promise" and SPEC_FULL.md §9's one-shot completion
// primitive. Unlike GetStorageSnapshot, which reads the registry as it
// stands right now even before any load, GetStorage waits for the real
// thing. Canceling ctx stops the wait without leaking the pending
// listener into the next load.
func (r *Room) GetStorage(ctx context.Context) (map[string]crdt.SerializedCrdt, error) {
	ch := make(chan map[string]crdt.SerializedCrdt, 1)
	r.exec(func() {
		if r.storageLoaded {
			ch <- crdt.Snapshot(r.reg)
			return
		}
		r.storageLoadedWaiters = append(r.storageLoadedWaiters, ch)
	})
	select {
	case snap := <-ch:
		return snap, nil
	case <-ctx.Done():
		r.exec(func() { r.removeStorageWaiter(ch) })
		return nil, ctx.Err()
	}
}

func (r *Room) removeStorageWaiter(ch chan map[string]crdt.SerializedCrdt) {
	for i, w := range r.storageLoadedWaiters {
		if w == ch {
			r.storageLoadedWaiters = append(r.storageLoadedWaiters[:i], r.storageLoadedWaiters[i+1:]...)
			return
		}
	}
}

// resolveStorageWaiters fulfills every pending GetStorage call with one
// shared snapshot, taken once INITIAL_STORAGE_STATE has just loaded.
func (r *Room) resolveStorageWaiters() {
	if len(r.storageLoadedWaiters) == 0 {
		return
	}
	snap := crdt.Snapshot(r.reg)
	waiters := r.storageLoadedWaiters
	r.storageLoadedWaiters = nil
	for _, ch := range waiters {
		ch <- snap
	}
}

func opsToEntry(ops []crdt.Op) history.Entry {
	entry := make(history.Entry, len(ops))
	for i, op := range ops {
		entry[i] = history.Item{Op: op}
	}
	return entry
}
