package room

import (
	"encoding/json"

	"github.com/Polqt/collabroom/history"
	"github.com/Polqt/collabroom/presence"
)

// UpdatePresence merges patch into the local presence and buffers it for
// the next flush. addToHistory opts the patch into the undo stack —
// callers doing high-frequency updates (cursor moves) normally pass
// false, since historying every one of those would flood the bounded
// undo stack with entries nobody wants to step back through.
func (r *Room) UpdatePresence(patch presence.Data, addToHistory bool) {
	r.exec(func() { r.applyLocalPresence(patch, addToHistory) })
}

// applyLocalPresence is the shared core behind UpdatePresence and Tx's
// in-batch presence writes. Must only run on the loop goroutine.
func (r *Room) applyLocalPresence(patch presence.Data, addToHistory bool) {
	if len(patch) == 0 {
		return
	}
	reversePatch := reversePresencePatch(r.myPresence, patch)
	r.myPresence = presence.Merge(r.myPresence, patch)
	r.myPresenceTopic.Emit(r.myPresence.Clone())
	r.presenceBuffer = r.presenceBuffer.Push(presence.BufferPartial, patch)
	r.scheduleFlush()
	if addToHistory {
		r.hist.Append(history.Entry{{Presence: reversePatch}})
	}
}

// reversePresencePatch computes the patch that, applied on top of the
// post-patch presence, restores the pre-patch values: a key that didn't
// exist before the patch reverses to JSON null (deletes it back out),
// per presence.Merge's null-deletes-key rule.
func reversePresencePatch(before presence.Data, patch presence.Data) presence.Data {
	reverse := make(presence.Data, len(patch))
	for k := range patch {
		if old, existed := before[k]; existed {
			reverse[k] = old
		} else {
			reverse[k] = json.RawMessage("null")
		}
	}
	return reverse
}

// GetPresence returns the local participant's current presence.
func (r *Room) GetPresence() presence.Data {
	var out presence.Data
	r.exec(func() { out = r.myPresence.Clone() })
	return out
}

// GetOthers returns a snapshot of every other participant currently
// visible (i.e. whose initial full presence has already arrived).
func (r *Room) GetOthers() presence.Others {
	var out presence.Others
	r.exec(func() {
		var users []presence.User
		for actor, initial := range r.gotInitial {
			if initial {
				users = append(users, r.others[actor])
			}
		}
		out = presence.NewOthers(users)
	})
	return out
}
