package room

import (
	"encoding/json"
	"sort"

	"github.com/Polqt/collabroom/crdt"
	"github.com/Polqt/collabroom/presence"
	"github.com/Polqt/collabroom/wire"
)

// scheduleFlush arms the throttle timer if it isn't already armed.
// Multiple local mutations within one ThrottleDelay window coalesce into
// a single socket write when the timer fires, per SPEC_FULL.md §4.7.
func (r *Room) scheduleFlush() {
	if r.flushTimer != nil {
		return
	}
	r.flushTimer = r.eff.ScheduleTimer(r.opts.ThrottleDelay, func() {
		r.exec(func() {
			r.flushTimer = nil
			r.tryFlushing()
		})
	})
}

// BroadcastEvent queues an application event for the next flush. Per
// spec.md §2.08's outbound ordering, a flush sends the presence update
// first, then any buffered broadcasts, then one UPDATE_STORAGE carrying
// buffered ops. Targeted presence and fetch-storage messages are not
// buffered; they are sent as soon as they are produced.
func (r *Room) BroadcastEvent(event json.RawMessage) {
	r.exec(func() {
		r.pendingBroadcasts = append(r.pendingBroadcasts, event)
		r.scheduleFlush()
	})
}

// tryFlushing sends whatever is buffered, if the socket is open. While
// it is not, the presence buffer and offlineOps are kept for the
// connection to reopen, where resendOfflineOps/sendFullPresence replay
// them; the outbound op buffer is dropped (every op in it is already in
// offlineOps) and so are pending broadcasts, since a stale event from
// before the drop is no longer meaningful to deliver.
func (r *Room) tryFlushing() {
	if r.socket == nil || r.state.Kind != ConnOpen {
		r.pendingOutboundOps = nil
		r.pendingBroadcasts = nil
		return
	}

	if r.presenceBuffer != nil {
		buf := r.presenceBuffer
		r.presenceBuffer = nil
		r.sendPresenceBuffer(buf.Kind, buf.Data)
	}

	if len(r.pendingBroadcasts) > 0 {
		events := r.pendingBroadcasts
		r.pendingBroadcasts = nil
		for _, event := range events {
			r.sendJSON(wire.ClientBroadcastEventMsg{Type: wire.ClientBroadcastEvent, Event: event})
		}
	}

	if len(r.pendingOutboundOps) == 0 {
		return
	}
	ops := r.pendingOutboundOps
	r.pendingOutboundOps = nil
	r.sendStorageOps(ops)
}

func (r *Room) sendPresenceBuffer(kind presence.BufferKind, data presence.Data) {
	raw, err := json.Marshal(data)
	if err != nil {
		r.logger.Warn("room: encode presence patch failed", "err", err)
		return
	}
	msg := wire.ClientUpdatePresenceMsg{Type: wire.ClientUpdatePresence, Data: raw}
	if kind == presence.BufferFull {
		target := wire.FullPresenceTarget
		msg.TargetActor = &target
	}
	r.sendJSON(msg)
}

// sendFullPresence broadcasts the local presence wholesale, called once
// a connection opens so newly (re)joined peers see a complete snapshot
// rather than having to replay every partial patch since the session
// began.
func (r *Room) sendFullPresence() {
	target := wire.FullPresenceTarget
	raw, err := json.Marshal(r.myPresence)
	if err != nil {
		r.logger.Warn("room: encode full presence failed", "err", err)
		return
	}
	r.sendJSON(wire.ClientUpdatePresenceMsg{Type: wire.ClientUpdatePresence, Data: raw, TargetActor: &target})
}

// sendTargetedPresence addresses this client's current full presence to
// one specific actor (a newcomer), so they see us immediately instead of
// waiting for the next throttled broadcast or ROOM_STATE poll.
func (r *Room) sendTargetedPresence(target int) {
	if r.socket == nil {
		return
	}
	raw, err := json.Marshal(r.myPresence)
	if err != nil {
		r.logger.Warn("room: encode targeted presence failed", "err", err)
		return
	}
	r.sendJSON(wire.ClientUpdatePresenceMsg{Type: wire.ClientUpdatePresence, Data: raw, TargetActor: &target})
}

func (r *Room) sendFetchStorage() {
	r.sendJSON(wire.ClientFetchStorageMsg{Type: wire.ClientFetchStorage})
}

// resendOfflineOps replays every outstanding unacked local op on a fresh
// connection, in deterministic opId order, so the server re-derives
// exactly the state this client already applied optimistically while
// offline.
func (r *Room) resendOfflineOps() {
	if !r.storageLoaded || len(r.offlineOps) == 0 {
		return
	}
	ops := make([]crdt.Op, 0, len(r.offlineOps))
	for _, op := range r.offlineOps {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID() < ops[j].ID() })
	r.sendStorageOps(ops)
}

func (r *Room) sendStorageOps(ops []crdt.Op) {
	raws, err := crdt.EncodeOps(ops)
	if err != nil {
		r.logger.Warn("room: encode storage ops failed", "err", err)
		return
	}
	r.sendJSON(wire.ClientUpdateStorageMsg{Type: wire.ClientUpdateStorage, Ops: raws})
}

func (r *Room) sendJSON(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("room: marshal outbound message failed", "err", err)
		return
	}
	if err := r.eff.Send(r.socket, string(raw)); err != nil {
		r.logger.Warn("room: send failed", "err", err)
	}
}
