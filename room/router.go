package room

import (
	"encoding/json"
	"sort"

	"github.com/Polqt/collabroom/crdt"
	"github.com/Polqt/collabroom/presence"
	"github.com/Polqt/collabroom/wire"
)

// handleMessage dispatches one inbound text frame: the heartbeat's
// literal "ping"/"pong" control frames are handled first (they are
// plain text, not JSON, per SPEC_FULL.md's DOMAIN STACK note), anything
// else is peeked at via wire.ServerEnvelope and decoded into its
// concrete shape.
func (r *Room) handleMessage(text string) {
	switch text {
	case wire.PongText:
		r.onPong()
		return
	case wire.PingText:
		if r.socket != nil {
			_ = r.eff.Send(r.socket, wire.PongText)
		}
		return
	}

	var env wire.ServerEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		r.logger.Warn("room: malformed server message", "err", err)
		return
	}

	switch env.Type {
	case wire.ServerRoomState:
		r.handleRoomState(text)
	case wire.ServerUserJoined:
		r.handleUserJoined(text)
	case wire.ServerUserLeft:
		r.handleUserLeft(text)
	case wire.ServerUpdatePresence:
		r.handleUpdatePresence(text)
	case wire.ServerBroadcastedEvent:
		r.handleBroadcastedEvent(text)
	case wire.ServerInitialStorageState:
		r.handleInitialStorageState(text)
	case wire.ServerUpdateStorage:
		r.handleUpdateStorage(text)
	default:
		r.logger.Warn("room: unknown server message type", "type", env.Type)
	}
}

func (r *Room) handleRoomState(text string) {
	var msg wire.RoomStateMsg
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		r.logger.Warn("room: bad ROOM_STATE", "err", err)
		return
	}
	r.others = map[int64]presence.User{}
	r.gotInitial = map[int64]bool{}
	r.pendingPresence = map[int64]presence.Data{}
	for _, u := range msg.Users {
		r.others[int64(u.Actor)] = presence.User{ConnectionID: u.Actor, ID: u.ID, Info: []byte(u.Info)}
	}
	// No Others emission yet: per SPEC_FULL.md's gating rule, a user only
	// becomes visible once its first full presence has arrived.
}

func (r *Room) handleUserJoined(text string) {
	var msg wire.UserJoinedMsg
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		r.logger.Warn("room: bad USER_JOINED", "err", err)
		return
	}
	actor := int64(msg.Actor)
	r.others[actor] = presence.User{ConnectionID: msg.Actor, ID: msg.ID, Info: []byte(msg.Info)}
	delete(r.gotInitial, actor)
	delete(r.pendingPresence, actor)
	// Per spec.md §4.2, a newcomer gets our full presence addressed
	// directly to them rather than waiting for the next throttled
	// broadcast or them polling ROOM_STATE again.
	r.sendTargetedPresence(msg.Actor)
}

func (r *Room) handleUserLeft(text string) {
	var msg wire.UserLeftMsg
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		r.logger.Warn("room: bad USER_LEFT", "err", err)
		return
	}
	actor := int64(msg.Actor)
	_, wasVisible := r.gotInitial[actor]
	delete(r.others, actor)
	delete(r.gotInitial, actor)
	delete(r.pendingPresence, actor)
	if wasVisible {
		r.emitOthers()
	}
}

func (r *Room) handleUpdatePresence(text string) {
	var msg wire.UpdatePresenceMsg
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		r.logger.Warn("room: bad UPDATE_PRESENCE", "err", err)
		return
	}
	actor := int64(msg.Actor)
	patch := presence.Data{}
	if err := json.Unmarshal(msg.Data, &patch); err != nil {
		r.logger.Warn("room: bad presence data", "err", err)
		return
	}

	isFull := msg.TargetActor != nil && (int64(*msg.TargetActor) == wire.FullPresenceTarget || int64(*msg.TargetActor) == r.actor)

	if !isFull && !r.gotInitial[actor] {
		// Buffer: we haven't seen this actor's initial full presence yet,
		// so it isn't visible through Others — but keep the patch so it
		// applies on top of the full presence once it does arrive.
		r.pendingPresence[actor] = presence.Merge(r.pendingPresence[actor], patch)
		return
	}

	u, known := r.others[actor]
	if !known {
		u = presence.User{ConnectionID: int(actor)}
	}

	if isFull {
		merged := presence.Merge(presence.Data{}, patch)
		merged = presence.Merge(merged, r.pendingPresence[actor])
		delete(r.pendingPresence, actor)
		u.Presence = merged
		r.gotInitial[actor] = true
	} else {
		u.Presence = presence.Merge(u.Presence, patch)
	}
	r.others[actor] = u
	r.emitOthers()
}

func (r *Room) emitOthers() {
	var users []presence.User
	for actor, initial := range r.gotInitial {
		if !initial {
			continue
		}
		users = append(users, r.others[actor])
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ConnectionID < users[j].ConnectionID })
	r.othersTopic.Emit(presence.NewOthers(users))
}

func (r *Room) handleBroadcastedEvent(text string) {
	var msg wire.BroadcastedEventMsg
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		r.logger.Warn("room: bad BROADCASTED_EVENT", "err", err)
		return
	}
	r.eventTopic.Emit(EventPayload{Actor: int64(msg.Actor), Event: msg.Event})
}

func (r *Room) handleInitialStorageState(text string) {
	var msg wire.InitialStorageStateMsg
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		r.logger.Warn("room: bad INITIAL_STORAGE_STATE", "err", err)
		return
	}
	items, err := crdt.DecodeItems(msg.Items)
	if err != nil {
		r.logger.Warn("room: bad storage items", "err", err)
		return
	}

	if !r.storageLoaded {
		if err := crdt.Load(r.reg, items); err != nil {
			r.logger.Warn("room: storage load failed", "err", err)
			return
		}
		if r.opts.InitialStorage != nil {
			crdt.ApplyDefaults(r.reg, r.opts.InitialStorage)
		}
	} else {
		current := crdt.Snapshot(r.reg)
		incoming := map[string]crdt.SerializedCrdt{}
		for _, it := range items {
			incoming[it.ID] = it
		}
		ops := crdt.DiffOps(current, incoming)
		r.applyRemoteOps(ops)
	}

	r.storageLoaded = true
	r.storageStatusTopic.Emit(true)
	r.resolveStorageWaiters()
}

func (r *Room) handleUpdateStorage(text string) {
	var msg wire.UpdateStorageMsg
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		r.logger.Warn("room: bad UPDATE_STORAGE", "err", err)
		return
	}
	ops, err := crdt.DecodeOps(msg.Ops)
	if err != nil {
		r.logger.Warn("room: bad storage ops", "err", err)
		return
	}
	r.applyRemoteOps(ops)
}

// applyRemoteOps runs ops (remote, or the synthetic diff of a
// reconciliation) through the apply loop and fans the resulting
// per-node diffs out to node/deep subscribers.
func (r *Room) applyRemoteOps(ops []crdt.Op) {
	if len(ops) == 0 {
		return
	}
	updates, _, _ := crdt.ApplyOps(r.reg, ops, false, r.offlineOps, r.reg.GenerateOpID)
	for nodeID, update := range updates {
		r.notifyNodeUpdate(nodeID, update)
	}
}

func (r *Room) notifyNodeUpdate(nodeID string, update crdt.StorageUpdate) {
	if t, ok := r.nodeTopics[nodeID]; ok {
		t.Emit(NodeUpdate{NodeID: nodeID, Update: update})
	}
	payload := NodeUpdate{NodeID: nodeID, Update: update}
	for id, n := range r.deepTopics {
		if id == nodeID || r.isDescendant(nodeID, id) {
			n.Emit(payload)
		}
	}
}

// isDescendant reports whether candidate's parent chain passes through
// ancestor.
func (r *Room) isDescendant(candidate, ancestor string) bool {
	node, ok := r.reg.Get(candidate)
	if !ok {
		return false
	}
	for {
		p := node.Parent()
		if p.Kind != crdt.ParentHasParent {
			return false
		}
		if p.Parent == ancestor {
			return true
		}
		node, ok = r.reg.Get(p.Parent)
		if !ok {
			return false
		}
	}
}
