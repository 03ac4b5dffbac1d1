package room

import (
	"reflect"

	"github.com/Polqt/collabroom/presence"
	"github.com/Polqt/collabroom/pubsub"
)

// SubscribeConnection fires on every connection state transition.
func (r *Room) SubscribeConnection(fn func(ConnState)) pubsub.Unsubscribe {
	requireCallback(fn)
	return r.connTopic.Subscribe(fn)
}

// SubscribeOthers fires whenever the visible others list changes (a peer
// becoming visible with its first full presence, a visible peer leaving,
// a presence update from a visible peer, or the reset when the
// connection closes). USER_JOINED alone does not fire it.
func (r *Room) SubscribeOthers(fn func(presence.Others)) pubsub.Unsubscribe {
	requireCallback(fn)
	return r.othersTopic.Subscribe(fn)
}

// SubscribeMyPresence fires whenever the local participant's own
// presence changes (UpdatePresence, Undo/Redo of a presence item).
func (r *Room) SubscribeMyPresence(fn func(presence.Data)) pubsub.Unsubscribe {
	requireCallback(fn)
	return r.myPresenceTopic.Subscribe(fn)
}

// SubscribeStorageStatus fires once storage finishes loading (true) —
// SPEC_FULL.md §4.8 names this distinctly from per-node storage
// subscriptions, which fire on the content instead of the load phase.
func (r *Room) SubscribeStorageStatus(fn func(loaded bool)) pubsub.Unsubscribe {
	requireCallback(fn)
	return r.storageStatusTopic.Subscribe(fn)
}

// SubscribeEvent fires on every broadcasted application event.
func (r *Room) SubscribeEvent(fn func(EventPayload)) pubsub.Unsubscribe {
	requireCallback(fn)
	return r.eventTopic.Subscribe(fn)
}

// SubscribeError fires on every connection-level error the FSM surfaces
// instead of recovering from silently: an AuthenticationError, or a
// LiveblocksError for a server-indicated 4000-4100 close.
func (r *Room) SubscribeError(fn func(error)) pubsub.Unsubscribe {
	requireCallback(fn)
	return r.errorTopic.Subscribe(fn)
}

// SubscribeNode fires only when nodeID itself changes (not its
// descendants).
func (r *Room) SubscribeNode(nodeID string, fn func(NodeUpdate)) pubsub.Unsubscribe {
	requireCallback(fn)
	var unsub pubsub.Unsubscribe
	r.exec(func() {
		t, ok := r.nodeTopics[nodeID]
		if !ok {
			t = pubsub.NewTopic[NodeUpdate]()
			r.nodeTopics[nodeID] = t
		}
		unsub = t.Subscribe(fn)
	})
	return unsub
}

// SubscribeNodeDeep fires when nodeID or any of its descendants
// changes.
func (r *Room) SubscribeNodeDeep(nodeID string, fn func(NodeUpdate)) pubsub.Unsubscribe {
	requireCallback(fn)
	var unsub pubsub.Unsubscribe
	r.exec(func() {
		t, ok := r.deepTopics[nodeID]
		if !ok {
			t = pubsub.NewTopic[NodeUpdate]()
			r.deepTopics[nodeID] = t
		}
		unsub = t.Subscribe(fn)
	})
	return unsub
}

// requireCallback panics on a nil callback, matching spec.md §7's
// programmer-misuse convention (a nil subscriber can never usefully
// fire, so this is always a caller bug, not a runtime condition worth
// tolerating silently).
func requireCallback(fn any) {
	if fn == nil || reflect.ValueOf(fn).IsNil() {
		panic("room: subscribe called with a nil callback")
	}
}
