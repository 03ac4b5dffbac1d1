package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/collabroom/presence"
)

func TestOthersStayHiddenUntilFullPresenceArrives(t *testing.T) {
	h := newHarness(t, Options{})
	sock := h.connectAndOpen()

	others := make(chan struct{}, 8)
	h.room.SubscribeOthers(func(o presence.Others) { others <- struct{}{} })

	sock.ServerSend(`{"type":5,"users":[{"actor":2}]}`)
	assert.Equal(t, 0, h.room.GetOthers().Count(), "ROOM_STATE alone must not reveal a participant")

	sock.ServerSend(`{"type":2,"actor":2,"data":{"cursor":"a"}}`)
	assert.Equal(t, 0, h.room.GetOthers().Count(), "a partial update before the initial full presence stays buffered")

	sock.ServerSend(`{"type":2,"actor":2,"targetActor":-1,"data":{"name":"bob"}}`)
	select {
	case <-others:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Others emission")
	}

	o := h.room.GetOthers()
	require.Equal(t, 1, o.Count())
	var seen presence.User
	o.ForEach(func(u presence.User) { seen = u })
	assert.Equal(t, 2, seen.ConnectionID)
	assert.JSONEq(t, `"bob"`, string(seen.Presence["name"]))
	assert.JSONEq(t, `"a"`, string(seen.Presence["cursor"]), "the pre-gating partial patch must merge into the initial full presence")
}

func TestUserLeftHidesAVisibleOther(t *testing.T) {
	h := newHarness(t, Options{})
	sock := h.connectAndOpen()

	sock.ServerSend(`{"type":2,"actor":2,"targetActor":-1,"data":{"name":"bob"}}`)
	require.Eventually(t, func() bool { return h.room.GetOthers().Count() == 1 }, time.Second, time.Millisecond)

	sock.ServerSend(`{"type":4,"actor":2}`)
	require.Eventually(t, func() bool { return h.room.GetOthers().Count() == 0 }, time.Second, time.Millisecond)
}

func TestBroadcastedEventDelivered(t *testing.T) {
	h := newHarness(t, Options{})
	sock := h.connectAndOpen()

	events := make(chan EventPayload, 1)
	h.room.SubscribeEvent(func(ev EventPayload) { events <- ev })

	sock.ServerSend(`{"type":3,"actor":7,"event":{"kind":"ping"}}`)
	select {
	case ev := <-events:
		assert.Equal(t, int64(7), ev.Actor)
		assert.JSONEq(t, `{"kind":"ping"}`, string(ev.Event))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcasted event")
	}
}

func TestRemoteStorageOpApplied(t *testing.T) {
	h := newHarness(t, Options{})
	sock := h.connectAndOpen()
	sock.ServerSend(`{"type":6,"items":[{"id":"root","type":"Object","data":{}}]}`)
	require.Eventually(t, func() bool { return h.room.StorageHasLoaded() }, time.Second, time.Millisecond)

	updates := make(chan NodeUpdate, 1)
	h.room.SubscribeNode("root", func(u NodeUpdate) { updates <- u })

	sock.ServerSend(`{"type":7,"ops":[{"type":"UPDATE_OBJECT","id":"root","data":{"title":"hello"}}]}`)
	select {
	case u := <-updates:
		assert.Equal(t, "root", u.NodeID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for node update")
	}

	snap := h.room.GetStorageSnapshot()
	assert.JSONEq(t, `"hello"`, string(snap["root"].Data["title"]))
}
