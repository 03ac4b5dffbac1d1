package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/collabroom/wire"
)

func TestColdConnectTransitionSequence(t *testing.T) {
	h := newHarness(t, Options{})
	sock := h.connectAndOpen()
	require.NotNil(t, sock)
	assert.Equal(t, ConnOpen, h.room.GetConnectionState().Kind)

	loaded := make(chan bool, 1)
	h.room.SubscribeStorageStatus(func(l bool) { loaded <- l })

	sock.ServerSend(`{"type":6,"items":[{"id":"root","type":"Object","data":{}}]}`)
	select {
	case l := <-loaded:
		assert.True(t, l)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for storage status")
	}
	assert.True(t, h.room.StorageHasLoaded())
}

func TestServerFailureCloseVisitsFailedThenUnavailableAndReconnectsOnSlowBackoff(t *testing.T) {
	h := newHarness(t, Options{})
	sock := h.connectAndOpen()

	errs := make(chan error, 1)
	h.room.SubscribeError(func(err error) { errs <- err })

	sock.ServerClose(4001, "room full")

	s := h.waitState(ConnFailed)
	require.Error(t, s.Err)
	assert.Contains(t, s.Err.Error(), "4001")

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "4001")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the error listener to fire")
	}

	s = h.waitState(ConnUnavailable)
	require.Error(t, s.Err, "the failure must still be visible once the FSM moves on to unavailable")

	// slow backoff's first entry is 2s, not fast backoff's 250ms.
	h.fake.Advance(1900 * time.Millisecond)
	select {
	case s := <-h.states:
		t.Fatalf("reconnected too early on fast backoff: %v", s.Kind)
	case <-time.After(50 * time.Millisecond):
	}

	h.fake.Advance(100 * time.Millisecond)
	h.waitState(ConnAuthenticating)
	h.waitState(ConnConnecting)
	h.barrier()
	sock2 := h.nextSocket()
	sock2.Open()
	h.waitState(ConnOpen)
}

func TestNonFailureCloseReconnectsWithBackoff(t *testing.T) {
	h := newHarness(t, Options{})
	sock := h.connectAndOpen()

	// a transient close (not the terminal code, not a 4000-4100 failure)
	sock.ServerClose(1006, "abnormal closure")
	h.waitState(ConnUnavailable)

	h.fake.Advance(250 * time.Millisecond) // first fastBackoff entry
	h.waitState(ConnAuthenticating)
	h.waitState(ConnConnecting)
	h.barrier()
	sock2 := h.nextSocket()
	sock2.Open()
	h.waitState(ConnOpen)
}

func TestPongTimeoutForcesReconnect(t *testing.T) {
	h := newHarness(t, Options{HeartbeatInterval: 30 * time.Second, PongTimeout: 2 * time.Second})
	sock := h.connectAndOpen()

	h.fake.Advance(30 * time.Second) // fires the heartbeat ping
	require.Contains(t, sock.Outbox, wire.PingText)

	h.fake.Advance(2 * time.Second) // pong never arrives: pong timeout fires
	h.waitState(ConnUnavailable)

	h.fake.Advance(250 * time.Millisecond)
	h.waitState(ConnAuthenticating)
}

func TestPongBeforeTimeoutKeepsConnectionOpen(t *testing.T) {
	h := newHarness(t, Options{HeartbeatInterval: 30 * time.Second, PongTimeout: 2 * time.Second})
	sock := h.connectAndOpen()

	h.fake.Advance(30 * time.Second)
	require.Contains(t, sock.Outbox, wire.PingText)
	sock.ServerSend(wire.PongText)

	h.fake.Advance(2 * time.Second)
	select {
	case s := <-h.states:
		t.Fatalf("unexpected state after pong: %v", s.Kind)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, ConnOpen, h.room.GetConnectionState().Kind)
}

func TestDisconnectIsTerminal(t *testing.T) {
	h := newHarness(t, Options{})
	h.connectAndOpen()

	h.room.Disconnect()
	h.waitState(ConnClosed)

	h.fake.Advance(time.Hour)
	select {
	case s := <-h.states:
		t.Fatalf("unexpected state after explicit disconnect: %v", s.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}
