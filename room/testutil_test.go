package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Polqt/collabroom/auth"
	"github.com/Polqt/collabroom/effects"
)

// fetcherFunc adapts a plain function to auth.Fetcher.
type fetcherFunc func(ctx context.Context, roomID string) (auth.Token, error)

func (f fetcherFunc) Fetch(ctx context.Context, roomID string) (auth.Token, error) {
	return f(ctx, roomID)
}

func fixedToken(actor int64) fetcherFunc {
	return func(ctx context.Context, roomID string) (auth.Token, error) {
		return auth.Token{Actor: actor, Raw: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
}

// harness wires a Room to a Fake clock and a socket factory that hands
// every dialed FakeSocket back over sockets, so a test can script
// Open/ServerSend/ServerClose without a real network.
type harness struct {
	t          *testing.T
	room       *Room
	fake       *effects.Fake
	sockets    chan *effects.FakeSocket
	states     chan ConnState
	lastSocket *effects.FakeSocket
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		fake:    effects.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		sockets: make(chan *effects.FakeSocket, 8),
		states:  make(chan ConnState, 64),
	}
	opts.Effects = h.fake
	opts.Dial = func(ctx context.Context, token auth.Token) (effects.Socket, error) {
		sock := effects.NewFakeSocket()
		h.sockets <- sock
		return sock, nil
	}
	if opts.Auth == nil {
		opts.Auth = fixedToken(1)
	}
	if opts.RoomID == "" {
		opts.RoomID = "room-1"
	}
	h.room = New(opts)
	h.room.SubscribeConnection(func(s ConnState) { h.states <- s })
	return h
}

// nextSocket waits for the next socket dialed by the room.
func (h *harness) nextSocket() *effects.FakeSocket {
	h.t.Helper()
	select {
	case s := <-h.sockets:
		h.lastSocket = s
		return s
	case <-time.After(time.Second):
		h.t.Fatal("timed out waiting for a dialed socket")
		return nil
	}
}

// waitState waits for the next connection state and requires its Kind.
func (h *harness) waitState(kind ConnKind) ConnState {
	h.t.Helper()
	select {
	case s := <-h.states:
		require.Equal(h.t, kind, s.Kind, "unexpected connection state")
		return s
	case <-time.After(time.Second):
		h.t.Fatalf("timed out waiting for state %s", kind)
		return ConnState{}
	}
}

// barrier round-trips through the room's internal loop goroutine,
// guaranteeing every effect of a command already delivered to it (e.g.
// a Bind call made inside the same exec closure that emitted the state
// just received off states) has completed before the test proceeds.
func (h *harness) barrier() {
	h.room.GetConnectionState()
}

// connectAndOpen drives Connect() through to ConnOpen and returns the
// socket the room bound to.
func (h *harness) connectAndOpen() *effects.FakeSocket {
	h.t.Helper()
	h.room.Connect()
	h.waitState(ConnAuthenticating)
	h.waitState(ConnConnecting)
	h.barrier()
	sock := h.nextSocket()
	sock.Open()
	h.waitState(ConnOpen)
	return sock
}
