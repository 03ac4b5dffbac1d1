// Package effects isolates every side effect the room state machine
// performs — authentication, socket I/O, and timers — behind one small
// interface, so the machine in package room is deterministic and
// testable without a real network.
package effects

import (
	"context"
	"time"

	"github.com/Polqt/collabroom/auth"
)

// Socket is the minimal full-duplex text-framed connection the state
// machine needs. A concrete implementation wraps a websocket connection;
// see DefaultEffects.
type Socket interface {
	// Bind wires handlers and starts delivering events. Called exactly
	// once, immediately after a successful dial, before any handler can
	// plausibly be invoked.
	Bind(h SocketHandlers)
	// Send writes one text frame.
	Send(text string) error
	// Close closes the connection.
	Close() error
}

// SocketHandlers are the callbacks a Socket implementation invokes as
// events occur. Open/Message/Close/Error mirror a browser WebSocket's
// event surface.
type SocketHandlers struct {
	OnOpen    func()
	OnMessage func(text string)
	OnClose   func(code int, reason string)
	OnError   func(err error)
}

// SocketFactory dials a new Socket once a token has been resolved. It is
// built by the caller (room's connection FSM) closed over the room id,
// server URL, and client version, so Authenticate itself never needs to
// know how to build the socket URL.
type SocketFactory func(ctx context.Context, token auth.Token) (Socket, error)

// TimerHandle is an opaque cancelable timer/interval id.
type TimerHandle interface {
	Cancel()
}

// Effects is the full side-effect surface spec.md §2 and §9 describe.
type Effects interface {
	// Authenticate resolves a token for room and dials a socket, in one
	// call so a custom auth callback and the eventual socket factory
	// share a single async boundary (matching the source's
	// `effects.authenticate(authFetcher, socketFactory)` shape).
	Authenticate(ctx context.Context, room string, fetch auth.Fetcher, dial SocketFactory) (auth.Token, Socket, error)

	// Send transmits one already-framed text message on socket.
	Send(socket Socket, text string) error

	// ScheduleTimer invokes fn once after d elapses.
	ScheduleTimer(d time.Duration, fn func()) TimerHandle

	// ScheduleInterval invokes fn every d until canceled.
	ScheduleInterval(d time.Duration, fn func()) TimerHandle

	// Now returns the current time; abstracted so tests can use a
	// virtual clock (see Fake).
	Now() time.Time
}
