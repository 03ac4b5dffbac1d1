// Package room implements the client-side room state machine: the
// connection FSM, the presence/storage message router, the flush
// scheduler, and the public API that glues effects, crdt, presence,
// history, and pubsub together into one coherent session.
package room

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Polqt/collabroom/auth"
	"github.com/Polqt/collabroom/crdt"
	"github.com/Polqt/collabroom/effects"
	"github.com/Polqt/collabroom/presence"
)

// ConnKind discriminates ConnState.
type ConnKind int

const (
	ConnClosed ConnKind = iota + 1
	ConnAuthenticating
	ConnConnecting
	ConnOpen
	ConnUnavailable
	ConnFailed
)

func (k ConnKind) String() string {
	switch k {
	case ConnClosed:
		return "closed"
	case ConnAuthenticating:
		return "authenticating"
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnUnavailable:
		return "unavailable"
	case ConnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnState is the connection FSM's current state, a tagged union per
// SPEC_FULL.md §3: Actor/UserID/UserInfo are only meaningful once Kind
// reaches ConnConnecting or ConnOpen; Err is set for ConnFailed and for
// the ConnUnavailable that follows an authentication failure or a
// 4000-4100 close.
type ConnState struct {
	Kind     ConnKind
	Actor    int64
	UserID   *string
	UserInfo json.RawMessage
	Err      error
}

// EventPayload is a broadcasted application event, as delivered to
// SubscribeEvent listeners.
type EventPayload struct {
	Actor int64
	Event json.RawMessage
}

// NodeUpdate is delivered to SubscribeNode/SubscribeNodeDeep listeners:
// the id of the node that actually changed (which, for a deep
// subscription, may be a descendant of the subscribed node) plus its
// storage diff.
type NodeUpdate struct {
	NodeID string
	Update crdt.StorageUpdate
}

// Options configures a Room. Server, Version, and Auth are required;
// everything else has a documented default matching the public
// Liveblocks client's own configuration.
type Options struct {
	RoomID  string
	Server  string // e.g. "wss://room.example.com"
	Version string
	Auth    auth.Fetcher

	Effects effects.Effects // defaults to effects.NewDefaultEffects()
	Logger  *slog.Logger    // defaults to slog.Default()

	InitialPresence presence.Data
	InitialStorage  crdt.Data

	// Dial overrides how a socket is dialed once a token is resolved.
	// Defaults to building a wire.SocketURL(Server, token.Raw, Version)
	// and dialing it via effects.DialWS with the default gorilla dialer.
	// Tests supply their own Dial returning an *effects.FakeSocket.
	Dial effects.SocketFactory

	// ThrottleDelay bounds how often a burst of local storage/presence
	// writes is flushed to the socket; defaults to 100ms.
	ThrottleDelay time.Duration
	// HeartbeatInterval is how often a "ping" text frame is sent while
	// open; defaults to 30s.
	HeartbeatInterval time.Duration
	// PongTimeout is how long to wait for a "pong" after a "ping" before
	// treating the connection as dead; defaults to 2s.
	PongTimeout time.Duration
}
