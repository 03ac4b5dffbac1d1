// Package wire defines the framed-JSON messages exchanged with the room
// server over the single full-duplex text connection, and the small set
// of helpers (URL construction, close-code classification) that depend
// only on that wire format.
package wire

import (
	"encoding/json"
	"net/url"
)

// ServerMsgType discriminates inbound server->client messages.
type ServerMsgType int

const (
	ServerUserJoined ServerMsgType = iota + 1
	ServerUpdatePresence
	ServerBroadcastedEvent
	ServerUserLeft
	ServerRoomState
	ServerInitialStorageState
	ServerUpdateStorage
)

// ClientMsgType discriminates outbound client->server messages.
type ClientMsgType int

const (
	ClientUpdatePresence ClientMsgType = iota + 1
	ClientBroadcastEvent
	ClientUpdateStorage
	ClientFetchStorage
)

// FullPresenceTarget is the sentinel targetActor value meaning "broadcast
// my entire presence to everyone", as opposed to a specific actor id
// (targeted full presence sent to a newcomer) or the field's absence
// (partial update).
const FullPresenceTarget = -1

// ClientUpdatePresenceMsg is the `{type: UPDATE_PRESENCE, data, targetActor?}`
// client->server frame.
type ClientUpdatePresenceMsg struct {
	Type        ClientMsgType   `json:"type"`
	Data        json.RawMessage `json:"data"`
	TargetActor *int            `json:"targetActor,omitempty"`
}

// ClientBroadcastEventMsg is the `{type: BROADCAST_EVENT, event}` frame.
type ClientBroadcastEventMsg struct {
	Type  ClientMsgType   `json:"type"`
	Event json.RawMessage `json:"event"`
}

// ClientUpdateStorageMsg is the `{type: UPDATE_STORAGE, ops}` frame.
type ClientUpdateStorageMsg struct {
	Type ClientMsgType     `json:"type"`
	Ops  []json.RawMessage `json:"ops"`
}

// ClientFetchStorageMsg is the `{type: FETCH_STORAGE}` frame.
type ClientFetchStorageMsg struct {
	Type ClientMsgType `json:"type"`
}

// ServerEnvelope is used only to peek at the discriminant before decoding
// the rest of a server message into its concrete shape.
type ServerEnvelope struct {
	Type ServerMsgType `json:"type"`
}

// UserJoinedMsg announces a new participant.
type UserJoinedMsg struct {
	Type  ServerMsgType   `json:"type"`
	Actor int             `json:"actor"`
	ID    *string         `json:"id,omitempty"`
	Info  json.RawMessage `json:"info,omitempty"`
}

// UpdatePresenceMsg carries a presence delta (or full presence when
// TargetActor is set) for one actor.
type UpdatePresenceMsg struct {
	Type        ServerMsgType   `json:"type"`
	Actor       int             `json:"actor"`
	Data        json.RawMessage `json:"data"`
	TargetActor *int            `json:"targetActor,omitempty"`
}

// UserLeftMsg announces a participant departure.
type UserLeftMsg struct {
	Type  ServerMsgType `json:"type"`
	Actor int           `json:"actor"`
}

// RoomStateUserMsg is one entry of ROOM_STATE's user list.
type RoomStateUserMsg struct {
	Actor int             `json:"actor"`
	ID    *string         `json:"id,omitempty"`
	Info  json.RawMessage `json:"info,omitempty"`
}

// RoomStateMsg replaces the users map wholesale.
type RoomStateMsg struct {
	Type  ServerMsgType      `json:"type"`
	Users []RoomStateUserMsg `json:"users"`
}

// BroadcastedEventMsg relays a user-broadcast event from another actor.
type BroadcastedEventMsg struct {
	Type  ServerMsgType   `json:"type"`
	Actor int             `json:"actor"`
	Event json.RawMessage `json:"event"`
}

// InitialStorageStateMsg carries the flattened node list for the
// document's CRDT tree on first load (or reconciliation).
type InitialStorageStateMsg struct {
	Type  ServerMsgType     `json:"type"`
	Items []json.RawMessage `json:"items"`
}

// UpdateStorageMsg carries a batch of remote storage operations.
type UpdateStorageMsg struct {
	Type ServerMsgType     `json:"type"`
	Ops  []json.RawMessage `json:"ops"`
}

// PingText and PongText are the literal (non-JSON) control frames
// exchanged by the heartbeat, distinct from websocket protocol-level
// ping/pong control frames — see effects.DefaultEffects.
const (
	PingText = "ping"
	PongText = "pong"
)

// CloseWithoutRetry is the well-known close code meaning "terminal,
// do not reconnect" (e.g. the room was explicitly closed by the client).
const CloseWithoutRetry = 4999

// IsServerFailureCode reports whether code falls in the 4000-4100
// server-semantic-failure range (kick, forbidden, room full, ...).
func IsServerFailureCode(code int) bool {
	return code >= 4000 && code <= 4100
}

// SocketURL builds the `{server}/?token={token}&version={version}` dial
// target for the given liveblocks-style room server.
func SocketURL(server, token, version string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("version", version)
	return server + "/?" + q.Encode()
}
