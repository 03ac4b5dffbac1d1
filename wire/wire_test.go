package wire

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsServerFailureCode(t *testing.T) {
	assert.True(t, IsServerFailureCode(4000))
	assert.True(t, IsServerFailureCode(4100))
	assert.True(t, IsServerFailureCode(4001))
	assert.False(t, IsServerFailureCode(3999))
	assert.False(t, IsServerFailureCode(4101))
	assert.False(t, IsServerFailureCode(1006))
}

func TestSocketURLEncodesTokenAndVersion(t *testing.T) {
	got := SocketURL("wss://example.test", "tok en", "2")
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "tok en", u.Query().Get("token"))
	assert.Equal(t, "2", u.Query().Get("version"))
}

func TestServerEnvelopePeeksDiscriminantWithoutFullDecode(t *testing.T) {
	raw := []byte(`{"type":5,"users":[{"actor":2}]}`)
	var env ServerEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, ServerRoomState, env.Type)

	var msg RoomStateMsg
	require.NoError(t, json.Unmarshal(raw, &msg))
	require.Len(t, msg.Users, 1)
	assert.Equal(t, 2, msg.Users[0].Actor)
}

func TestUpdatePresenceMsgRoundTripsTargetActor(t *testing.T) {
	target := FullPresenceTarget
	msg := UpdatePresenceMsg{Type: ServerUpdatePresence, Actor: 3, Data: json.RawMessage(`{"x":1}`), TargetActor: &target}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var got UpdatePresenceMsg
	require.NoError(t, json.Unmarshal(raw, &got))
	require.NotNil(t, got.TargetActor)
	assert.Equal(t, FullPresenceTarget, *got.TargetActor)
}

func TestClientUpdatePresenceMsgOmitsTargetActorWhenPartial(t *testing.T) {
	msg := ClientUpdatePresenceMsg{Type: ClientUpdatePresence, Data: json.RawMessage(`{"x":1}`)}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "targetActor")
}
