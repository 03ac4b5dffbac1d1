package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, actor int64, exp time.Time) string {
	t.Helper()
	c := claims{
		Actor:             actor,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	raw, err := tok.SignedString([]byte("does-not-matter-never-verified"))
	require.NoError(t, err)
	return raw
}

func TestParseTokenDecodesActorAndExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signedToken(t, 42, exp)

	tok, err := ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), tok.Actor)
	assert.WithinDuration(t, exp, tok.ExpiresAt, time.Second)
	assert.Equal(t, raw, tok.Raw)
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	expired := Token{ExpiresAt: now.Add(-time.Minute)}
	fresh := Token{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, expired.Expired(now))
	assert.False(t, fresh.Expired(now))
	assert.True(t, Token{}.Expired(now), "a zero ExpiresAt must count as expired")
}

func TestPublicAuthFetchPostsRoomAndKey(t *testing.T) {
	raw := signedToken(t, 7, time.Now().Add(time.Hour))
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"` + raw + `"}`))
	}))
	defer srv.Close()

	auth := &PublicAuth{URL: srv.URL, PublicAPIKey: "pub_123"}
	tok, err := auth.Fetch(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), tok.Actor)
	assert.Contains(t, gotBody, "room-1")
	assert.Contains(t, gotBody, "pub_123")
}

func TestPublicAuthFetchFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	auth := &PublicAuth{URL: srv.URL, PublicAPIKey: "pub_123"}
	_, err := auth.Fetch(context.Background(), "room-1")
	require.Error(t, err)
	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusForbidden, authErr.Status)
}

func TestPrivateAuthFetchMissingTokenField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	auth := &PrivateAuth{URL: srv.URL}
	_, err := auth.Fetch(context.Background(), "room-1")
	require.Error(t, err)
}

func TestCustomAuthFetchUsesCallback(t *testing.T) {
	raw := signedToken(t, 9, time.Now().Add(time.Hour))
	auth := &CustomAuth{Callback: func(ctx context.Context, room string) (string, error) {
		assert.Equal(t, "room-1", room)
		return raw, nil
	}}
	tok, err := auth.Fetch(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), tok.Actor)
}

func TestCustomAuthFetchErrorsWithoutCallback(t *testing.T) {
	auth := &CustomAuth{}
	_, err := auth.Fetch(context.Background(), "room-1")
	assert.Error(t, err)
}
