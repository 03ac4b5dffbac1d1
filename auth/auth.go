// Package auth decodes room auth tokens and implements the three
// authentication strategies a client may be configured with: public key,
// private endpoint, and a user-supplied callback.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is the decoded form of the auth token returned by the room's
// authentication endpoint.
type Token struct {
	Actor     int64
	ID        *string
	Info      json.RawMessage
	ExpiresAt time.Time
	Raw       string
}

// claims mirrors the subset of the JWT payload this client reads. The
// client never verifies the signature — the server will reject a bad
// token on connect — it only needs exp/actor/id/info to drive the
// cached-token-reuse check and the connecting/open state.
type claims struct {
	Actor int64           `json:"actor"`
	ID    *string         `json:"id,omitempty"`
	Info  json.RawMessage `json:"info,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken decodes raw without verifying its signature.
func ParseToken(raw string) (Token, error) {
	var c claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &c); err != nil {
		return Token{}, fmt.Errorf("auth: parse token: %w", err)
	}
	var expiresAt time.Time
	if c.ExpiresAt != nil {
		expiresAt = c.ExpiresAt.Time
	}
	return Token{
		Actor:     c.Actor,
		ID:        c.ID,
		Info:      c.Info,
		ExpiresAt: expiresAt,
		Raw:       raw,
	}, nil
}

// Expired reports whether t's expiry has passed as of now.
func (t Token) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(t.ExpiresAt)
}

// Fetcher requests a fresh token for a room. Implementations correspond
// to spec.md §6.3's three endpoint flavors.
type Fetcher interface {
	Fetch(ctx context.Context, room string) (Token, error)
}

// Error reports an authentication endpoint failure: non-2xx status,
// a non-JSON body, or a JSON body missing the expected "token" field.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("auth: %s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type tokenResponse struct {
	Token string `json:"token"`
}

func decodeTokenResponse(op string, status int, body io.Reader) (Token, error) {
	if status < 200 || status >= 300 {
		return Token{}, &Error{Op: op, Status: status}
	}
	var resp tokenResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return Token{}, &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Token == "" {
		return Token{}, &Error{Op: op, Err: fmt.Errorf("response missing token field")}
	}
	return ParseToken(resp.Token)
}

// PublicAuth authenticates against a public-key endpoint: POST
// {room, publicApiKey} -> {token}.
type PublicAuth struct {
	URL         string
	PublicAPIKey string
	HTTPClient  *http.Client
}

func (p *PublicAuth) Fetch(ctx context.Context, room string) (Token, error) {
	body, err := json.Marshal(map[string]string{
		"room":         room,
		"publicApiKey": p.PublicAPIKey,
	})
	if err != nil {
		return Token{}, &Error{Op: "public auth", Err: err}
	}
	return p.post(ctx, body)
}

func (p *PublicAuth) post(ctx context.Context, body []byte) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return Token{}, &Error{Op: "public auth", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Token{}, &Error{Op: "public auth", Err: err}
	}
	defer resp.Body.Close()
	return decodeTokenResponse("public auth", resp.StatusCode, resp.Body)
}

// PrivateAuth authenticates against a private endpoint: POST {room} ->
// {token}. The caller is expected to have configured HTTPClient (or a
// custom http.RoundTripper) with any auth headers the private endpoint
// requires.
type PrivateAuth struct {
	URL        string
	HTTPClient *http.Client
}

func (p *PrivateAuth) Fetch(ctx context.Context, room string) (Token, error) {
	body, err := json.Marshal(map[string]string{"room": room})
	if err != nil {
		return Token{}, &Error{Op: "private auth", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return Token{}, &Error{Op: "private auth", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Token{}, &Error{Op: "private auth", Err: err}
	}
	defer resp.Body.Close()
	return decodeTokenResponse("private auth", resp.StatusCode, resp.Body)
}

// CustomAuth wraps a user-supplied async token provider.
type CustomAuth struct {
	Callback func(ctx context.Context, room string) (string, error)
}

func (c *CustomAuth) Fetch(ctx context.Context, room string) (Token, error) {
	if c.Callback == nil {
		return Token{}, &Error{Op: "custom auth", Err: fmt.Errorf("no callback configured")}
	}
	raw, err := c.Callback(ctx, room)
	if err != nil {
		return Token{}, &Error{Op: "custom auth", Err: err}
	}
	return ParseToken(raw)
}
