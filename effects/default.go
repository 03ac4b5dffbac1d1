package effects

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Polqt/collabroom/auth"
)

// DefaultEffects is the production Effects implementation: it dials real
// websocket connections via gorilla/websocket and schedules real OS
// timers. The control frames the protocol uses for heartbeats
// (wire.PingText / wire.PongText) are ordinary text frames at this
// layer — the websocket protocol's own ping/pong control frames are
// left untouched, per SPEC_FULL.md §2 DOMAIN STACK.
type DefaultEffects struct {
	Dialer *websocket.Dialer
}

// NewDefaultEffects returns an Effects backed by a default gorilla
// websocket dialer.
func NewDefaultEffects() *DefaultEffects {
	return &DefaultEffects{Dialer: websocket.DefaultDialer}
}

func (e *DefaultEffects) Authenticate(ctx context.Context, room string, fetch auth.Fetcher, dial SocketFactory) (auth.Token, Socket, error) {
	token, err := fetch.Fetch(ctx, room)
	if err != nil {
		return auth.Token{}, nil, err
	}
	sock, err := dial(ctx, token)
	if err != nil {
		return auth.Token{}, nil, err
	}
	return token, sock, nil
}

func (e *DefaultEffects) Send(socket Socket, text string) error {
	return socket.Send(text)
}

func (e *DefaultEffects) ScheduleTimer(d time.Duration, fn func()) TimerHandle {
	t := time.AfterFunc(d, fn)
	return timerHandle{t}
}

func (e *DefaultEffects) ScheduleInterval(d time.Duration, fn func()) TimerHandle {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	return intervalHandle{ticker: ticker, done: done}
}

func (e *DefaultEffects) Now() time.Time { return time.Now() }

type timerHandle struct{ t *time.Timer }

func (h timerHandle) Cancel() { h.t.Stop() }

type intervalHandle struct {
	ticker *time.Ticker
	done   chan struct{}
}

func (h intervalHandle) Cancel() {
	h.ticker.Stop()
	close(h.done)
}

// WSSocket adapts a gorilla websocket connection to the Socket
// interface and runs its own read pump, dispatching to handlers.
type WSSocket struct {
	conn     *websocket.Conn
	handlers SocketHandlers
}

// DialWS dials url. The read pump does not start until Bind is called —
// in practice the connection FSM binds handlers immediately after dial
// succeeds, before any message can plausibly arrive.
func DialWS(ctx context.Context, dialer *websocket.Dialer, url string) (*WSSocket, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("effects: dial websocket: %w", err)
	}
	return &WSSocket{conn: conn}, nil
}

// Bind wires handlers and starts the background read pump. The dial has
// already completed the handshake, so the pump goroutine reports OnOpen
// first and then starts reading. Must be called exactly once per socket.
func (s *WSSocket) Bind(h SocketHandlers) {
	s.handlers = h
	go func() {
		if s.handlers.OnOpen != nil {
			s.handlers.OnOpen()
		}
		s.readPump()
	}()
}

func (s *WSSocket) readPump() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			code := websocket.CloseNoStatusReceived
			reason := err.Error()
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
				reason = ce.Text
			}
			if s.handlers.OnClose != nil {
				s.handlers.OnClose(code, reason)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(string(data))
		}
	}
}

func (s *WSSocket) Send(text string) error {
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (s *WSSocket) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
