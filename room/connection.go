package room

import (
	"context"
	"time"

	"github.com/Polqt/collabroom/auth"
	"github.com/Polqt/collabroom/effects"
	"github.com/Polqt/collabroom/presence"
	"github.com/Polqt/collabroom/wire"
)

// fastBackoff and slowBackoff are two independent reconnect-delay
// lookup tables, each indexed by the same backoffAttempt counter and
// clamped to its own last entry once the counter runs past it. Which
// table applies depends on why the reconnect is happening (see
// scheduleReconnect/scheduleReconnectSlow), not on how many prior
// attempts used the other table. These are lookup tables, not a growth
// formula, per SPEC_FULL.md §4.1.
var (
	fastBackoff = []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
	}
	slowBackoff = []time.Duration{
		2 * time.Second,
		30 * time.Second,
		60 * time.Second,
		5 * time.Minute,
	}
)

// backoffDelay indexes table by attempt, clamped to the last entry —
// fast and slow are two independent tables sharing the same retry
// counter, not one continuous sequence (spec.md §4.1).
func backoffDelay(table []time.Duration, attempt int) time.Duration {
	if attempt >= len(table) {
		attempt = len(table) - 1
	}
	return table[attempt]
}

// Connect starts (or resumes) the connection FSM. A no-op if already
// connecting/open.
func (r *Room) Connect() {
	r.exec(func() {
		switch r.state.Kind {
		case ConnAuthenticating, ConnConnecting, ConnOpen:
			return
		}
		r.explicitlyClosed = false
		r.backoffAttempt = 0
		r.startConnecting()
	})
}

// Disconnect closes the connection and stops the FSM from reconnecting.
func (r *Room) Disconnect() {
	r.exec(func() {
		r.explicitlyClosed = true
		r.teardownConnection()
		r.resetOthers()
		r.setState(ConnState{Kind: ConnClosed})
	})
}

// GetConnectionState returns the current state.
func (r *Room) GetConnectionState() ConnState {
	var out ConnState
	r.exec(func() { out = r.state })
	return out
}

func (r *Room) setState(s ConnState) {
	r.state = s
	r.connTopic.Emit(s)
}

func (r *Room) dialer() effects.SocketFactory {
	if r.opts.Dial != nil {
		return r.opts.Dial
	}
	return func(ctx context.Context, token auth.Token) (effects.Socket, error) {
		url := wire.SocketURL(r.opts.Server, token.Raw, r.opts.Version)
		return effects.DialWS(ctx, nil, url)
	}
}

// startConnecting begins the authenticate+dial round trip. The actual
// I/O runs on its own goroutine (it blocks on network calls); the
// result is handed back to the loop goroutine via exec so every state
// mutation still happens on the single writer.
func (r *Room) startConnecting() {
	r.setState(ConnState{Kind: ConnAuthenticating})
	dial := r.dialer()
	go func() {
		token, sock, err := r.eff.Authenticate(context.Background(), r.opts.RoomID, r.opts.Auth, dial)
		r.exec(func() {
			if r.explicitlyClosed {
				if sock != nil {
					_ = sock.Close()
				}
				return
			}
			if err != nil {
				r.authenticationFailure(err)
				return
			}
			r.authenticationSuccess(token, sock)
		})
	}()
}

func (r *Room) authenticationFailure(err error) {
	r.logger.Warn("room: authentication failed", "err", err)
	authErr := &AuthenticationError{Reason: "fetch or dial", Err: err}
	r.setState(ConnState{Kind: ConnUnavailable, Err: authErr})
	r.errorTopic.Emit(authErr)
	r.scheduleReconnect()
}

func (r *Room) authenticationSuccess(token auth.Token, sock effects.Socket) {
	r.socket = sock
	r.actor = token.Actor
	r.reg.ResetClocks(token.Actor)
	r.setState(ConnState{Kind: ConnConnecting, Actor: token.Actor, UserID: token.ID, UserInfo: token.Info})

	sock.Bind(effects.SocketHandlers{
		OnOpen:    func() { r.exec(r.handleOpen) },
		OnMessage: func(text string) { r.exec(func() { r.handleMessage(text) }) },
		OnClose:   func(code int, reason string) { r.exec(func() { r.handleClose(code, reason) }) },
		OnError:   func(err error) { r.exec(func() { r.handleError(err) }) },
	})
}

func (r *Room) handleOpen() {
	r.state.Kind = ConnOpen
	r.connTopic.Emit(r.state)
	r.hadPriorConnection = true
	r.backoffAttempt = 0

	r.startHeartbeat()
	r.resendOfflineOps()
	r.sendFullPresence()
	if !r.storageLoaded {
		r.sendFetchStorage()
	}
}

func (r *Room) handleClose(code int, reason string) {
	r.teardownConnection()
	r.resetOthers()

	if code == wire.CloseWithoutRetry || r.explicitlyClosed {
		r.setState(ConnState{Kind: ConnClosed})
		return
	}
	if wire.IsServerFailureCode(code) {
		liveblocksErr := &LiveblocksError{Code: code, Reason: reason}
		r.setState(ConnState{Kind: ConnFailed, Err: liveblocksErr})
		r.errorTopic.Emit(liveblocksErr)
		r.setState(ConnState{Kind: ConnUnavailable, Err: liveblocksErr})
		r.scheduleReconnectSlow()
		return
	}
	r.setState(ConnState{Kind: ConnUnavailable})
	r.scheduleReconnect()
}

// resetOthers clears every other participant and the gating buffers
// behind it, and notifies Others subscribers of the reset, per spec.md
// §4.1's "clear users and notify reset" close-handling step and §3's
// disconnect lifecycle requirement.
func (r *Room) resetOthers() {
	if len(r.others) == 0 && len(r.gotInitial) == 0 && len(r.pendingPresence) == 0 {
		return
	}
	r.others = map[int64]presence.User{}
	r.gotInitial = map[int64]bool{}
	r.pendingPresence = map[int64]presence.Data{}
	r.othersTopic.Emit(presence.NewOthers(nil))
}

func (r *Room) handleError(err error) {
	r.logger.Warn("room: socket error", "err", err)
}

// scheduleReconnect schedules a reconnect using the fast backoff table,
// for transient failures (auth failure, non-server-failure close).
func (r *Room) scheduleReconnect() { r.scheduleReconnectWith(fastBackoff) }

// scheduleReconnectSlow schedules a reconnect using the slow backoff
// table, for server-indicated protocol failures (spec.md §4.1's
// 4000-4100 branch).
func (r *Room) scheduleReconnectSlow() { r.scheduleReconnectWith(slowBackoff) }

func (r *Room) scheduleReconnectWith(table []time.Duration) {
	if r.explicitlyClosed {
		return
	}
	d := backoffDelay(table, r.backoffAttempt)
	r.backoffAttempt++
	r.reconnectTimer = r.eff.ScheduleTimer(d, func() { r.exec(r.reconnect) })
}

func (r *Room) reconnect() {
	if r.explicitlyClosed {
		return
	}
	r.startConnecting()
}

// forceReconnect tears down a connection the heartbeat decided is dead
// (pong timeout) without waiting for the transport to notice.
func (r *Room) forceReconnect() {
	r.teardownConnection()
	r.setState(ConnState{Kind: ConnUnavailable})
	r.scheduleReconnect()
}

// teardownConnection cancels every timer and closes the socket, leaving
// Room ready for either a final ConnClosed or a reconnect attempt. Safe
// to call when already torn down.
func (r *Room) teardownConnection() {
	if r.reconnectTimer != nil {
		r.reconnectTimer.Cancel()
		r.reconnectTimer = nil
	}
	if r.heartbeatTimer != nil {
		r.heartbeatTimer.Cancel()
		r.heartbeatTimer = nil
	}
	if r.pongTimer != nil {
		r.pongTimer.Cancel()
		r.pongTimer = nil
	}
	if r.flushTimer != nil {
		r.flushTimer.Cancel()
		r.flushTimer = nil
	}
	r.awaitingPong = false
	if r.socket != nil {
		_ = r.socket.Close()
		r.socket = nil
	}
}

func (r *Room) startHeartbeat() {
	r.heartbeatTimer = r.eff.ScheduleInterval(r.opts.HeartbeatInterval, func() { r.exec(r.sendPing) })
}

func (r *Room) sendPing() {
	if r.socket == nil {
		return
	}
	if err := r.eff.Send(r.socket, wire.PingText); err != nil {
		r.logger.Warn("room: ping send failed", "err", err)
		return
	}
	r.awaitingPong = true
	r.pongTimer = r.eff.ScheduleTimer(r.opts.PongTimeout, func() { r.exec(r.pongTimedOut) })
}

func (r *Room) pongTimedOut() {
	if !r.awaitingPong {
		return
	}
	r.logger.Warn("room: pong timeout, reconnecting")
	r.forceReconnect()
}

func (r *Room) onPong() {
	r.awaitingPong = false
	if r.pongTimer != nil {
		r.pongTimer.Cancel()
		r.pongTimer = nil
	}
}
