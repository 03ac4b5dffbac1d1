package effects

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/Polqt/collabroom/auth"
)

// Fake is a deterministic, manually-driven Effects implementation for
// tests: no real network, no real clock. It exposes a virtual clock —
// Advance(d) fires every timer/interval whose deadline has passed, in
// deadline order — per spec.md §9's design note ("a test double that
// records calls and exposes a virtual clock").
type Fake struct {
	mu sync.Mutex

	now time.Time
	pq  timerQueue

	// AuthFunc lets a test script the outcome of Authenticate; defaults
	// to failing loudly so an unconfigured test can't silently "succeed".
	AuthFunc func(ctx context.Context, room string, fetch auth.Fetcher, dial SocketFactory) (auth.Token, Socket, error)

	// Sent records every text frame passed to Send, in order.
	Sent []SentFrame
}

// SentFrame records one Send call for test assertions.
type SentFrame struct {
	Socket Socket
	Text   string
}

// NewFake returns a Fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Authenticate(ctx context.Context, room string, fetch auth.Fetcher, dial SocketFactory) (auth.Token, Socket, error) {
	if f.AuthFunc != nil {
		return f.AuthFunc(ctx, room, fetch, dial)
	}
	token, err := fetch.Fetch(ctx, room)
	if err != nil {
		return auth.Token{}, nil, err
	}
	sock, err := dial(ctx, token)
	return token, sock, err
}

func (f *Fake) Send(socket Socket, text string) error {
	f.mu.Lock()
	f.Sent = append(f.Sent, SentFrame{Socket: socket, Text: text})
	f.mu.Unlock()
	return socket.Send(text)
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) ScheduleTimer(d time.Duration, fn func()) TimerHandle {
	return f.schedule(d, fn, false)
}

func (f *Fake) ScheduleInterval(d time.Duration, fn func()) TimerHandle {
	return f.schedule(d, fn, true)
}

func (f *Fake) schedule(d time.Duration, fn func(), repeat bool) TimerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := &timerEntry{
		deadline: f.now.Add(d),
		period:   d,
		repeat:   repeat,
		fn:       fn,
	}
	heap.Push(&f.pq, entry)
	return entry
}

// Advance moves the virtual clock forward by d, firing every timer whose
// deadline is now at or before the new time, in deadline order. A fired
// one-shot timer is removed; a fired interval is rescheduled for its next
// period before its callback runs again on a later Advance.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	var due []*timerEntry
	for f.pq.Len() > 0 && f.pq[0].deadline.Compare(target) <= 0 {
		e := heap.Pop(&f.pq).(*timerEntry)
		if e.canceled {
			continue
		}
		due = append(due, e)
	}
	f.now = target
	for _, e := range due {
		if e.repeat {
			e.deadline = e.deadline.Add(e.period)
			heap.Push(&f.pq, e)
		}
	}
	f.mu.Unlock()

	for _, e := range due {
		e.fn()
	}
}

type timerEntry struct {
	deadline time.Time
	period   time.Duration
	repeat   bool
	canceled bool
	fn       func()
	index    int
}

func (e *timerEntry) Cancel() { e.canceled = true }

type timerQueue []*timerEntry

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool {
	return q[i].deadline.Before(q[j].deadline)
}
func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *timerQueue) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// FakeSocket is a Socket whose Send/Close are recorded and whose events
// a test fires by calling the handlers captured at dial time.
type FakeSocket struct {
	mu       sync.Mutex
	closed   bool
	Handlers SocketHandlers
	Outbox   []string
}

func NewFakeSocket() *FakeSocket { return &FakeSocket{} }

func (s *FakeSocket) Bind(h SocketHandlers) { s.Handlers = h }

func (s *FakeSocket) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.Outbox = append(s.Outbox, text)
	return nil
}

func (s *FakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Open simulates the socket reaching the OPEN state.
func (s *FakeSocket) Open() {
	if s.Handlers.OnOpen != nil {
		s.Handlers.OnOpen()
	}
}

// ServerSend simulates an inbound text frame from the server.
func (s *FakeSocket) ServerSend(text string) {
	if s.Handlers.OnMessage != nil {
		s.Handlers.OnMessage(text)
	}
}

// ServerClose simulates the server closing the connection.
func (s *FakeSocket) ServerClose(code int, reason string) {
	if s.Handlers.OnClose != nil {
		s.Handlers.OnClose(code, reason)
	}
}

var errClosed = fakeErr("effects: send on closed fake socket")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
