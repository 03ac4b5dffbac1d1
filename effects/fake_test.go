package effects

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/collabroom/auth"
)

func TestAdvanceFiresOneShotTimersInDeadlineOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var order []string
	f.ScheduleTimer(2*time.Second, func() { order = append(order, "b") })
	f.ScheduleTimer(1*time.Second, func() { order = append(order, "a") })
	f.ScheduleTimer(3*time.Second, func() { order = append(order, "c") })

	f.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestAdvancePartwayOnlyFiresDueTimers(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	f.ScheduleTimer(5*time.Second, func() { fired = true })

	f.Advance(2 * time.Second)
	assert.False(t, fired)
	f.Advance(3 * time.Second)
	assert.True(t, fired)
}

func TestIntervalReschedulesItself(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	count := 0
	f.ScheduleInterval(time.Second, func() { count++ })

	f.Advance(1 * time.Second)
	assert.Equal(t, 1, count)
	f.Advance(1 * time.Second)
	assert.Equal(t, 2, count)
	f.Advance(3 * time.Second)
	assert.Equal(t, 3, count, "one Advance call fires a still-queued interval at most once, regardless of how many periods it spans")
}

func TestCancelPreventsFutureFire(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	h := f.ScheduleTimer(time.Second, func() { fired = true })
	h.Cancel()

	f.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestCancelStopsAnIntervalFromReschedulingAgain(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	count := 0
	var h TimerHandle
	h = f.ScheduleInterval(time.Second, func() {
		count++
		if count == 1 {
			h.Cancel()
		}
	})

	f.Advance(3 * time.Second)
	assert.Equal(t, 1, count, "canceling from inside the callback must stop further reschedules")
}

func TestNowAdvancesWithClock(t *testing.T) {
	start := time.Unix(0, 0)
	f := NewFake(start)
	f.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), f.Now())
}

func TestSendRecordsSentFrame(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	sock := NewFakeSocket()
	require.NoError(t, f.Send(sock, "hello"))
	require.Len(t, f.Sent, 1)
	assert.Equal(t, "hello", f.Sent[0].Text)
	assert.Equal(t, []string{"hello"}, sock.Outbox)
}

func TestAuthenticateFetchesThenDials(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	wantSock := NewFakeSocket()
	fetch := fetcherFunc(func(ctx context.Context, room string) (auth.Token, error) {
		return auth.Token{Actor: 5}, nil
	})
	dial := func(ctx context.Context, token auth.Token) (Socket, error) {
		assert.Equal(t, int64(5), token.Actor)
		return wantSock, nil
	}

	token, sock, err := f.Authenticate(context.Background(), "room-1", fetch, dial)
	require.NoError(t, err)
	assert.Equal(t, int64(5), token.Actor)
	assert.Same(t, wantSock, sock)
}

func TestAuthenticateSurfacesFetchError(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	boom := fakeErr("boom")
	fetch := fetcherFunc(func(ctx context.Context, room string) (auth.Token, error) {
		return auth.Token{}, boom
	})
	_, _, err := f.Authenticate(context.Background(), "room-1", fetch, nil)
	assert.ErrorIs(t, err, boom)
}

func TestFakeSocketSendAfterCloseErrors(t *testing.T) {
	sock := NewFakeSocket()
	require.NoError(t, sock.Close())
	err := sock.Send("too late")
	assert.Error(t, err)
}

func TestFakeSocketEventsInvokeBoundHandlers(t *testing.T) {
	sock := NewFakeSocket()
	var opened bool
	var message string
	var closeCode int
	sock.Bind(SocketHandlers{
		OnOpen:    func() { opened = true },
		OnMessage: func(text string) { message = text },
		OnClose:   func(code int, reason string) { closeCode = code },
	})

	sock.Open()
	sock.ServerSend("hi")
	sock.ServerClose(1006, "abnormal closure")

	assert.True(t, opened)
	assert.Equal(t, "hi", message)
	assert.Equal(t, 1006, closeCode)
}

type fetcherFunc func(ctx context.Context, room string) (auth.Token, error)

func (f fetcherFunc) Fetch(ctx context.Context, room string) (auth.Token, error) {
	return f(ctx, room)
}
