package transport_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/domain"
	"cipherchat/internal/transport"
)

const (
	wait = 2 * time.Second
	tick = 5 * time.Millisecond
)

type eventLog struct {
	mu     sync.Mutex
	events []domain.ConnectionEvent
}

func (l *eventLog) record(ev domain.ConnectionEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) states() []domain.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ConnectionState, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.State
	}
	return out
}

func (l *eventLog) exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if errors.Is(ev.Err, domain.ErrMaxReconnectAttemptsExceeded) {
			return true
		}
	}
	return false
}

func newChannel(t *testing.T) (*transport.Channel, *fakeDialer, *clock.Mock, *eventLog) {
	t.Helper()
	d := &fakeDialer{}
	mock := clock.NewMock()
	ch := transport.New(transport.Config{
		BaseURL: "ws://chat.test",
		Dialer:  d,
		Clock:   mock,
	})
	events := &eventLog{}
	ch.OnConnectionChange(events.record)
	t.Cleanup(ch.Disconnect)
	return ch, d, mock, events
}

func TestConnect_SendAndState(t *testing.T) {
	ch, d, _, events := newChannel(t)

	assert.False(t, ch.Send(domain.FrameTyping, domain.TypingSignal{ReceiverID: 2, Typing: true}))

	require.NoError(t, ch.Connect(context.Background(), "tok en"))
	assert.Equal(t, domain.Connected, ch.State())
	assert.Equal(t, []string{"ws://chat.test/chat?token=tok+en"}, d.urls)
	assert.Equal(t, []domain.ConnectionState{domain.Connecting, domain.Connected}, events.states())

	require.True(t, ch.Send(domain.FrameTyping, domain.TypingSignal{ReceiverID: 2, Typing: true}))
	assert.Equal(t, []string{`{"type":"TYPING","data":{"receiverId":2,"isTyping":true}}`}, d.last().writes())

	// Already connected: no new dial.
	require.NoError(t, ch.Connect(context.Background(), "tok en"))
	assert.Equal(t, 1, d.dials())
}

func TestDispatch_OrderIsolationAndUnsubscribe(t *testing.T) {
	ch, d, _, _ := newChannel(t)
	require.NoError(t, ch.Connect(context.Background(), "t"))

	var mu sync.Mutex
	var calls []string
	record := func(name string) {
		mu.Lock()
		calls = append(calls, name)
		mu.Unlock()
	}
	ch.Subscribe(domain.FrameNewMessage, func(domain.Frame) error {
		record("first")
		return errors.New("boom")
	})
	ch.Subscribe(domain.FrameNewMessage, func(domain.Frame) error {
		record("second")
		panic("worse")
	})
	third := ch.Subscribe(domain.FrameNewMessage, func(f domain.Frame) error {
		var w domain.WireMessage
		if err := f.Decode(&w); err != nil {
			return err
		}
		record("third:" + w.Content)
		return nil
	})
	done := make(chan struct{}, 4)
	ch.Subscribe(domain.FrameUserOnline, func(domain.Frame) error {
		done <- struct{}{}
		return nil
	})

	conn := d.last()
	conn.deliver("pong")
	conn.deliver("not json")
	conn.deliver(`{"type":"NEW_MESSAGE","data":{"id":1,"content":"hi"}}`)
	conn.deliver(`{"type":"USER_ONLINE","data":{"userId":3,"isOnline":true}}`)
	<-done

	mu.Lock()
	assert.Equal(t, []string{"first", "second", "third:hi"}, calls)
	calls = nil
	mu.Unlock()

	third.Unsubscribe()
	third.Unsubscribe()
	conn.deliver(`{"type":"NEW_MESSAGE","data":{"id":2,"content":"again"}}`)
	conn.deliver(`{"type":"USER_ONLINE","data":{}}`)
	<-done

	mu.Lock()
	assert.Equal(t, []string{"first", "second"}, calls)
	mu.Unlock()
}

func TestHeartbeat_PongKeepsConnectionAlive(t *testing.T) {
	ch, d, mock, _ := newChannel(t)
	require.NoError(t, ch.Connect(context.Background(), "t"))
	conn := d.last()

	marker := make(chan struct{}, 1)
	ch.Subscribe(domain.FrameUserOffline, func(domain.Frame) error {
		marker <- struct{}{}
		return nil
	})

	for i := 1; i <= 3; i++ {
		mock.Add(transport.DefaultHeartbeatInterval)
		require.Eventually(t, func() bool { return len(conn.writes()) == i }, wait, tick)
		assert.Equal(t, "ping", conn.writes()[i-1])

		conn.deliver("pong")
		conn.deliver(`{"type":"USER_OFFLINE","data":{}}`)
		<-marker
	}
	assert.Equal(t, domain.Connected, ch.State())
	assert.Equal(t, 1, d.dials())
}

func TestHeartbeat_MissingPongForcesReconnect(t *testing.T) {
	ch, d, mock, _ := newChannel(t)
	require.NoError(t, ch.Connect(context.Background(), "t"))
	conn := d.last()

	mock.Add(transport.DefaultHeartbeatInterval)
	require.Eventually(t, func() bool { return len(conn.writes()) == 1 }, wait, tick)

	mock.Add(transport.DefaultHeartbeatInterval)
	require.Eventually(t, func() bool { return ch.Attempts() == 1 }, wait, tick)
	assert.Equal(t, domain.Disconnected, ch.State())
	require.Eventually(t, func() bool {
		code, _ := conn.closedWith()
		return code == transport.CloseNoHeartbeat
	}, wait, tick)
	_, reason := conn.closedWith()
	assert.Equal(t, "No heartbeat response", reason)

	// First backoff delay is the base delay.
	mock.Add(transport.DefaultBaseDelay - time.Millisecond)
	assert.Equal(t, 1, d.dials())
	mock.Add(time.Millisecond)
	require.Eventually(t, func() bool { return ch.State() == domain.Connected }, wait, tick)
	assert.Equal(t, 2, d.dials())
	assert.Equal(t, 0, ch.Attempts())
}

func TestReconnect_BoundedAttempts(t *testing.T) {
	ch, d, mock, events := newChannel(t)
	require.NoError(t, ch.Connect(context.Background(), "t"))

	d.setMode(dialFail)
	d.last().serverClose(transport.CloseAbnormal, "")

	for i := 1; i <= transport.DefaultMaxAttempts; i++ {
		require.Eventually(t, func() bool { return ch.Attempts() == i }, wait, tick, "attempt %d", i)
		mock.Add(transport.Backoff(i, transport.DefaultBaseDelay, transport.DefaultMaxDelay))
		require.Eventually(t, func() bool { return d.dials() == 1+i }, wait, tick, "dial %d", i)
	}

	require.Eventually(t, events.exhausted, wait, tick)
	mock.Add(10 * time.Minute)
	assert.Equal(t, 1+transport.DefaultMaxAttempts, d.dials())
	assert.Equal(t, domain.Disconnected, ch.State())

	// A caller-driven connect still works and resets the budget.
	d.setMode(dialOK)
	require.NoError(t, ch.Connect(context.Background(), "t"))
	assert.Equal(t, 0, ch.Attempts())
}

func TestReconnect_NormalCloseDoesNotRetry(t *testing.T) {
	ch, d, mock, _ := newChannel(t)
	require.NoError(t, ch.Connect(context.Background(), "t"))

	d.last().serverClose(transport.CloseGoingAway, "server restart")
	require.Eventually(t, func() bool { return ch.State() == domain.Disconnected }, wait, tick)

	mock.Add(time.Minute)
	assert.Equal(t, 1, d.dials())
	assert.Equal(t, 0, ch.Attempts())
}

func TestDisconnect_CancelsReconnect(t *testing.T) {
	ch, d, mock, _ := newChannel(t)
	require.NoError(t, ch.Connect(context.Background(), "t"))

	d.last().serverClose(transport.CloseAbnormal, "")
	require.Eventually(t, func() bool { return ch.Attempts() == 1 }, wait, tick)

	ch.Disconnect()
	assert.Equal(t, 0, ch.Attempts())
	mock.Add(time.Minute)
	assert.Equal(t, 1, d.dials())
	assert.Equal(t, domain.Disconnected, ch.State())
}

func TestDisconnect_IntentionalClose(t *testing.T) {
	ch, d, mock, events := newChannel(t)
	require.NoError(t, ch.Connect(context.Background(), "t"))
	conn := d.last()

	ch.Disconnect()
	code, reason := conn.closedWith()
	assert.Equal(t, transport.CloseNormal, code)
	assert.Equal(t, "User disconnected", reason)
	assert.Equal(t, domain.Disconnected, ch.State())
	assert.False(t, ch.Send(domain.FrameTyping, nil))

	// Heartbeat is cancelled too.
	mock.Add(time.Minute)
	assert.Empty(t, conn.writes())
	assert.Equal(t, 1, d.dials())
	assert.Equal(t, []domain.ConnectionState{
		domain.Connecting, domain.Connected, domain.Closing, domain.Disconnected,
	}, events.states())
}

func TestConnect_Timeout(t *testing.T) {
	ch, d, mock, _ := newChannel(t)
	d.setMode(dialBlock)

	errc := make(chan error, 1)
	go func() { errc <- ch.Connect(context.Background(), "t") }()

	require.Eventually(t, func() bool { return d.dials() == 1 }, wait, tick)
	mock.Add(transport.DefaultConnectTimeout)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, domain.ErrConnectionTimeout)
	case <-time.After(wait):
		t.Fatal("connect did not time out")
	}
	assert.Equal(t, domain.Disconnected, ch.State())

	// A timeout is not a retry trigger.
	mock.Add(time.Minute)
	assert.Equal(t, 1, d.dials())
}

func TestBackoff(t *testing.T) {
	base, ceiling := time.Second, 30*time.Second
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		assert.Equal(t, w*time.Second, transport.Backoff(i+1, base, ceiling), "attempt %d", i+1)
	}
	assert.Equal(t, base, transport.Backoff(0, base, ceiling))
}
