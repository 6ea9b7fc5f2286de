package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/c2link/log2"
)

const testTimeout = 5 * time.Second

func newMemManager(t testing.TB, b *MemBroker, attempts int) *Manager {
	opt := Options{
		Driver:               DriverMem,
		Mem:                  b,
		ReconnectDelay:       10 * time.Millisecond,
		MaxReconnectAttempts: attempts,
	}
	m, err := NewManager(opt, log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func recvMessage(t testing.TB, ch <-chan *Message) *Message {
	select {
	case m, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func recvState(t testing.TB, ch <-chan State) State {
	select {
	case s := <-ch:
		return s
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for state")
		return State{}
	}
}

func TestManagerPublishSubscribe(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	b := NewMemBroker(log2.NewTest(t, log2.LDebug))
	m := newMemManager(t, b, 3)

	assert.Equal(t, StateDisconnected, m.State().Kind)
	assert.Equal(t, ErrNotConnected, m.Publish(ctx, "x", nil, PublishOptions{}))
	_, err := m.Subscribe(ctx, "x", 0)
	assert.Equal(t, ErrNotConnected, err)

	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Connect(ctx), "connect when connected is no-op")
	assert.Equal(t, StateConnected, m.State().Kind)

	all, err := m.Subscribe(ctx, "c2/drones/+/telemetry", 1)
	require.NoError(t, err)
	one, err := m.Subscribe(ctx, "c2/drones/d1/telemetry", 0)
	require.NoError(t, err)

	for i := byte(1); i <= 3; i++ {
		require.NoError(t, m.Publish(ctx, "c2/drones/d1/telemetry", []byte{i}, PublishOptions{QOS: 1}))
	}
	require.NoError(t, m.Publish(ctx, "c2/drones/d2/telemetry", []byte{9}, PublishOptions{QOS: 2}))
	for i := byte(1); i <= 3; i++ {
		assert.Equal(t, []byte{i}, recvMessage(t, all.C()).Payload, "order preserved")
		assert.Equal(t, []byte{i}, recvMessage(t, one.C()).Payload)
	}
	msg := recvMessage(t, all.C())
	assert.Equal(t, "c2/drones/d2/telemetry", msg.Topic)

	assert.Error(t, m.Publish(ctx, "x", nil, PublishOptions{QOS: 3}))
}

func TestManagerSubscriptionClose(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	b := NewMemBroker(log2.NewTest(t, log2.LDebug))
	m := newMemManager(t, b, 3)
	require.NoError(t, m.Connect(ctx))

	const filter = "c2/drones/d1/command_ack"
	s1, err := m.Subscribe(ctx, filter, 1)
	require.NoError(t, err)
	s2, err := m.Subscribe(ctx, filter, 1)
	require.NoError(t, err)

	require.NoError(t, s1.Close())
	require.NoError(t, s1.Close())
	_, ok := <-s1.C()
	assert.False(t, ok)
	assert.Len(t, b.subs.Match(filter), 1, "filter still used by s2")

	subctx, cancel := context.WithCancel(ctx)
	s3, err := m.Subscribe(subctx, "c2/drones/d2/command_ack", 0)
	require.NoError(t, err)
	cancel()
	for range s3.C() {
	}
	assert.Len(t, b.subs.Match("c2/drones/d2/command_ack"), 0)

	require.NoError(t, s2.Close())
	assert.Len(t, b.subs.Match(filter), 0, "last close unsubscribes from broker")
}

func TestManagerReconnectResubscribes(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	b := NewMemBroker(log2.NewTest(t, log2.LDebug))
	m := newMemManager(t, b, 3)
	require.NoError(t, m.Connect(ctx))
	sub, err := m.Subscribe(ctx, "c2/drones/+/telemetry", 0)
	require.NoError(t, err)
	watch, stop := m.Watch()
	defer stop()

	b.Drop()
	assert.Equal(t, State{Kind: StateReconnecting, Attempt: 1}, recvState(t, watch))
	assert.Equal(t, State{Kind: StateConnected}, recvState(t, watch))
	require.NoError(t, m.WaitConnected(ctx))

	peer, err := b.Client(func(*Message) {})
	require.NoError(t, err)
	defer peer.Close()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, peer.Publish(ctx, &Message{Topic: "c2/drones/d7/telemetry", Payload: []byte{7}}))
		select {
		case msg := <-sub.C():
			assert.Equal(t, []byte{7}, msg.Payload)
			return
		case <-tick.C:
		case <-ctx.Done():
			t.Fatal("no message after reconnect")
		}
	}
}

func TestManagerReconnectExhausted(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	b := NewMemBroker(log2.NewTest(t, log2.LDebug))
	m := newMemManager(t, b, 2)
	require.NoError(t, m.Connect(ctx))
	watch, stop := m.Watch()
	defer stop()

	b.SetDown(true)
	assert.Equal(t, State{Kind: StateReconnecting, Attempt: 1}, recvState(t, watch))
	s := recvState(t, watch)
	assert.Equal(t, StateError, s.Kind)
	assert.False(t, s.Final)
	assert.Equal(t, State{Kind: StateReconnecting, Attempt: 2}, recvState(t, watch))
	s = recvState(t, watch)
	assert.Equal(t, StateError, s.Kind)
	assert.True(t, s.Final)
	assert.Error(t, s.Err)

	select {
	case s := <-watch:
		t.Fatalf("unexpected state after final error: %s", s)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, ErrNotConnected, m.Publish(ctx, "x", nil, PublishOptions{}))

	b.SetDown(false)
	require.NoError(t, m.Connect(ctx), "explicit connect starts over")
	assert.Equal(t, StateConnected, m.State().Kind)
}

func TestManagerConnectFailureSchedulesReconnect(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	b := NewMemBroker(log2.NewTest(t, log2.LDebug))
	b.SetDown(true)
	m := newMemManager(t, b, 100)
	watch, stop := m.Watch()
	defer stop()

	require.Error(t, m.Connect(ctx))
	assert.Equal(t, StateConnecting, recvState(t, watch).Kind)
	s := recvState(t, watch)
	assert.Equal(t, StateError, s.Kind)
	assert.Equal(t, ErrBrokerDown, errors.Cause(s.Err))

	b.SetDown(false)
	require.NoError(t, m.WaitConnected(ctx))
}

func TestManagerDisconnect(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	b := NewMemBroker(log2.NewTest(t, log2.LDebug))
	m := newMemManager(t, b, 3)
	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Disconnect())
	assert.Equal(t, StateDisconnected, m.State().Kind)
	b.Drop()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateDisconnected, m.State().Kind, "no reconnect after explicit disconnect")

	require.NoError(t, m.Close())
	assert.Equal(t, ErrClosed, m.Connect(ctx))
	waitctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.Equal(t, ErrClosed, m.WaitConnected(waitctx))
}

func TestManagerConnectWhileConnecting(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	b := NewMemBroker(log2.NewTest(t, log2.LDebug))
	m := newMemManager(t, b, 3)
	gate := make(chan struct{})
	dialing := make(chan struct{}, 4)
	var dials int32
	m.dial = func(ctx context.Context, m *Manager, onMessage func(*Message)) (session, error) {
		atomic.AddInt32(&dials, 1)
		dialing <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return dialMem(ctx, m, onMessage)
	}
	watch, stop := m.Watch()
	defer stop()

	first := make(chan error, 1)
	go func() { first <- m.Connect(ctx) }()
	select {
	case <-dialing:
	case <-ctx.Done():
		t.Fatal("dial not started")
	}
	assert.Equal(t, StateConnecting, recvState(t, watch).Kind)
	assert.Equal(t, StateConnecting, m.State().Kind)

	require.NoError(t, m.Connect(ctx), "connect while connecting is no-op")
	close(gate)
	require.NoError(t, <-first)
	assert.Equal(t, StateConnected, recvState(t, watch).Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
	select {
	case s := <-watch:
		t.Fatalf("unexpected state %s", s)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestManagerStalledSubscription(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	b := NewMemBroker(log2.NewTest(t, log2.LInfo))
	m := newMemManager(t, b, 3)
	require.NoError(t, m.Connect(ctx))

	stalled, err := m.Subscribe(ctx, "c2/drones/+/telemetry", 0)
	require.NoError(t, err)
	ack, err := m.Subscribe(ctx, "c2/drones/drone-1/command_ack", 1)
	require.NoError(t, err)

	const n = 3 * DefaultSubscriptionBuffer
	for i := 0; i < n; i++ {
		require.NoError(t, m.Publish(ctx, "c2/drones/drone-1/telemetry", []byte(fmt.Sprint(i)), PublishOptions{}))
	}
	require.NoError(t, m.Publish(ctx, "c2/drones/drone-1/command_ack", []byte("ack"), PublishOptions{QOS: 1}))
	assert.Equal(t, []byte("ack"), recvMessage(t, ack.C()).Payload, "full subscription must not block other topics")

	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprint(i), string(recvMessage(t, stalled.C()).Payload))
	}
	assert.Equal(t, 0, stalled.Pending())

	require.NoError(t, m.Publish(ctx, "c2/drones/drone-2/telemetry", []byte("late"), PublishOptions{}))
	require.NoError(t, stalled.Close())
	for range stalled.C() {
	}
}
