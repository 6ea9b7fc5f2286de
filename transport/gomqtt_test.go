package transport

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/256dpi/gomqtt/client"
	"github.com/256dpi/gomqtt/packet"
	"github.com/256dpi/gomqtt/transport"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/c2link/log2"
)

// fakeBroker accepts one connection and answers packets until DISCONNECT.
// Every received packet type goes to seen.
type fakeBroker struct {
	addr    string
	connack packet.ConnackCode
	seen    chan packet.Type
	done    chan struct{}
}

func startFakeBroker(t *testing.T, connack packet.ConnackCode) *fakeBroker {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	fb := &fakeBroker{
		addr:    ln.Addr().String(),
		connack: connack,
		seen:    make(chan packet.Type, 64),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(fb.done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.SetDeadline(time.Now().Add(testTimeout))
		fb.serve(t, transport.NewNetConn(conn))
	}()
	return fb
}

func (fb *fakeBroker) serve(t *testing.T, b *transport.NetConn) {
	defer b.Close()
	for {
		pkt, err := b.Receive()
		if err != nil {
			return
		}
		fb.seen <- pkt.Type()
		var reply []packet.Generic
		switch p := pkt.(type) {
		case *packet.Connect:
			assert.Equal(t, "test-client", p.ClientID)
			assert.True(t, p.CleanSession)
			connack := packet.NewConnack()
			connack.ReturnCode = fb.connack
			reply = append(reply, connack)

		case *packet.Subscribe:
			suback := packet.NewSuback()
			suback.ID = p.ID
			for _, s := range p.Subscriptions {
				code := s.QOS
				if s.Topic == "forbidden" {
					code = packet.QOSFailure
				}
				suback.ReturnCodes = append(suback.ReturnCodes, code)
			}
			reply = append(reply, suback)
			if p.Subscriptions[0].Topic != "forbidden" {
				pub := packet.NewPublish()
				pub.ID = 7
				pub.Message = packet.Message{Topic: "c2/drones/d1/telemetry", Payload: []byte("hello"), QOS: packet.QOSAtLeastOnce}
				reply = append(reply, pub)
			}

		case *packet.Publish:
			switch p.Message.QOS {
			case packet.QOSAtLeastOnce:
				puback := packet.NewPuback()
				puback.ID = p.ID
				reply = append(reply, puback)
			case packet.QOSExactlyOnce:
				pubrec := packet.NewPubrec()
				pubrec.ID = p.ID
				reply = append(reply, pubrec)
			}

		case *packet.Pubrel:
			pubcomp := packet.NewPubcomp()
			pubcomp.ID = p.ID
			reply = append(reply, pubcomp)

		case *packet.Unsubscribe:
			unsuback := packet.NewUnsuback()
			unsuback.ID = p.ID
			reply = append(reply, unsuback)

		case *packet.Disconnect:
			return
		}
		for _, r := range reply {
			if err := b.Send(r, false); err != nil {
				return
			}
		}
	}
}

func newGomqttManager(t *testing.T, addr string) *Manager {
	opt := Options{
		Driver:         DriverGomqtt,
		BrokerURL:      fmt.Sprintf("tcp://%s", addr),
		ClientID:       "test-client",
		NetworkTimeout: testTimeout,
		ConnectTimeout: testTimeout,
		ReconnectDelay: time.Hour,
	}
	m, err := NewManager(opt, log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	return m
}

func TestGomqttSession(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	fb := startFakeBroker(t, packet.ConnectionAccepted)
	m := newGomqttManager(t, fb.addr)

	require.NoError(t, m.Connect(ctx))
	sub, err := m.Subscribe(ctx, "c2/drones/+/telemetry", 1)
	require.NoError(t, err)
	msg := recvMessage(t, sub.C())
	assert.Equal(t, "c2/drones/d1/telemetry", msg.Topic)
	assert.Equal(t, []byte("hello"), msg.Payload)

	require.NoError(t, m.Publish(ctx, "c2/drones/d1/commands", []byte{0}, PublishOptions{QOS: 0}))
	require.NoError(t, m.Publish(ctx, "c2/drones/d1/commands", []byte{1}, PublishOptions{QOS: 1}))
	require.NoError(t, m.Publish(ctx, "c2/drones/d1/commands", []byte{2}, PublishOptions{QOS: 2}))

	_, err = m.Subscribe(ctx, "forbidden", 0)
	assert.Equal(t, client.ErrFailedSubscription, errors.Cause(err))

	require.NoError(t, sub.Close())
	require.NoError(t, m.Close())
	select {
	case <-fb.done:
	case <-time.After(testTimeout):
		t.Fatal("fake broker did not finish")
	}
	close(fb.seen)
	seen := make(map[packet.Type]int)
	for pt := range fb.seen {
		seen[pt]++
	}
	assert.Equal(t, map[packet.Type]int{
		packet.CONNECT:     1,
		packet.SUBSCRIBE:   2,
		packet.PUBACK:      1,
		packet.PUBLISH:     3,
		packet.PUBREL:      1,
		packet.UNSUBSCRIBE: 1,
		packet.DISCONNECT:  1,
	}, seen)
}

func TestGomqttConnectDenied(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	fb := startFakeBroker(t, packet.NotAuthorized)
	m := newGomqttManager(t, fb.addr)
	defer m.Close()

	err := m.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, client.ErrClientConnectionDenied, errors.Cause(err))
	s := m.State()
	assert.Equal(t, StateError, s.Kind)
	assert.False(t, s.Final)
}
