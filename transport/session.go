package transport

import (
	"context"
	"fmt"
)

const (
	DriverGomqtt = "gomqtt"
	DriverPaho   = "paho"
	DriverMem    = "mem"
)

var ErrNotConnected = fmt.Errorf("transport is not connected")

// Message is inbound or outbound application message.
type Message struct {
	Topic   string
	Payload []byte
	QOS     byte
	Retain  bool
}

type PublishOptions struct {
	QOS    byte
	Retain bool
}

// session is one live broker connection, replaced by Manager on reconnect.
type session interface {
	Publish(ctx context.Context, msg *Message) error
	Subscribe(ctx context.Context, filter string, qos byte) error
	Unsubscribe(ctx context.Context, filter string) error
	// Done is closed when connection is lost or closed.
	Done() <-chan struct{}
	// Err returns cause of connection loss.
	Err() error
	// Close sends DISCONNECT when possible.
	Close() error
}

type dialFunc func(ctx context.Context, m *Manager, onMessage func(*Message)) (session, error)

var drivers = map[string]dialFunc{
	DriverGomqtt: dialGomqtt,
	DriverPaho:   dialPaho,
	DriverMem:    dialMem,
}
