package transport

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/c2link/helpers"
	"github.com/temoto/c2link/log2"
)

var pahoLogOnce sync.Once

// Broker connection over eclipse/paho.
// Paho auto reconnect is disabled, Manager owns reconnect policy.
type pahoSession struct {
	c       mqtt.Client
	log     *log2.Log
	opt     *Options
	done    chan struct{}
	err     helpers.AtomicError
	closeMu sync.Once
}

func dialPaho(ctx context.Context, m *Manager, onMessage func(*Message)) (session, error) {
	pahoLogOnce.Do(func() {
		mqtt.ERROR = m.log
		mqtt.CRITICAL = m.log
		mqtt.WARN = m.log
	})

	s := &pahoSession{
		log:  m.log,
		opt:  &m.opt,
		done: make(chan struct{}),
	}
	mopt := mqtt.NewClientOptions().
		AddBroker(m.opt.BrokerURL).
		SetClientID(m.opt.ClientID).
		SetUsername(m.opt.Username).
		SetPassword(m.opt.Password).
		SetCleanSession(true).
		SetKeepAlive(m.opt.Keepalive).
		SetPingTimeout(m.opt.NetworkTimeout).
		SetConnectTimeout(m.opt.ConnectTimeout).
		SetWriteTimeout(m.opt.NetworkTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
			onMessage(&Message{
				Topic:   msg.Topic(),
				Payload: msg.Payload(),
				QOS:     msg.Qos(),
				Retain:  msg.Retained(),
			})
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.die(errors.Annotate(err, "paho connection lost"))
		})
	if m.opt.TLS != nil {
		mopt.SetTLSConfig(m.opt.TLS)
	}
	s.c = mqtt.NewClient(mopt)

	if err := s.wait(ctx, s.c.Connect(), m.opt.ConnectTimeout, "connect"); err != nil {
		s.c.Disconnect(0)
		return nil, err
	}
	return s, nil
}

func (s *pahoSession) wait(ctx context.Context, t mqtt.Token, timeout time.Duration, what string) error {
	tmr := time.NewTimer(timeout)
	defer tmr.Stop()
	select {
	case <-t.Done():
		return errors.Annotate(t.Error(), what)
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		err, _ := s.err.Load()
		return errors.Annotate(err, what)
	case <-tmr.C:
		return errors.Timeoutf(what)
	}
}

func (s *pahoSession) die(e error) {
	s.closeMu.Do(func() {
		if e == nil {
			e = ErrNotConnected
		}
		s.err.StoreOnce(e)
		close(s.done)
	})
}

func (s *pahoSession) Done() <-chan struct{} { return s.done }

func (s *pahoSession) Err() error {
	err, _ := s.err.Load()
	return err
}

func (s *pahoSession) Close() error {
	s.c.Disconnect(uint(s.opt.NetworkTimeout / time.Millisecond))
	s.die(ErrNotConnected)
	return nil
}

func (s *pahoSession) Publish(ctx context.Context, msg *Message) error {
	t := s.c.Publish(msg.Topic, msg.QOS, msg.Retain, msg.Payload)
	return s.wait(ctx, t, s.opt.NetworkTimeout, "paho publish")
}

func (s *pahoSession) Subscribe(ctx context.Context, filter string, qos byte) error {
	t := s.c.Subscribe(filter, qos, nil)
	return s.wait(ctx, t, s.opt.NetworkTimeout, "paho subscribe")
}

func (s *pahoSession) Unsubscribe(ctx context.Context, filter string) error {
	t := s.c.Unsubscribe(filter)
	return s.wait(ctx, t, s.opt.NetworkTimeout, "paho unsubscribe")
}
