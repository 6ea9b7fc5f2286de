package transport

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/256dpi/gomqtt/client"
	"github.com/256dpi/gomqtt/packet"
	"github.com/256dpi/gomqtt/transport"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/c2link/helpers"
	"github.com/temoto/c2link/helpers/atomic_clock"
	"github.com/temoto/c2link/log2"
)

// Single broker connection over 256dpi/gomqtt transport.
// - clean session, CONNECT/CONNACK with timeout, keepalive pings
// - QOS 0,1,2 both directions, concurrent publish flows by packet id
// - SUBSCRIBE/UNSUBSCRIBE wait for ack
// - no in-flight storage, lost connection fails pending flows
type gomqttSession struct { //nolint:maligned
	alive     *alive.Alive
	closed    uint32
	conn      atomic.Value // transport.Conn
	err       helpers.AtomicError
	lastID    uint32
	log       *log2.Log
	onMessage func(*Message)
	opt       *Options
	pingat    *atomic_clock.Clock // timestamp of last outgoing control packet
	pongat    *atomic_clock.Clock // timestamp of last incoming control packet
	sendMu    sync.Mutex

	flows struct {
		sync.Mutex
		m map[packet.ID]*helpers.Future
	}
	// inbound QOS 2 ids between PUBLISH and PUBREL
	received struct {
		sync.Mutex
		m map[packet.ID]struct{}
	}
}

func dialGomqtt(ctx context.Context, m *Manager, onMessage func(*Message)) (session, error) {
	s := &gomqttSession{
		alive:     alive.NewAlive(),
		lastID:    uint32(time.Now().UnixNano()),
		log:       m.log,
		onMessage: onMessage,
		opt:       &m.opt,
		pingat:    atomic_clock.New(0),
		pongat:    atomic_clock.New(0),
	}
	s.flows.m = make(map[packet.ID]*helpers.Future)
	s.received.m = make(map[packet.ID]struct{})

	errch := make(chan error, 1)
	s.alive.Add(1)
	go func() { errch <- s.connect() }()
	select {
	case err := <-errch:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		_ = s.die(ctx.Err())
		<-errch
		return nil, ctx.Err()
	}
}

func (s *gomqttSession) Done() <-chan struct{} { return s.alive.StopChan() }

func (s *gomqttSession) Err() error {
	err, _ := s.err.Load()
	return err
}

func (s *gomqttSession) Close() error {
	if s.alive.IsRunning() {
		_ = s.send(packet.NewDisconnect())
	}
	_ = s.die(ErrNotConnected)
	s.alive.Wait()
	return nil
}

func (s *gomqttSession) die(e error) error {
	if e == nil {
		e = ErrNotConnected
	}
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return e
	}
	s.err.StoreOnce(e)
	s.alive.Stop()
	if conn := s.getConn(); conn != nil {
		_ = conn.Close()
	}
	s.flows.Lock()
	for id, f := range s.flows.m {
		f.Resolve(e)
		delete(s.flows.m, id)
	}
	s.flows.Unlock()
	return e
}

func (s *gomqttSession) getConn() transport.Conn {
	if x := s.conn.Load(); x != nil {
		return x.(transport.Conn)
	}
	return nil
}

// dial, send CONNECT, wait CONNACK, start pinger and reader
func (s *gomqttSession) connect() error {
	defer s.alive.Done()

	dialer := transport.NewDialer(transport.DialConfig{
		TLSConfig: s.opt.TLS,
		Timeout:   s.opt.ConnectTimeout,
	})
	conn, err := dialer.Dial(s.opt.BrokerURL)
	if err != nil {
		return s.die(errors.Annotatef(err, "dial broker=%s", s.opt.BrokerURL))
	}
	s.conn.Store(conn)
	if atomic.LoadUint32(&s.closed) != 0 {
		// context canceled during dial
		_ = conn.Close()
		return s.Err()
	}

	conpkt := packet.NewConnect()
	conpkt.ClientID = s.opt.ClientID
	conpkt.KeepAlive = uint16(s.opt.Keepalive / time.Second)
	conpkt.CleanSession = true
	conpkt.Username = s.opt.Username
	conpkt.Password = s.opt.Password
	if err = s.send(conpkt); err != nil {
		return err
	}

	conn.SetReadTimeout(s.opt.ConnectTimeout)
	pkt, err := conn.Receive()
	if err != nil {
		return s.die(errors.Annotate(err, "expect CONNACK"))
	}
	connack, ok := pkt.(*packet.Connack)
	if !ok {
		return s.die(errors.Annotatef(client.ErrClientExpectedConnack, "server error pkt=%s", PacketString(pkt)))
	}
	s.log.Debugf("CONNACK=%s", connack.String())
	if connack.ReturnCode != packet.ConnectionAccepted {
		return s.die(errors.Annotate(client.ErrClientConnectionDenied, connack.ReturnCode.String()))
	}
	conn.SetReadTimeout(0)

	if !s.alive.Add(2) {
		return s.die(context.Canceled)
	}
	s.pongat.SetNow()
	go s.pinger()
	go s.reader()
	return nil
}

func (s *gomqttSession) nextID() packet.ID {
	for {
		id := packet.ID(atomic.AddUint32(&s.lastID, 1) % (1 << 16))
		if id != 0 {
			return id
		}
	}
}

func (s *gomqttSession) send(p packet.Generic) error {
	conn := s.getConn()
	if conn == nil {
		return client.ErrClientNotConnected
	}
	s.sendMu.Lock()
	err := conn.Send(p, false)
	s.sendMu.Unlock()
	if err != nil {
		return s.die(errors.Annotatef(err, "send %s", p.Type().String()))
	}
	s.pingat.SetNow()
	s.log.Debugf("sent %s", PacketString(p))
	return nil
}

// expect registers flow before its first packet is sent.
func (s *gomqttSession) expect(id packet.ID) (*helpers.Future, error) {
	f := helpers.NewFuture()
	s.flows.Lock()
	defer s.flows.Unlock()
	if atomic.LoadUint32(&s.closed) != 0 {
		return nil, s.Err()
	}
	if _, dup := s.flows.m[id]; dup {
		return nil, errors.Errorf("too many in-flight packets id=%d", id)
	}
	s.flows.m[id] = f
	return f, nil
}

func (s *gomqttSession) complete(id packet.ID, result error) {
	s.flows.Lock()
	f, ok := s.flows.m[id]
	delete(s.flows.m, id)
	s.flows.Unlock()
	if !ok {
		s.log.Errorf("unexpected ack id=%d", id)
		return
	}
	f.Resolve(result)
}

func (s *gomqttSession) forget(id packet.ID) {
	s.flows.Lock()
	delete(s.flows.m, id)
	s.flows.Unlock()
}

func (s *gomqttSession) await(ctx context.Context, f *helpers.Future, what string, id packet.ID) error {
	tmr := time.NewTimer(s.opt.NetworkTimeout)
	defer tmr.Stop()
	select {
	case <-f.Done():
		return f.Err()
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		// TODO resend with DUP instead of dropping connection
		return s.die(errors.Timeoutf("%s id=%d", what, id))
	}
}

func (s *gomqttSession) Publish(ctx context.Context, msg *Message) error {
	publish := packet.NewPublish()
	publish.Message = packet.Message{
		Topic:   msg.Topic,
		Payload: msg.Payload,
		QOS:     packet.QOS(msg.QOS),
		Retain:  msg.Retain,
	}
	if publish.Message.QOS == packet.QOSAtMostOnce {
		return s.send(publish)
	}
	publish.ID = s.nextID()
	f, err := s.expect(publish.ID)
	if err != nil {
		return err
	}
	defer s.forget(publish.ID)
	if err := s.send(publish); err != nil {
		return err
	}
	return s.await(ctx, f, "PUBLISH ack", publish.ID)
}

func (s *gomqttSession) Subscribe(ctx context.Context, filter string, qos byte) error {
	sub := packet.NewSubscribe()
	sub.ID = s.nextID()
	sub.Subscriptions = []packet.Subscription{{Topic: filter, QOS: packet.QOS(qos)}}
	f, err := s.expect(sub.ID)
	if err != nil {
		return err
	}
	defer s.forget(sub.ID)
	if err := s.send(sub); err != nil {
		return err
	}
	return s.await(ctx, f, "SUBACK", sub.ID)
}

func (s *gomqttSession) Unsubscribe(ctx context.Context, filter string) error {
	unsub := packet.NewUnsubscribe()
	unsub.ID = s.nextID()
	unsub.Topics = []string{filter}
	f, err := s.expect(unsub.ID)
	if err != nil {
		return err
	}
	defer s.forget(unsub.ID)
	if err := s.send(unsub); err != nil {
		return err
	}
	return s.await(ctx, f, "UNSUBACK", unsub.ID)
}

// Sends ping packets to keep the connection alive.
// PINGREQ is only sent if Keepalive-NetworkTimeout has passed since last command.
func (s *gomqttSession) pinger() {
	defer s.alive.Done()
	if s.opt.Keepalive <= 0 {
		return
	}

	// [MQTT-3.1.2-24] control packets must arrive at most keepalive*1.5 apart.
	keepalive := s.opt.Keepalive + s.opt.Keepalive/2
	interval := keepalive - s.opt.NetworkTimeout
	if interval < s.opt.Keepalive/2 {
		interval = s.opt.Keepalive / 2
	}
	stopch := s.alive.StopChan()
	for s.alive.IsRunning() {
		now := atomic_clock.Now()
		window := now.Sub(s.pingat)
		sincePong := now.Sub(s.pongat)

		if window > 0 && window < interval {
			select {
			case <-time.After(interval - window):
				continue
			case <-stopch:
				return
			}
		} else if err := s.send(packet.NewPingreq()); err != nil {
			return
		}

		if sincePong > keepalive {
			_ = s.die(client.ErrClientMissingPong)
			return
		}
	}
}

func (s *gomqttSession) reader() {
	defer s.alive.Done()

	conn := s.getConn()
	for {
		pkt, err := conn.Receive()
		if !s.alive.IsRunning() {
			return
		}
		switch err {
		case nil: // success path

		case io.EOF:
			_ = s.die(errors.Errorf("server closed connection"))
			return

		default:
			_ = s.die(errors.Annotate(err, "receive"))
			return
		}
		s.log.Debugf("received=%s", PacketString(pkt))
		s.pongat.SetNow()

		switch pt := pkt.(type) {
		case *packet.Connack:
			_ = s.die(errors.Errorf("server error duplicate CONNACK pkt=%s", PacketString(pkt)))
			return

		case *packet.Pingresp:

		case *packet.Publish:
			s.onPublish(pt)

		case *packet.Puback:
			s.complete(pt.ID, nil)

		case *packet.Pubrec:
			pubrel := packet.NewPubrel()
			pubrel.ID = pt.ID
			_ = s.send(pubrel)

		case *packet.Pubrel:
			s.received.Lock()
			delete(s.received.m, pt.ID)
			s.received.Unlock()
			pubcomp := packet.NewPubcomp()
			pubcomp.ID = pt.ID
			_ = s.send(pubcomp)

		case *packet.Pubcomp:
			s.complete(pt.ID, nil)

		case *packet.Suback:
			var result error
			for _, code := range pt.ReturnCodes {
				if code == packet.QOSFailure {
					result = client.ErrFailedSubscription
				}
			}
			s.complete(pt.ID, result)

		case *packet.Unsuback:
			s.complete(pt.ID, nil)

		default:
			s.log.Debugf("unexpected packet %s", PacketString(pkt))
		}
	}
}

func (s *gomqttSession) onPublish(publish *packet.Publish) {
	msg := &Message{
		Topic:   publish.Message.Topic,
		Payload: publish.Message.Payload,
		QOS:     byte(publish.Message.QOS),
		Retain:  publish.Message.Retain,
	}
	switch publish.Message.QOS {
	case packet.QOSAtMostOnce:
		s.onMessage(msg)

	case packet.QOSAtLeastOnce:
		s.onMessage(msg)
		puback := packet.NewPuback()
		puback.ID = publish.ID
		_ = s.send(puback)

	case packet.QOSExactlyOnce:
		s.received.Lock()
		_, dup := s.received.m[publish.ID]
		s.received.m[publish.ID] = struct{}{}
		s.received.Unlock()
		if !dup {
			s.onMessage(msg)
		}
		pubrec := packet.NewPubrec()
		pubrec.ID = publish.ID
		_ = s.send(pubrec)
	}
}
