package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/256dpi/gomqtt/topic"
	"github.com/temoto/c2link/log2"
)

var ErrBrokerDown = fmt.Errorf("mem broker is down")

// MemBroker is in-process broker for driver "mem": tests, dry runs and local simulation.
// QOS is accepted but delivery is always exactly once while connected.
type MemBroker struct {
	mu       sync.Mutex
	log      *log2.Log
	down     bool
	subs     *topic.Tree // *MemSession
	sessions map[*MemSession]struct{}
}

func NewMemBroker(log *log2.Log) *MemBroker {
	return &MemBroker{
		log:      log,
		subs:     topic.NewStandardTree(),
		sessions: make(map[*MemSession]struct{}),
	}
}

// SetDown true drops all sessions and refuses new ones.
func (b *MemBroker) SetDown(down bool) {
	b.mu.Lock()
	b.down = down
	var drop []*MemSession
	if down {
		for s := range b.sessions {
			drop = append(drop, s)
		}
	}
	b.mu.Unlock()
	for _, s := range drop {
		s.die(ErrBrokerDown)
	}
}

// Drop ends all sessions as unsolicited disconnect, broker stays up.
func (b *MemBroker) Drop() {
	b.mu.Lock()
	drop := make([]*MemSession, 0, len(b.sessions))
	for s := range b.sessions {
		drop = append(drop, s)
	}
	b.mu.Unlock()
	for _, s := range drop {
		s.die(fmt.Errorf("mem broker dropped connection"))
	}
}

// Client returns standalone session, e.g. simulated vehicle side in tests.
func (b *MemBroker) Client(onMessage func(*Message)) (*MemSession, error) {
	return b.connect(onMessage)
}

func (b *MemBroker) connect(onMessage func(*Message)) (*MemSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, ErrBrokerDown
	}
	s := &MemSession{
		broker:    b,
		onMessage: onMessage,
		inbox:     make(chan *Message, 256),
		done:      make(chan struct{}),
		filters:   make(map[string]struct{}),
	}
	b.sessions[s] = struct{}{}
	go s.pump()
	return s, nil
}

func (b *MemBroker) publish(msg *Message) error {
	b.mu.Lock()
	if b.down {
		b.mu.Unlock()
		return ErrBrokerDown
	}
	values := b.subs.Match(msg.Topic)
	b.mu.Unlock()
	seen := make(map[*MemSession]struct{}, len(values))
	for _, v := range values {
		s := v.(*MemSession)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		cp := *msg
		cp.Payload = append([]byte(nil), msg.Payload...)
		s.enqueue(&cp)
	}
	return nil
}

func dialMem(ctx context.Context, m *Manager, onMessage func(*Message)) (session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.opt.Mem.connect(onMessage)
}

// MemSession is one client connection to MemBroker.
type MemSession struct {
	broker    *MemBroker
	onMessage func(*Message)
	inbox     chan *Message
	done      chan struct{}
	once      sync.Once
	err       error
	filters   map[string]struct{} // guarded by broker.mu
}

func (s *MemSession) pump() {
	for {
		select {
		case msg := <-s.inbox:
			s.onMessage(msg)
		case <-s.done:
			return
		}
	}
}

func (s *MemSession) enqueue(msg *Message) {
	select {
	case s.inbox <- msg:
	case <-s.done:
	}
}

func (s *MemSession) die(err error) {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		delete(b.sessions, s)
		for f := range s.filters {
			b.subs.Remove(f, s)
		}
		s.err = err
		b.mu.Unlock()
		close(s.done)
	})
}

func (s *MemSession) alive() error {
	select {
	case <-s.done:
		return ErrNotConnected
	default:
		return nil
	}
}

func (s *MemSession) Publish(ctx context.Context, msg *Message) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.broker.publish(msg)
}

func (s *MemSession) Subscribe(ctx context.Context, filter string, qos byte) error {
	if err := s.alive(); err != nil {
		return err
	}
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := s.filters[filter]; !ok {
		s.filters[filter] = struct{}{}
		b.subs.Add(filter, s)
	}
	return nil
}

func (s *MemSession) Unsubscribe(ctx context.Context, filter string) error {
	if err := s.alive(); err != nil {
		return err
	}
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := s.filters[filter]; ok {
		delete(s.filters, filter)
		b.subs.Remove(filter, s)
	}
	return nil
}

func (s *MemSession) Done() <-chan struct{} { return s.done }

func (s *MemSession) Err() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return s.err
}

func (s *MemSession) Close() error {
	s.die(ErrNotConnected)
	return nil
}
