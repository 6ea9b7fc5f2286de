package transport

import (
	"sync"
)

// Subscription is a stream of messages matching one topic filter.
// Messages arrive in broker order. Close or parent context cancel ends stream.
// Slow consumer only delays its own stream: pending messages wait in unbounded queue.
type Subscription struct {
	filter string
	qos    byte
	ch     chan *Message
	done   chan struct{}
	pumped chan struct{}
	wake   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
	queue  []*Message
	err    error
	unsub  func(*Subscription) error
}

func newSubscription(filter string, qos byte, buffer int, unsub func(*Subscription) error) *Subscription {
	s := &Subscription{
		filter: filter,
		qos:    qos,
		ch:     make(chan *Message, buffer),
		done:   make(chan struct{}),
		pumped: make(chan struct{}),
		wake:   make(chan struct{}, 1),
		unsub:  unsub,
	}
	go s.pump()
	return s
}

func (s *Subscription) Filter() string { return s.filter }

// C is closed after Close.
func (s *Subscription) C() <-chan *Message { return s.ch }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Pending counts messages accepted from broker and not yet moved to C.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close unsubscribes from broker (when this is last subscription of the filter) before return.
// Undelivered messages are dropped. Safe to call multiple times, returns first result.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.unsub != nil {
			s.err = s.unsub(s)
		}
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		<-s.pumped
	})
	return s.err
}

// deliver never blocks, broker reader is shared by all subscriptions.
func (s *Subscription) deliver(m *Message) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, m)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// pump is the only sender on ch.
func (s *Subscription) pump() {
	defer close(s.pumped)
	defer close(s.ch)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, m := range batch {
			select {
			case s.ch <- m:
			case <-s.done:
				return
			}
		}
		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}
