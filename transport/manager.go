package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/256dpi/gomqtt/topic"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/c2link/log2"
)

var ErrClosed = fmt.Errorf("transport manager is closed")

// Manager owns single broker connection.
// - NewManager returns only configuration errors, no network IO
// - Connect is explicit, reconnect after unsolicited loss is automatic
//   with fixed delay and limited attempts
// - any number of concurrent subscriptions, each is a separate ordered stream
// - subscriptions survive reconnect
// - Publish while not connected returns ErrNotConnected
type Manager struct { //nolint:maligned
	alive *alive.Alive
	log   *log2.Log
	opt   Options
	dial  dialFunc

	mu        sync.Mutex
	state     State
	attempt   int
	session   session
	connected chan struct{} // closed while state is Connected
	timer     *time.Timer
	watchers  map[chan State]struct{}

	flowMu  sync.Mutex // serializes broker SUBSCRIBE/UNSUBSCRIBE with registry changes
	subMu   sync.Mutex
	filters map[string]*filterEntry
	tree    *topic.Tree // *Subscription
}

type filterEntry struct {
	qos  byte
	subs map[*Subscription]struct{}
}

func NewManager(opt Options, log *log2.Log) (*Manager, error) {
	if err := opt.normalize(); err != nil {
		return nil, err
	}
	m := &Manager{
		alive:     alive.NewAlive(),
		log:       log,
		opt:       opt,
		dial:      drivers[opt.Driver],
		state:     State{Kind: StateDisconnected},
		connected: make(chan struct{}),
		watchers:  make(map[chan State]struct{}),
		filters:   make(map[string]*filterEntry),
		tree:      topic.NewStandardTree(),
	}
	return m, nil
}

func (m *Manager) Options() Options { return m.opt }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch returns channel of state changes. Slow reader misses changes, State() is authoritative.
func (m *Manager) Watch() (<-chan State, func()) {
	ch := make(chan State, 32)
	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			if _, ok := m.watchers[ch]; ok {
				delete(m.watchers, ch)
				close(ch)
			}
			m.mu.Unlock()
		})
	}
}

// WaitConnected blocks until state is Connected.
func (m *Manager) WaitConnected(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.state.Kind == StateConnected {
			m.mu.Unlock()
			return nil
		}
		ch := m.connected
		m.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-m.alive.StopChan():
			return ErrClosed
		}
	}
}

// Connect is no-op when connected or connecting.
// Failure schedules reconnect and returns the cause.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.alive.IsRunning() {
		return ErrClosed
	}
	m.mu.Lock()
	switch m.state.Kind {
	case StateConnected, StateConnecting:
		m.mu.Unlock()
		return nil
	case StateDisconnected:
		m.attempt = 0
	case StateError:
		if m.state.Final {
			m.attempt = 0
		}
	}
	m.stopTimerLocked()
	m.setStateLocked(State{Kind: StateConnecting})
	m.mu.Unlock()
	return m.connect(ctx)
}

func (m *Manager) connect(ctx context.Context) error {
	if !m.alive.Add(1) {
		return ErrClosed
	}
	defer m.alive.Done()

	s, err := m.dial(ctx, m, m.dispatch)
	m.mu.Lock()
	if kind := m.state.Kind; kind != StateConnecting && kind != StateReconnecting {
		// Disconnect or Close while dialing
		m.mu.Unlock()
		if s != nil {
			_ = s.Close()
		}
		if err == nil {
			err = ErrNotConnected
		}
		return err
	}
	if err != nil {
		err = errors.Annotatef(err, "connect broker=%s", m.opt.BrokerURL)
		m.log.Error(err)
		m.failLocked(err)
		m.mu.Unlock()
		return err
	}
	m.session = s
	m.attempt = 0
	m.setStateLocked(State{Kind: StateConnected})
	if m.alive.Add(1) {
		go m.watch(s)
	}
	m.mu.Unlock()

	m.resubscribe(ctx, s)
	return nil
}

// Disconnect explicitly, no reconnect. Subscriptions stay registered for next Connect.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.stopTimerLocked()
	s := m.session
	m.session = nil
	if m.state.Kind != StateDisconnected {
		m.setStateLocked(State{Kind: StateDisconnected})
	}
	m.mu.Unlock()
	if s != nil {
		return s.Close()
	}
	return nil
}

// Close disconnects, ends all subscriptions and watchers, waits for workers.
func (m *Manager) Close() error {
	err := m.Disconnect()
	m.alive.Stop()
	m.alive.Wait()

	m.subMu.Lock()
	var subs []*Subscription
	for _, e := range m.filters {
		for s := range e.subs {
			subs = append(subs, s)
		}
	}
	m.subMu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}

	m.mu.Lock()
	for ch := range m.watchers {
		close(ch)
	}
	m.watchers = map[chan State]struct{}{}
	m.mu.Unlock()
	return err
}

func (m *Manager) Publish(ctx context.Context, topic string, payload []byte, po PublishOptions) error {
	if po.QOS > 2 {
		return errors.NotValidf("publish qos=%d", po.QOS)
	}
	s := m.current()
	if s == nil {
		return ErrNotConnected
	}
	msg := &Message{Topic: topic, Payload: payload, QOS: po.QOS, Retain: po.Retain}
	err := s.Publish(ctx, msg)
	return errors.Annotatef(err, "publish topic=%s", topic)
}

// Subscribe returns stream of messages matching filter.
// Stream ends on Close, ctx cancel or Manager.Close.
func (m *Manager) Subscribe(ctx context.Context, filter string, qos byte) (*Subscription, error) {
	if qos > 2 {
		return nil, errors.NotValidf("subscribe qos=%d", qos)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.flowMu.Lock()
	defer m.flowMu.Unlock()
	s := m.current()
	if s == nil {
		return nil, ErrNotConnected
	}

	sub := newSubscription(filter, qos, m.opt.SubscriptionBuffer, m.unsubscribe)
	m.subMu.Lock()
	e := m.filters[filter]
	needBroker := e == nil || qos > e.qos
	if e == nil {
		e = &filterEntry{qos: qos, subs: make(map[*Subscription]struct{})}
		m.filters[filter] = e
	}
	prevQOS := e.qos
	if qos > e.qos {
		e.qos = qos
	}
	e.subs[sub] = struct{}{}
	m.tree.Add(filter, sub)
	m.subMu.Unlock()

	if needBroker {
		if err := s.Subscribe(ctx, filter, qos); err != nil {
			m.subMu.Lock()
			e.qos = prevQOS
			m.removeLocked(sub)
			m.subMu.Unlock()
			sub.unsub = nil
			_ = sub.Close()
			return nil, errors.Annotatef(err, "subscribe filter=%s", filter)
		}
	}
	m.log.Debugf("subscribed filter=%s qos=%d", filter, qos)

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.Done():
			}
		}()
	}
	return sub, nil
}

// removeLocked returns true if sub was last for its filter.
func (m *Manager) removeLocked(sub *Subscription) bool {
	e, ok := m.filters[sub.filter]
	if !ok {
		return false
	}
	if _, ok := e.subs[sub]; !ok {
		return false
	}
	delete(e.subs, sub)
	m.tree.Remove(sub.filter, sub)
	if len(e.subs) == 0 {
		delete(m.filters, sub.filter)
		return true
	}
	return false
}

func (m *Manager) unsubscribe(sub *Subscription) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()
	m.subMu.Lock()
	last := m.removeLocked(sub)
	m.subMu.Unlock()
	if !last {
		return nil
	}
	s := m.current()
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opt.NetworkTimeout)
	defer cancel()
	err := s.Unsubscribe(ctx, sub.filter)
	m.log.Debugf("unsubscribed filter=%s err=%v", sub.filter, err)
	return errors.Annotatef(err, "unsubscribe filter=%s", sub.filter)
}

func (m *Manager) resubscribe(ctx context.Context, s session) {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()
	m.subMu.Lock()
	filters := make(map[string]byte, len(m.filters))
	for f, e := range m.filters {
		filters[f] = e.qos
	}
	m.subMu.Unlock()
	for f, qos := range filters {
		if err := s.Subscribe(ctx, f, qos); err != nil {
			m.log.Errorf("resubscribe filter=%s err=%v", f, err)
		}
	}
}

func (m *Manager) dispatch(msg *Message) {
	m.subMu.Lock()
	values := m.tree.Match(msg.Topic)
	m.subMu.Unlock()
	if len(values) == 0 {
		m.log.Debugf("dropped message without subscriber topic=%s", msg.Topic)
		return
	}
	for _, v := range values {
		v.(*Subscription).deliver(msg)
	}
}

func (m *Manager) current() session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != StateConnected {
		return nil
	}
	return m.session
}

func (m *Manager) watch(s session) {
	defer m.alive.Done()
	select {
	case <-s.Done():
	case <-m.alive.StopChan():
		return
	}
	cause := s.Err()
	if cause == nil {
		cause = ErrNotConnected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		return
	}
	m.session = nil
	m.log.Errorf("connection lost: %v", cause)
	if m.attempt >= m.opt.MaxReconnectAttempts {
		m.setStateLocked(State{Kind: StateError, Err: cause, Final: true})
		return
	}
	m.attempt++
	m.setStateLocked(State{Kind: StateReconnecting, Attempt: m.attempt})
	m.scheduleLocked()
}

func (m *Manager) failLocked(cause error) {
	if m.attempt >= m.opt.MaxReconnectAttempts {
		m.setStateLocked(State{Kind: StateError, Err: cause, Final: true})
		return
	}
	m.setStateLocked(State{Kind: StateError, Err: cause})
	m.attempt++
	m.scheduleLocked()
}

func (m *Manager) scheduleLocked() {
	m.stopTimerLocked()
	m.log.Debugf("reconnect attempt=%d in %v", m.attempt, m.opt.ReconnectDelay)
	m.timer = time.AfterFunc(m.opt.ReconnectDelay, m.reconnect)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) reconnect() {
	if !m.alive.IsRunning() {
		return
	}
	m.mu.Lock()
	m.timer = nil
	switch {
	case m.state.Kind == StateReconnecting:
	case m.state.Kind == StateError && !m.state.Final:
		m.setStateLocked(State{Kind: StateReconnecting, Attempt: m.attempt})
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.opt.ConnectTimeout)
	defer cancel()
	_ = m.connect(ctx)
}

func (m *Manager) setStateLocked(st State) {
	prev := m.state
	m.state = st
	if prev.Kind != StateConnected && st.Kind == StateConnected {
		close(m.connected)
	} else if prev.Kind == StateConnected && st.Kind != StateConnected {
		m.connected = make(chan struct{})
	}
	m.log.Debugf("state %s -> %s", prev, st)
	for ch := range m.watchers {
		select {
		case ch <- st:
		default:
			m.log.Debugf("state watcher is slow, dropped %s", st)
		}
	}
}
