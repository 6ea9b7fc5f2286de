// Package telemetry turns vehicle telemetry stream into stored vehicle state and history.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/c2link/helpers"
	"github.com/temoto/c2link/internal/journal"
	"github.com/temoto/c2link/internal/types"
	"github.com/temoto/c2link/log2"
	"github.com/temoto/c2link/mavlink"
	"github.com/temoto/c2link/transport"
)

type Store interface {
	types.VehicleStore
	types.TelemetrySink
	List(ctx context.Context) ([]*types.Vehicle, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type Transport interface {
	Subscribe(ctx context.Context, filter string, qos byte) (*transport.Subscription, error)
	WaitConnected(ctx context.Context) error
}

// Service contract:
// - inbound telemetry is journaled before processing when journal is set
// - each message updates vehicle record and appends one snapshot once position is known
// - vehicle updates are serialized, watchdog and ingest never lose each other's changes
type Service struct {
	config  Config
	log     *log2.Log
	store   Store
	tr      Transport
	parser  *mavlink.Parser
	topics  transport.Topics
	journal *journal.Queue
	now     func() time.Time

	mu sync.Mutex // vehicle read-modify-write
}

// NewService q may be nil, then messages are processed directly.
func NewService(c Config, store Store, tr Transport, parser *mavlink.Parser, topics transport.Topics, q *journal.Queue, log *log2.Log) *Service {
	return &Service{
		config:  c,
		log:     log,
		store:   store,
		tr:      tr,
		parser:  parser,
		topics:  topics,
		journal: q,
		now:     time.Now,
	}
}

// Run starts workers and blocks until a is stopped.
func (s *Service) Run(a *alive.Alive) {
	defer a.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-a.StopChan()
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.subscriber(ctx) }()
	go func() { defer wg.Done(); s.periodic(ctx, s.config.stale()/2, s.checkStale) }()
	go func() { defer wg.Done(); s.periodic(ctx, s.config.cleanupInterval(), s.cleanup) }()
	if s.journal != nil {
		wg.Add(1)
		qa := alive.NewAlive()
		qa.Add(1)
		go func() { defer wg.Done(); s.journal.Run(qa, s.handleRecord) }()
		go helpers.AliveSub(a, qa)
	}
	wg.Wait()
}

func (s *Service) subscriber(ctx context.Context) {
	filter := s.topics.TelemetryAll()
	backoff := helpers.Backoff{Min: time.Second, Max: time.Minute, K: 2}
	for ctx.Err() == nil {
		if err := s.tr.WaitConnected(ctx); err != nil {
			return
		}
		sub, err := s.tr.Subscribe(ctx, filter, 0)
		if err != nil {
			delay := backoff.DelayAfter(false)
			s.log.Errorf("telemetry subscribe filter=%s err=%v retry in %s", filter, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		s.log.Debugf("telemetry subscribed filter=%s", filter)
		for msg := range sub.C() {
			s.accept(ctx, msg)
		}
		// subscription survives reconnects, closed channel means manager is closed or ctx canceled
		return
	}
}

func (s *Service) accept(ctx context.Context, msg *transport.Message) {
	at := s.now()
	if s.journal == nil {
		if err := s.HandleMessage(ctx, msg.Topic, msg.Payload, at); err != nil {
			s.log.Errorf("telemetry topic=%s err=%v", msg.Topic, err)
		}
		return
	}
	r := &journal.Record{Kind: journal.KindTelemetry, Time: at, Topic: msg.Topic, QOS: msg.QOS, Payload: msg.Payload}
	if err := s.journal.Push(r); err != nil {
		s.log.Errorf("telemetry journal topic=%s err=%v", msg.Topic, err)
	}
}

func (s *Service) handleRecord(r *journal.Record) (bool, error) {
	if r.Kind != journal.KindTelemetry {
		return true, errors.NotValidf("telemetry journal record kind=%d", r.Kind)
	}
	err := s.HandleMessage(context.Background(), r.Topic, r.Payload, r.Time)
	switch {
	case err == nil:
		return true, nil
	case errors.IsNotFound(err):
		s.log.Debugf("telemetry drop %v", err)
		return true, nil
	case errors.IsNotValid(err):
		return true, err
	}
	return false, err
}

// HandleMessage applies one telemetry payload received at given time.
func (s *Service) HandleMessage(ctx context.Context, topic string, payload []byte, at time.Time) error {
	vehicleID, ok := s.topics.VehicleID(topic)
	if !ok {
		return errors.NotValidf("telemetry topic=%s", topic)
	}
	var updates []mavlink.TelemetryUpdate
	for _, f := range s.parser.Parse(payload) {
		if u, ok := mavlink.MapTelemetry(f); ok {
			updates = append(updates, u)
		}
	}
	if len(updates) == 0 {
		s.log.Debugf("telemetry vehicle=%s no updates in %d bytes", vehicleID, len(payload))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.store.GetByID(ctx, vehicleID)
	switch {
	case err == nil:
	case errors.IsNotFound(err) && s.config.AutoRegister:
		v = &types.Vehicle{ID: vehicleID, Name: vehicleID}
		s.log.Infof("telemetry register vehicle=%s", vehicleID)
	default:
		return errors.Annotatef(err, "telemetry vehicle=%s", vehicleID)
	}
	for _, u := range updates {
		v.Apply(u, at)
	}
	if err := s.store.Upsert(ctx, v); err != nil {
		return err
	}
	if snap := v.Snapshot(at); snap != nil {
		return s.store.Insert(ctx, snap)
	}
	return nil
}

func (s *Service) periodic(ctx context.Context, interval time.Duration, f func(context.Context, time.Time) error) {
	tmr := time.NewTicker(interval)
	defer tmr.Stop()
	for {
		select {
		case <-tmr.C:
			if err := f(ctx, s.now()); err != nil && ctx.Err() == nil {
				s.log.Error(err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) checkStale(ctx context.Context, now time.Time) error {
	_, err := s.CheckStale(ctx, now)
	return err
}

// CheckStale marks vehicles not heard since now-stale as LOST_LINK, returns their count.
func (s *Service) CheckStale(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, err := s.store.List(ctx)
	if err != nil {
		return 0, errors.Annotate(err, "telemetry watchdog")
	}
	limit := now.Add(-s.config.stale())
	n := 0
	for _, v := range vs {
		if !v.Connected || !v.LastSeen.Before(limit) {
			continue
		}
		v.Connected = false
		v.Status = types.StatusLostLink
		if err := s.store.Upsert(ctx, v); err != nil {
			return n, errors.Annotate(err, "telemetry watchdog")
		}
		s.log.Infof("telemetry vehicle=%s lost link, last seen %s ago", v.ID, now.Sub(v.LastSeen).Truncate(time.Millisecond))
		n++
	}
	return n, nil
}

func (s *Service) cleanup(ctx context.Context, now time.Time) error {
	_, err := s.Cleanup(ctx, now)
	return err
}

// Cleanup deletes telemetry older than retention.
func (s *Service) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.DeleteOlderThan(ctx, now.Add(-s.config.retention()))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debugf("telemetry cleanup removed=%d", n)
	}
	return n, nil
}
