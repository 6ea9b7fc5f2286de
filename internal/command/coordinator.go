package command

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/c2link/internal/journal"
	"github.com/temoto/c2link/internal/types"
	"github.com/temoto/c2link/log2"
	"github.com/temoto/c2link/mavlink"
	"github.com/temoto/c2link/transport"
)

// Transport is the part of transport.Manager used for commands.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte, po transport.PublishOptions) error
	Subscribe(ctx context.Context, filter string, qos byte) (*transport.Subscription, error)
	WaitConnected(ctx context.Context) error
}

// Coordinator contract:
// - SendCommand returns exactly one Result, never retries
// - ack subscription is made before publish so early ack is not lost
// - caller context cancel ends the wait but not the publish already issued
// - transport failure outcome is decided by Settings.Fallback
type Coordinator struct {
	Settings

	log     *log2.Log
	store   types.VehicleStore
	tr      Transport
	encoder *mavlink.Encoder
	parser  *mavlink.Parser
	topics  transport.Topics
	outbox  *Outbox
	now     func() time.Time
}

// NewCoordinator outbox may be nil unless Settings.Fallback is FallbackQueue.
func NewCoordinator(s Settings, store types.VehicleStore, tr Transport, encoder *mavlink.Encoder, parser *mavlink.Parser, topics transport.Topics, outbox *Outbox, log *log2.Log) (*Coordinator, error) {
	if s.Fallback == FallbackQueue && outbox == nil {
		return nil, errors.NotValidf("command fallback=%s without outbox", s.Fallback)
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.EmergencyTimeout <= 0 {
		s.EmergencyTimeout = DefaultEmergencyTimeout
	}
	if s.QOS == 0 {
		s.QOS = DefaultQOS
	}
	return &Coordinator{
		Settings: s,
		log:      log,
		store:    store,
		tr:       tr,
		encoder:  encoder,
		parser:   parser,
		topics:   topics,
		outbox:   outbox,
		now:      time.Now,
	}, nil
}

func (c *Coordinator) window(cmd Command) time.Duration {
	if _, ok := cmd.(EmergencyStop); ok {
		return c.EmergencyTimeout
	}
	return c.Timeout
}

func (c *Coordinator) SendCommand(ctx context.Context, vehicleID string, cmd Command) Result {
	r := c.send(ctx, vehicleID, cmd)
	if r.OK() {
		c.log.Infof("command vehicle=%s %s result=%s", vehicleID, cmd, r)
	} else {
		c.log.Errorf("command vehicle=%s %s result=%s", vehicleID, cmd, r)
	}
	return r
}

func (c *Coordinator) send(ctx context.Context, vehicleID string, cmd Command) Result {
	if _, err := c.store.GetByID(ctx, vehicleID); err != nil {
		if errors.IsNotFound(err) {
			return Rejected("vehicle not found: " + vehicleID)
		}
		return Rejected(fmt.Sprintf("vehicle lookup: %v", err))
	}
	target := types.SystemID(vehicleID)
	frame := cmd.encode(c.encoder, target)
	if len(frame) == 0 {
		return Rejected("encode failure")
	}
	window := c.window(cmd)
	deadline := time.NewTimer(window)
	defer deadline.Stop()
	topic := c.topics.Commands(vehicleID)

	sub, err := c.tr.Subscribe(ctx, c.topics.CommandAck(vehicleID), 1)
	if err != nil {
		if ctx.Err() != nil {
			return Rejected("canceled")
		}
		return c.fallback(vehicleID, cmd, topic, frame, errors.Annotate(err, "subscribe ack"))
	}
	defer sub.Close()

	// publish outlives caller context, bounded by wait window and transport network timeout
	puberr := make(chan error, 1)
	go func() {
		pubctx, cancel := context.WithTimeout(context.Background(), window)
		defer cancel()
		puberr <- c.tr.Publish(pubctx, topic, frame, transport.PublishOptions{QOS: c.QOS})
	}()

	wire := cmd.wireID()
	for {
		select {
		case err := <-puberr:
			if err != nil {
				if errors.IsTimeout(err) || errors.Cause(err) == context.DeadlineExceeded {
					return Timeout()
				}
				return c.fallback(vehicleID, cmd, topic, frame, errors.Annotate(err, "publish"))
			}
			puberr = nil

		case msg, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					return Rejected("canceled")
				}
				return c.fallback(vehicleID, cmd, topic, frame, errors.New("ack subscription closed"))
			}
			if r, done := c.onAck(vehicleID, target, wire, msg); done {
				return r
			}

		case <-deadline.C:
			return Timeout()

		case <-ctx.Done():
			return Rejected("canceled")
		}
	}
}

// onAck done=false means keep waiting.
func (c *Coordinator) onAck(vehicleID string, target uint8, wire uint16, msg *transport.Message) (Result, bool) {
	for _, f := range c.parser.Parse(msg.Payload) {
		ack, ok := mavlink.MapAck(f)
		if !ok {
			continue
		}
		if ack.Command != wire {
			c.log.Debugf("command vehicle=%s skip ack for command=%d waiting=%d", vehicleID, ack.Command, wire)
			continue
		}
		if ack.SystemID != target {
			c.log.Debugf("command vehicle=%s ack from system=%d expected=%d", vehicleID, ack.SystemID, target)
		}
		switch class := ack.Class(); class {
		case mavlink.AckAccepted:
			return Acknowledged(), true
		case mavlink.AckInProgress:
			c.log.Debugf("command vehicle=%s in progress=%d%%", vehicleID, ack.Progress)
		case mavlink.AckDenied, mavlink.AckTemporarilyRejected:
			return Rejected(class.String()), true
		default:
			return Rejected(fmt.Sprintf("%s: %d", class, ack.Result)), true
		}
	}
	return Result{}, false
}

func (c *Coordinator) fallback(vehicleID string, cmd Command, topic string, frame []byte, cause error) Result {
	c.log.Errorf("command vehicle=%s %s transport failure policy=%s err=%v", vehicleID, cmd, c.Fallback, cause)
	switch c.Fallback {
	case FallbackQueue:
		rec := &journal.Record{Kind: journal.KindCommand, Topic: topic, QOS: c.QOS, Payload: frame}
		if err := c.outbox.Push(rec); err != nil {
			return Rejected(fmt.Sprintf("outbox: %v", err))
		}
		return Queued()

	case FallbackReject:
		return Rejected(fmt.Sprintf("transport: %v", errors.Cause(cause)))

	default:
		if err := c.applyLocal(vehicleID, cmd); err != nil {
			c.log.Errorf("command vehicle=%s apply local err=%v", vehicleID, err)
		}
		r := Acknowledged()
		r.Local = true
		return r
	}
}

// applyLocal ignores caller context, result is already decided.
func (c *Coordinator) applyLocal(vehicleID string, cmd Command) error {
	status, ok := cmd.localStatus()
	if !ok {
		return nil
	}
	ctx := context.Background()
	v, err := c.store.GetByID(ctx, vehicleID)
	if err != nil {
		return err
	}
	v.Status = status
	v.LastSeen = c.now()
	return c.store.Upsert(ctx, v)
}
