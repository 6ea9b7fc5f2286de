package command

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/c2link/internal/journal"
	"github.com/temoto/c2link/log2"
	"github.com/temoto/c2link/transport"
)

// Outbox keeps command frames which could not be published.
// Worker delivers them in order once transport is connected.
// Acknowledgements of queued commands are not awaited.
type Outbox struct {
	log *log2.Log
	q   *journal.Queue
	// per record publish bound
	PublishTimeout time.Duration
}

func OpenOutbox(path string, retry time.Duration, log *log2.Log) (*Outbox, error) {
	q, err := journal.Open(path, "outbox", log)
	if err != nil {
		return nil, err
	}
	if retry > 0 {
		q.RetryDelay = retry
	}
	return &Outbox{log: log, q: q, PublishTimeout: DefaultTimeout}, nil
}

func (o *Outbox) Push(r *journal.Record) error { return o.q.Push(r) }
func (o *Outbox) Pending() int                 { return o.q.Pending() }
func (o *Outbox) Close() error                 { return o.q.Close() }

// Run blocks until a is stopped.
func (o *Outbox) Run(a *alive.Alive, tr Transport) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-a.StopChan()
		cancel()
	}()
	o.q.Run(a, func(r *journal.Record) (bool, error) {
		if r.Kind != journal.KindCommand {
			return true, errors.NotValidf("outbox record kind=%d", r.Kind)
		}
		if err := tr.WaitConnected(ctx); err != nil {
			return false, nil
		}
		pubctx, pubcancel := context.WithTimeout(ctx, o.PublishTimeout)
		defer pubcancel()
		err := tr.Publish(pubctx, r.Topic, r.Payload, transport.PublishOptions{QOS: r.QOS})
		if err != nil {
			return false, errors.Annotatef(err, "outbox deliver topic=%s queued=%s", r.Topic, r.Time.Format(time.RFC3339))
		}
		o.log.Infof("outbox delivered topic=%s queued=%s", r.Topic, r.Time.Format(time.RFC3339))
		return true, nil
	})
	cancel()
}
