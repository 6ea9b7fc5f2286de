package journal

import (
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/c2link/log2"
	"github.com/temoto/spq"
)

const DefaultRetryDelay = 5 * time.Second

// Handler returns done=false to keep record for later retry.
// Error is logged, record with done=true is deleted regardless.
type Handler func(r *Record) (done bool, err error)

// Queue contract:
// - Push blocks at most for disk write
// - records are handled in push order, one at a time
// - retried record goes to the tail after RetryDelay
type Queue struct {
	log        *log2.Log
	name       string
	q          *spq.Queue
	RetryDelay time.Duration
	pending    int64
}

// Open path=spq.OnlyForTesting keeps queue in memory.
func Open(path, name string, log *log2.Log) (*Queue, error) {
	q, err := spq.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "%s queue path=%s", name, path)
	}
	return &Queue{
		log:        log,
		name:       name,
		q:          q,
		RetryDelay: DefaultRetryDelay,
	}, nil
}

func (q *Queue) Push(r *Record) error {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	if err := q.q.MarshalPush(r); err != nil {
		return errors.Annotatef(err, "%s queue push", q.name)
	}
	atomic.AddInt64(&q.pending, 1)
	return nil
}

// Pending counts records pushed and not yet deleted by this process.
// Records left from previous run are not counted.
func (q *Queue) Pending() int {
	if n := atomic.LoadInt64(&q.pending); n > 0 {
		return int(n)
	}
	return 0
}

func (q *Queue) Close() error { return q.q.Close() }

// Run is the queue worker, blocks until a is stopped or queue closed.
func (q *Queue) Run(a *alive.Alive, h Handler) {
	defer a.Done()
	defer q.q.Close()
	stopch := a.StopChan()
	go func() {
		<-stopch
		_ = q.q.Close()
	}()
	for {
		box, err := q.q.Peek()
		switch err {
		case nil: // success path
			if !q.handle(box, h) {
				select {
				case <-time.After(q.RetryDelay):
				case <-stopch:
					return
				}
			}

		case spq.ErrClosed:
			select {
			case <-stopch: // success path
			default:
				q.log.Errorf("CRITICAL %s queue closed unexpectedly", q.name)
			}
			return

		default:
			q.log.Errorf("CRITICAL %s queue err=%v", q.name, err)
			select {
			case <-time.After(q.RetryDelay):
			case <-stopch:
				return
			}
		}
	}
}

// handle returns false when record stays queued.
func (q *Queue) handle(box spq.Box, h Handler) bool {
	var r Record
	if err := box.Unmarshal(&r); err != nil {
		q.log.Errorf("%s queue drop invalid b=%x err=%v", q.name, box.Bytes(), err)
		q.delete(box)
		return true
	}
	done, err := h(&r)
	if err != nil {
		q.log.Errorf("%s queue handle topic=%s err=%v", q.name, r.Topic, err)
	}
	if done {
		q.delete(box)
		return true
	}
	if err := q.q.DeletePush(box); err != nil {
		q.log.Errorf("%s queue requeue err=%v", q.name, err)
	}
	return false
}

func (q *Queue) delete(box spq.Box) {
	if err := q.q.Delete(box); err != nil {
		q.log.Errorf("%s queue delete err=%v", q.name, err)
		return
	}
	atomic.AddInt64(&q.pending, -1)
}
