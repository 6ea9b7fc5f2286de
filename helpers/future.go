// Future is one-shot result of asynchronous operation, e.g. MQTT packet flow
// waiting for its acknowledgement. Done channel allows waiting in custom select.
// Idea from https://github.com/256dpi/gomqtt client/future.

package helpers

import (
	"sync"
)

type Future struct {
	err  error
	done chan struct{}
	once sync.Once
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed after Resolve.
func (f *Future) Done() <-chan struct{} { return f.done }

// Resolve sets result once, nil err means success. Returns false if already resolved.
func (f *Future) Resolve(err error) bool {
	ok := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		ok = true
	})
	return ok
}

// Err is valid after Done is closed.
func (f *Future) Err() error {
	<-f.done
	return f.err
}
