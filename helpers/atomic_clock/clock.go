// Package atomic_clock is lock free timestamp for last sent/received accounting.
// Monotonic reading is lost, only use for intervals where wall clock jumps are tolerable.
package atomic_clock

import (
	"sync/atomic"
	"time"
)

type Clock struct{ v int64 }

func New(unixNano int64) *Clock { return &Clock{v: unixNano} }
func Now() *Clock               { return New(time.Now().UnixNano()) }

func (c *Clock) UnixNano() int64 { return atomic.LoadInt64(&c.v) }
func (c *Clock) IsZero() bool    { return c.UnixNano() == 0 }
func (c *Clock) SetNow()         { atomic.StoreInt64(&c.v, time.Now().UnixNano()) }
func (c *Clock) Time() time.Time { return time.Unix(0, c.UnixNano()) }

// Sub returns c-begin.
func (c *Clock) Sub(begin *Clock) time.Duration { return time.Duration(c.UnixNano() - begin.UnixNano()) }

func Since(begin *Clock) time.Duration { return time.Duration(time.Now().UnixNano() - begin.UnixNano()) }
