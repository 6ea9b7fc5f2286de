package mavlink

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/c2link/log2"
	"github.com/temoto/extremofile"
)

type checkpointStorage interface {
	Read() ([]byte, error)
	io.Writer
}

// Checkpoint persists last issued signing timestamp so it keeps growing across restarts
// even when system clock goes back.
type Checkpoint struct {
	sync.Mutex
	log      *log2.Log
	storage  checkpointStorage
	interval time.Duration
}

func NewCheckpoint(dir string, interval time.Duration, log *log2.Log) *Checkpoint {
	return &Checkpoint{
		log: log,
		storage: extremofile.New(extremofile.Config{
			Dir:      dir,
			DirPerm:  0700,
			FilePerm: 0600,
		}),
		interval: interval,
	}
}

// Load restores signer floor to stored value plus one interval,
// timestamps issued after last Store are below that.
func (c *Checkpoint) Load(s *Signer) error {
	c.Lock()
	defer c.Unlock()
	b, err := c.storage.Read()
	if b == nil {
		if err != nil {
			return errors.Annotate(err, "signing checkpoint Load")
		}
		return nil
	}
	if err != nil {
		c.log.Errorf("signing checkpoint ignore non-critical storage err=%v", err)
	}
	if len(b) != 8 {
		return errors.NotValidf("signing checkpoint length=%d", len(b))
	}
	ts := binary.LittleEndian.Uint64(b)
	s.Restore(ts + uint64(c.interval/tick))
	c.log.Debugf("signing checkpoint restored ts=%d", ts)
	return nil
}

func (c *Checkpoint) Store(s *Signer) error {
	c.Lock()
	defer c.Unlock()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], s.Last())
	_, err := c.storage.Write(b[:])
	return errors.Annotate(err, "signing checkpoint Store")
}

// Run stores checkpoint every interval until a is stopped, then once more.
func (c *Checkpoint) Run(a *alive.Alive, s *Signer) {
	defer a.Done()
	tmr := time.NewTicker(c.interval)
	defer tmr.Stop()
	last := s.Last()
	for {
		select {
		case <-tmr.C:
			if cur := s.Last(); cur != last {
				if err := c.Store(s); err != nil {
					c.log.Error(err)
					continue
				}
				last = cur
			}
		case <-a.StopChan():
			if err := c.Store(s); err != nil {
				c.log.Error(err)
			}
			return
		}
	}
}
