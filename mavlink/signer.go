package mavlink

import (
	"crypto/hmac"
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
)

const KeySize = 32

var ErrInvalidKeySize = errors.NewNotValid(nil, "signing key must be 32 bytes")

// Signing timestamps count 10us ticks since 2015-01-01T00:00:00Z.
var signingEpoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

const tick = 10 * time.Microsecond

func TimestampAt(t time.Time) uint64 {
	d := t.Sub(signingEpoch)
	if d < 0 {
		return 0
	}
	return uint64(d / tick)
}

// SigningParams are valid for exactly one outbound frame.
type SigningParams struct {
	Key       [KeySize]byte
	LinkID    uint8
	Timestamp uint64
}

// Signer holds the link key and issues strictly increasing timestamps.
// Safe for concurrent use.
type Signer struct {
	clock func() time.Time
	mu    sync.RWMutex
	key   [KeySize]byte
	link  uint8
	ok    bool
	last  uint64
}

func NewSigner(clock func() time.Time) *Signer {
	if clock == nil {
		clock = time.Now
	}
	return &Signer{clock: clock}
}

// DeriveKey returns SHA-256 of passphrase.
func DeriveKey(passphrase string) [KeySize]byte {
	return sha256.Sum256([]byte(passphrase))
}

// Configure replaces key and link id.
func (s *Signer) Configure(key []byte, linkID uint8) error {
	if len(key) != KeySize {
		return ErrInvalidKeySize
	}
	s.mu.Lock()
	copy(s.key[:], key)
	s.link = linkID
	s.ok = true
	s.mu.Unlock()
	return nil
}

func (s *Signer) Configured() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ok
}

// NextParams returns ok=false if signer is not configured.
func (s *Signer) NextParams() (SigningParams, bool) {
	if s == nil {
		return SigningParams{}, false
	}
	s.mu.RLock()
	p := SigningParams{Key: s.key, LinkID: s.link}
	ok := s.ok
	s.mu.RUnlock()
	if !ok {
		return SigningParams{}, false
	}
	p.Timestamp = s.nextTimestamp()
	return p, true
}

// max(prev+1, now), lock free.
func (s *Signer) nextTimestamp() uint64 {
	now := TimestampAt(s.clock())
	for {
		prev := atomic.LoadUint64(&s.last)
		next := now
		if next <= prev {
			next = prev + 1
		}
		if atomic.CompareAndSwapUint64(&s.last, prev, next) {
			return next
		}
	}
}

// Last returns most recently issued timestamp.
func (s *Signer) Last() uint64 { return atomic.LoadUint64(&s.last) }

// Restore raises timestamp floor, e.g. from checkpoint after restart.
func (s *Signer) Restore(ts uint64) {
	for {
		prev := atomic.LoadUint64(&s.last)
		if ts <= prev || atomic.CompareAndSwapUint64(&s.last, prev, ts) {
			return
		}
	}
}

// Sign returns copy of complete unsigned frame with signed flag set,
// checksum recomputed and 13 byte signature appended.
func (s *Signer) Sign(frame []byte) ([]byte, error) {
	if len(frame) < MinFrameLen || frame[0] != Magic {
		return nil, errors.Annotate(ErrFrameInvalid, "sign")
	}
	if frame[2]&IncompatSigned != 0 {
		return nil, errors.Annotate(ErrFrameInvalid, "sign: already signed")
	}
	end := HeaderLen + int(frame[1])
	if end+ChecksumLen != len(frame) {
		return nil, errors.Annotatef(ErrFrameInvalid, "sign: length=%d declared payload=%d", len(frame), frame[1])
	}
	extra, known := CRCExtra(frameMsgID(frame))
	if !known {
		return nil, errors.NotSupportedf("sign message id=%d", frameMsgID(frame))
	}
	p, ok := s.NextParams()
	if !ok {
		return nil, ErrNotConfigured
	}

	b := make([]byte, end, end+ChecksumLen+SignatureLen)
	copy(b, frame[:end])
	b[2] |= IncompatSigned
	sum := frameCRC(b, extra)
	b = append(b, byte(sum), byte(sum>>8))
	return p.appendSignature(b), nil
}

func (p *SigningParams) appendSignature(b []byte) []byte {
	var ts [6]byte
	for i := range ts {
		ts[i] = byte(p.Timestamp >> (8 * i))
	}
	b = append(b, p.LinkID)
	b = append(b, ts[:]...)
	return append(b, signatureTag(p.Key[:], b)...)
}

// data is frame up to and including link id and timestamp
func signatureTag(key, data []byte) []byte {
	var buf [sha256.Size]byte
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(data)
	return h.Sum(buf[:0])[:SignatureTag]
}

// Verify returns true only for well formed signed frame with valid tag.
func (s *Signer) Verify(frame []byte) bool {
	if s == nil || len(frame) < MinSignedFrameLen || frame[0] != Magic || frame[2]&IncompatSigned == 0 {
		return false
	}
	s.mu.RLock()
	key, ok := s.key, s.ok
	s.mu.RUnlock()
	if !ok {
		return false
	}
	end := HeaderLen + int(frame[1]) + ChecksumLen
	if end+SignatureLen > len(frame) {
		return false
	}
	expect := signatureTag(key[:], frame[:end+1+6])
	return hmac.Equal(expect, frame[end+7:end+SignatureLen])
}
