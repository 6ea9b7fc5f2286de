package mavlink

import (
	"bytes"

	"github.com/juju/errors"
	"github.com/temoto/c2link/log2"
)

// Parser decodes a byte stream into frames.
// Bad frames are dropped and scanning resumes at next byte.
type Parser struct {
	// Reject unsigned frames and signed frames that fail verification.
	RequireSigned bool

	log    *log2.Log
	signer *Signer
}

// NewParser signer may be nil. When signer is configured, signed frames are verified.
func NewParser(signer *Signer, log *log2.Log) *Parser {
	return &Parser{log: log, signer: signer}
}

// Parse returns all complete valid frames in buf, in order.
// Incomplete trailing frame is silently left out.
func (p *Parser) Parse(buf []byte) []Frame {
	var frames []Frame
	for len(buf) > 0 {
		f, n, err := p.Next(buf)
		buf = buf[n:]
		if err == nil {
			frames = append(frames, f)
			continue
		}
		if errors.Cause(err) == ErrTruncated {
			break
		}
		p.log.Debugf("mavlink drop err=%v", err)
	}
	return frames
}

// Next decodes first frame in buf.
// n is number of bytes to discard before calling Next again.
// ErrTruncated means buf[n:] holds no complete frame yet.
func (p *Parser) Next(buf []byte) (Frame, int, error) {
	start := bytes.IndexByte(buf, Magic)
	if start < 0 {
		return Frame{}, len(buf), ErrTruncated
	}
	b := buf[start:]
	if len(b) < HeaderLen {
		return Frame{}, start, ErrTruncated
	}
	incompat := b[2]
	if incompat&^IncompatSigned != 0 {
		return Frame{}, start + 1, errors.Annotatef(ErrFrameInvalid, "incompat flags=%02x", incompat)
	}
	plen := int(b[1])
	end := HeaderLen + plen
	total := end + ChecksumLen
	signed := incompat&IncompatSigned != 0
	if signed {
		total += SignatureLen
	}
	if len(b) < total {
		return Frame{}, start, ErrTruncated
	}
	raw := b[:total]
	id := frameMsgID(raw)
	info, known := registry[id]
	if known {
		declared := le.Uint16(raw[end:])
		if actual := frameCRC(raw[:end], info.crcExtra); actual != declared {
			return Frame{}, start + 1, errors.Annotatef(ErrCRC, "msgid=%d declared=%04x actual=%04x", id, declared, actual)
		}
	}
	switch {
	case p.RequireSigned && !signed:
		return Frame{}, start + 1, errors.Annotatef(ErrSignature, "msgid=%d unsigned", id)
	case signed && (p.RequireSigned || p.signer.Configured()) && !p.signer.Verify(raw):
		return Frame{}, start + 1, errors.Annotatef(ErrSignature, "msgid=%d", id)
	}

	f := Frame{
		Seq:           raw[4],
		SystemID:      raw[5],
		ComponentID:   raw[6],
		MsgID:         id,
		IncompatFlags: incompat,
		CompatFlags:   raw[3],
		Signed:        signed,
		Raw:           append([]byte(nil), raw...),
	}
	if signed {
		sig := raw[end+ChecksumLen:]
		f.LinkID = sig[0]
		for i := 0; i < 6; i++ {
			f.Timestamp |= uint64(sig[1+i]) << (8 * i)
		}
	}
	if known {
		// zero-extend truncated payload
		payload := make([]byte, info.length)
		copy(payload, raw[HeaderLen:end])
		f.Message = info.new()
		f.Message.unmarshalPayload(payload)
	} else {
		f.Message = &Unknown{ID: id, Payload: append([]byte(nil), raw[HeaderLen:end]...)}
	}
	return f, start + total, nil
}
