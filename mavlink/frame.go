package mavlink

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/c2link/crc"
)

var (
	ErrTruncated     = errors.New("mavlink: frame truncated")
	ErrFrameInvalid  = errors.New("mavlink: frame invalid")
	ErrCRC           = errors.New("mavlink: checksum mismatch")
	ErrSignature     = errors.New("mavlink: signature invalid")
	ErrNotConfigured = errors.New("mavlink: signer is not configured")
)

// Frame is one parsed MAVLink v2 frame.
type Frame struct {
	Seq           uint8
	SystemID      uint8
	ComponentID   uint8
	MsgID         uint32
	IncompatFlags uint8
	CompatFlags   uint8
	Signed        bool
	LinkID        uint8
	Timestamp     uint64 // 10us ticks since 2015-01-01, signed frames only
	Message       Message
	Raw           []byte
}

func (f *Frame) String() string {
	return fmt.Sprintf("mavlink.Frame(%s seq=%d sys=%d comp=%d signed=%t len=%d)",
		MessageName(f.MsgID), f.Seq, f.SystemID, f.ComponentID, f.Signed, len(f.Raw))
}

func frameMsgID(b []byte) uint32 {
	return uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16
}

func frameCRC(b []byte, extra byte) uint16 {
	return crc.X25Next(crc.X25Update(crc.X25Init, b[1:]), extra)
}

// marshalFrame returns unsigned frame with payload trailing zeros truncated.
func marshalFrame(seq, sysID, compID uint8, msg Message) ([]byte, error) {
	id := msg.MsgID()
	info, ok := registry[id]
	if !ok {
		return nil, errors.NotSupportedf("message id=%d", id)
	}
	payload := msg.marshalPayload()
	if len(payload) != info.length {
		return nil, errors.Errorf("code error %s payload length=%d expected=%d", info.name, len(payload), info.length)
	}
	n := len(payload)
	for n > 1 && payload[n-1] == 0 {
		n--
	}
	b := make([]byte, HeaderLen, HeaderLen+n+ChecksumLen+SignatureLen)
	b[0] = Magic
	b[1] = byte(n)
	b[2] = 0
	b[3] = 0
	b[4] = seq
	b[5] = sysID
	b[6] = compID
	b[7] = byte(id)
	b[8] = byte(id >> 8)
	b[9] = byte(id >> 16)
	b = append(b, payload[:n]...)
	sum := frameCRC(b, info.crcExtra)
	b = append(b, byte(sum), byte(sum>>8))
	return b, nil
}
