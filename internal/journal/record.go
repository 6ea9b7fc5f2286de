// Package journal is a durable FIFO of broker messages on top of spq.
// Command outbox and telemetry ingest use it so nothing accepted is lost across restarts.
package journal

import (
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
)

// denote record kind in persistent queue bytes form
type Kind byte

const (
	KindInvalid   Kind = 0
	KindCommand   Kind = 1
	KindTelemetry Kind = 2
)

// Record is one queued broker message.
// Binary form: varint kind, varint unix nanos, bytes topic, varint qos, bytes payload.
type Record struct {
	Kind    Kind
	Time    time.Time
	Topic   string
	QOS     byte
	Payload []byte
}

func (r *Record) MarshalBinary() ([]byte, error) {
	buf := proto.NewBuffer(make([]byte, 0, 32+len(r.Topic)+len(r.Payload)))
	if err := buf.EncodeVarint(uint64(r.Kind)); err != nil {
		return nil, err
	}
	if err := buf.EncodeVarint(uint64(r.Time.UnixNano())); err != nil {
		return nil, err
	}
	if err := buf.EncodeStringBytes(r.Topic); err != nil {
		return nil, err
	}
	if err := buf.EncodeVarint(uint64(r.QOS)); err != nil {
		return nil, err
	}
	if err := buf.EncodeRawBytes(r.Payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return errors.NotValidf("journal record empty")
	}
	buf := proto.NewBuffer(b)
	kind, err := buf.DecodeVarint()
	if err != nil {
		return errors.Annotate(err, "journal record kind")
	}
	if kind == uint64(KindInvalid) || kind > 0xff {
		return errors.NotValidf("journal record kind=%d", kind)
	}
	nanos, err := buf.DecodeVarint()
	if err != nil {
		return errors.Annotate(err, "journal record time")
	}
	topic, err := buf.DecodeStringBytes()
	if err != nil {
		return errors.Annotate(err, "journal record topic")
	}
	qos, err := buf.DecodeVarint()
	if err != nil {
		return errors.Annotate(err, "journal record qos")
	}
	payload, err := buf.DecodeRawBytes(true)
	if err != nil {
		return errors.Annotate(err, "journal record payload")
	}
	*r = Record{
		Kind:    Kind(kind),
		Time:    time.Unix(0, int64(nanos)),
		Topic:   topic,
		QOS:     byte(qos),
		Payload: payload,
	}
	return nil
}
