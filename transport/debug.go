package transport

import (
	"fmt"

	"github.com/256dpi/gomqtt/packet"
)

// debugPayloadMax bounds hex dump of frames in debug log.
const debugPayloadMax = 64

// PacketString PUBLISH payload as hex, no duplicate "Message=<Message"
func PacketString(p packet.Generic) string {
	switch pkt := p.(type) {
	case nil:
		return "(nil)"
	case *packet.Publish:
		return fmt.Sprintf("<Publish ID=%d Dup=%t %s>", pkt.ID, pkt.Dup, MessageString(&pkt.Message))
	case *packet.Subscribe:
		return fmt.Sprintf("<Subscribe ID=%d %v>", pkt.ID, pkt.Subscriptions)
	}
	return p.String()
}

func MessageString(m *packet.Message) string {
	if m == nil {
		return "message=nil"
	}
	payload, more := m.Payload, ""
	if len(payload) > debugPayloadMax {
		payload, more = payload[:debugPayloadMax], fmt.Sprintf("...(%d)", len(m.Payload))
	}
	return fmt.Sprintf("Topic=%q QOS=%d Retain=%t Payload=%x%s", m.Topic, m.QOS, m.Retain, payload, more)
}
