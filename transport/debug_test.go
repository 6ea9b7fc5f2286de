package transport

import (
	"bytes"
	"strings"
	"testing"

	"github.com/256dpi/gomqtt/packet"
	"github.com/stretchr/testify/assert"
)

func TestPacketString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "(nil)", PacketString(nil))

	pub := packet.NewPublish()
	pub.ID = 3
	pub.Message = packet.Message{Topic: "c2/drones/drone-1/commands", QOS: 2, Payload: []byte{0xfd, 0x01}}
	assert.Equal(t, `<Publish ID=3 Dup=false Topic="c2/drones/drone-1/commands" QOS=2 Retain=false Payload=fd01>`, PacketString(pub))

	pub.Message.Payload = bytes.Repeat([]byte{0xab}, 100)
	s := PacketString(pub)
	assert.True(t, strings.HasSuffix(s, "...(100)>"), s)
	assert.Equal(t, debugPayloadMax, strings.Count(s, "ab"))
}
