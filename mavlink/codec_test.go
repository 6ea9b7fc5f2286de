package mavlink

import (
	"bytes"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/c2link/log2"
)

func TestCommandRoundTrip(t *testing.T) {
	t.Parallel()

	type Case struct {
		name    string
		encode  func(e *Encoder) []byte
		command uint16
		params  [7]float32
	}
	cases := []Case{
		{"arm", func(e *Encoder) []byte { return e.EncodeArm(3, false) }, CmdComponentArmDisarm, [7]float32{1}},
		{"arm-force", func(e *Encoder) []byte { return e.EncodeArm(3, true) }, CmdComponentArmDisarm, [7]float32{1, 21196}},
		{"disarm", func(e *Encoder) []byte { return e.EncodeDisarm(3, false) }, CmdComponentArmDisarm, [7]float32{0}},
		{"disarm-force", func(e *Encoder) []byte { return e.EncodeDisarm(3, true) }, CmdComponentArmDisarm, [7]float32{0, 21196}},
		{"emergency-stop", func(e *Encoder) []byte { return e.EncodeEmergencyStop(3) }, CmdComponentArmDisarm, [7]float32{0, 21196}},
		{"takeoff", func(e *Encoder) []byte { return e.EncodeTakeoff(3, 42.5) }, CmdNavTakeoff, [7]float32{0, 0, 0, 0, 0, 0, 42.5}},
		{"land", func(e *Encoder) []byte { return e.EncodeLand(3) }, CmdNavLand, [7]float32{}},
		{"rtl", func(e *Encoder) []byte { return e.EncodeReturnToLaunch(3) }, CmdNavReturnToLaunch, [7]float32{}},
		{"goto", func(e *Encoder) []byte { return e.EncodeGoTo(3, 47.5, 8.25, 120) }, CmdDoReposition, [7]float32{0, 0, 0, 0, 47.5, 8.25, 120}},
		{"set-mode", func(e *Encoder) []byte { return e.EncodeSetMode(3, 6) }, CmdDoSetMode, [7]float32{1, 6}},
		{"start-mission", func(e *Encoder) []byte { return e.EncodeStartMission(3) }, CmdMissionStart, [7]float32{}},
	}
	for _, c := range cases {
		c := c
		for _, signed := range []bool{false, true} {
			signed := signed
			name := c.name
			if signed {
				name += "/signed"
			}
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				log := log2.NewTest(t, log2.LDebug)
				var s *Signer
				if signed {
					s = newTestSigner(t)
				}
				frame := c.encode(NewEncoder(s, log))
				require.NotEmpty(t, frame)

				frames := NewParser(s, log).Parse(frame)
				require.Len(t, frames, 1)
				f := frames[0]
				assert.Equal(t, signed, f.Signed)
				assert.Equal(t, GCSSystemID, f.SystemID)
				assert.Equal(t, GCSComponentID, f.ComponentID)
				assert.Equal(t, MsgIDCommandLong, f.MsgID)
				assert.Equal(t, frame, f.Raw)
				require.IsType(t, &CommandLong{}, f.Message)
				m := f.Message.(*CommandLong)
				assert.Equal(t, c.command, m.Command)
				assert.Equal(t, c.params, m.Params)
				assert.Equal(t, uint8(3), m.TargetSystem)
				assert.Equal(t, AutopilotComponent, m.TargetComponent)
				assert.Equal(t, uint8(0), m.Confirmation)
				if signed {
					assert.Equal(t, uint8(5), f.LinkID)
					assert.NotZero(t, f.Timestamp)
				}
			})
		}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()
	msgs := []Message{
		&Heartbeat{CustomMode: 4, Type: 2, Autopilot: 3, BaseMode: 0x81, SystemStatus: 4, MavlinkVersion: 3},
		&Attitude{TimeBootMs: 1000, Roll: 0.1, Pitch: -0.2, Yaw: 3.1, RollSpeed: 0.01, PitchSpeed: 0.02, YawSpeed: -0.03},
		&GlobalPositionInt{TimeBootMs: 7, Lat: 475000000, Lon: -82500000, Alt: 120500, RelativeAlt: 30000, Vx: 300, Vy: -400, Vz: 5, Hdg: 9000},
		&BatteryStatus{CurrentConsumed: 1200, EnergyConsumed: -1, Temperature: 2510,
			Voltages: [10]uint16{12600, 65535, 65535, 65535, 65535, 65535, 65535, 65535, 65535, 65535},
			CurrentBattery: 1530, ID: 0, BatteryFunction: 1, Type: 3, BatteryRemaining: 76},
		&CommandAck{Command: CmdComponentArmDisarm, Result: ResultAccepted},
		&CommandAck{Command: CmdNavTakeoff, Result: ResultInProgress, Progress: 50, ResultParam2: -7, TargetSystem: 255, TargetComponent: 190},
		&CommandLong{Params: [7]float32{1, 2, 3, 4, 5, 6, 7}, Command: 511, TargetSystem: 1, TargetComponent: 1, Confirmation: 2},
	}
	enc := NewEncoder(nil, log2.NewTest(t, log2.LDebug))
	p := NewParser(nil, log2.NewTest(t, log2.LDebug))
	for _, m := range msgs {
		b, err := enc.Encode(1, 1, m)
		require.NoError(t, err)
		frames := p.Parse(b)
		require.Len(t, frames, 1, MessageName(m.MsgID()))
		assert.Equal(t, m, frames[0].Message)
	}
}

func TestEncodeSequence(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(nil, nil)
	for i := 0; i < 300; i++ {
		b := enc.EncodeLand(1)
		require.Equal(t, uint8(i), b[4])
	}
}

func TestEncodeTruncatesTrailingZeros(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(nil, nil)
	// land: params zero, command=21, target=1, target_component=1, confirmation=0
	b := enc.EncodeLand(1)
	assert.Equal(t, byte(32), b[1])
	assert.Len(t, b, HeaderLen+32+ChecksumLen)

	b, err := enc.Encode(1, 1, &CommandAck{})
	require.NoError(t, err)
	assert.Equal(t, byte(1), b[1], "empty payload keeps one byte")
}

func TestEncodeUnknownFails(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(nil, log2.NewTest(t, log2.LDebug))
	_, err := enc.Encode(1, 1, &Unknown{ID: 12345, Payload: []byte{1}})
	require.Error(t, err)
	assert.True(t, errors.IsNotSupported(err))
}

// Several valid frames followed by truncated frame yields exactly the valid ones.
func TestParseTruncatedTail(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(newTestSigner(t), nil)
	for n := 0; n <= 4; n++ {
		var buf bytes.Buffer
		for i := 0; i < n; i++ {
			buf.Write(enc.EncodeTakeoff(1, float64(i)))
		}
		last := enc.EncodeTakeoff(1, 99)
		for cut := 1; cut < len(last); cut++ {
			stream := append(append([]byte(nil), buf.Bytes()...), last[:cut]...)
			frames := NewParser(nil, nil).Parse(stream)
			require.Len(t, frames, n, "n=%d cut=%d", n, cut)
		}
	}
}

func TestParseResync(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	enc := NewEncoder(nil, log)
	good1 := enc.EncodeArm(1, false)
	bad := enc.EncodeLand(1)
	bad[len(bad)-1] ^= 0x55
	good2 := enc.EncodeReturnToLaunch(1)
	v1 := []byte{0xfe, 9, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	var stream []byte
	stream = append(stream, 0x00, 0x13, 0x37)
	stream = append(stream, good1...)
	stream = append(stream, v1...)
	stream = append(stream, bad...)
	stream = append(stream, good2...)
	stream = append(stream, 0x42)

	frames := NewParser(nil, log).Parse(stream)
	require.Len(t, frames, 2)
	assert.Equal(t, CmdComponentArmDisarm, frames[0].Message.(*CommandLong).Command)
	assert.Equal(t, CmdNavReturnToLaunch, frames[1].Message.(*CommandLong).Command)
}

func TestParseNext(t *testing.T) {
	t.Parallel()
	p := NewParser(nil, nil)
	frame := NewEncoder(nil, nil).EncodeLand(1)

	_, n, err := p.Next([]byte{1, 2, 3})
	assert.Equal(t, ErrTruncated, errors.Cause(err))
	assert.Equal(t, 3, n)

	_, n, err = p.Next(append([]byte{7, 7}, frame[:5]...))
	assert.Equal(t, ErrTruncated, errors.Cause(err))
	assert.Equal(t, 2, n)

	bad := append([]byte(nil), frame...)
	bad[HeaderLen] ^= 1
	_, n, err = p.Next(bad)
	assert.Equal(t, ErrCRC, errors.Cause(err))
	assert.Equal(t, 1, n)

	badFlags := append([]byte(nil), frame...)
	badFlags[2] = 0x80
	_, n, err = p.Next(badFlags)
	assert.Equal(t, ErrFrameInvalid, errors.Cause(err))
	assert.Equal(t, 1, n)

	f, n, err := p.Next(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
	assert.Equal(t, MsgIDCommandLong, f.MsgID)
}

func TestParseUnknownMessage(t *testing.T) {
	t.Parallel()
	raw := []byte{Magic, 3, 0, 0, 9, 1, 1, 0x39, 0x30, 0x00, 0xaa, 0xbb, 0xcc, 0x12, 0x34}
	frames := NewParser(nil, nil).Parse(raw)
	require.Len(t, frames, 1)
	assert.Equal(t, &Unknown{ID: 12345, Payload: []byte{0xaa, 0xbb, 0xcc}}, frames[0].Message)
	_, ok := MapTelemetry(frames[0])
	assert.False(t, ok)
	_, ok = MapAck(frames[0])
	assert.False(t, ok)
}

func TestParseSignaturePolicy(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	s := newTestSigner(t)
	signed := NewEncoder(s, log).EncodeLand(1)
	unsigned := NewEncoder(nil, log).EncodeLand(1)

	lax := NewParser(nil, log)
	assert.Len(t, lax.Parse(signed), 1, "unverifiable signature accepted without key")
	assert.Len(t, lax.Parse(unsigned), 1)

	strict := NewParser(s, log)
	strict.RequireSigned = true
	assert.Len(t, strict.Parse(signed), 1)
	assert.Len(t, strict.Parse(unsigned), 0)

	other := NewSigner(nil)
	k := DeriveKey("intruder")
	require.NoError(t, other.Configure(k[:], 1))
	forged := NewEncoder(other, log).EncodeLand(1)
	assert.Len(t, NewParser(s, log).Parse(forged), 0, "configured signer verifies signed frames")
}

func TestParseZeroExtendsPayload(t *testing.T) {
	t.Parallel()
	// COMMAND_ACK sent by older autopilot without extension fields
	b, err := NewEncoder(nil, nil).Encode(1, 1, &CommandAck{Command: CmdNavTakeoff, Result: ResultDenied})
	require.NoError(t, err)
	assert.Equal(t, byte(3), b[1])
	frames := NewParser(nil, nil).Parse(b)
	require.Len(t, frames, 1)
	assert.Equal(t, &CommandAck{Command: CmdNavTakeoff, Result: ResultDenied}, frames[0].Message)
}
