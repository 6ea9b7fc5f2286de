package mavlink

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPosition(t *testing.T) {
	t.Parallel()
	f := Frame{SystemID: 7, Message: &GlobalPositionInt{
		Lat: 475123456, Lon: -1223456789, Alt: 152300, RelativeAlt: 45250,
		Vx: 300, Vy: 400, Hdg: 27050,
	}}
	u, ok := MapTelemetry(f)
	require.True(t, ok)
	require.NotNil(t, u.Position)
	assert.Nil(t, u.Attitude)
	assert.Nil(t, u.Battery)
	assert.Nil(t, u.Heartbeat)
	assert.Equal(t, uint8(7), u.SystemID)
	assert.InDelta(t, 47.5123456, u.Position.Latitude, 1e-9)
	assert.InDelta(t, -122.3456789, u.Position.Longitude, 1e-9)
	assert.InDelta(t, 152.3, u.Position.AltitudeMSL, 1e-9)
	assert.InDelta(t, 45.25, u.Position.RelativeAltitude, 1e-9)
	assert.InDelta(t, 5.0, u.Position.GroundSpeed, 1e-9)
	require.NotNil(t, u.Position.Heading)
	assert.InDelta(t, 270.5, *u.Position.Heading, 1e-9)

	f.Message = &GlobalPositionInt{Hdg: math.MaxUint16}
	u, _ = MapTelemetry(f)
	assert.Nil(t, u.Position.Heading)
}

func TestMapAttitude(t *testing.T) {
	t.Parallel()
	u, ok := MapTelemetry(Frame{Message: &Attitude{Roll: math.Pi / 2, Pitch: -math.Pi / 4, Yaw: math.Pi}})
	require.True(t, ok)
	assert.InDelta(t, 90, u.Attitude.Roll, 1e-4)
	assert.InDelta(t, -45, u.Attitude.Pitch, 1e-4)
	assert.InDelta(t, 180, u.Attitude.Yaw, 1e-4)
}

func TestMapBattery(t *testing.T) {
	t.Parallel()
	unknown := [10]uint16{}
	for i := range unknown {
		unknown[i] = math.MaxUint16
	}
	cases := []struct {
		name   string
		msg    *BatteryStatus
		expect Battery
	}{
		{"known", &BatteryStatus{BatteryRemaining: 76, Voltages: [10]uint16{12600}, CurrentBattery: 153, Temperature: 2510},
			Battery{RemainingPercent: intp(76), VoltageMv: intp(12600), CurrentMa: intp(1530), TemperatureCdeg: intp(2510)}},
		{"unknown", &BatteryStatus{BatteryRemaining: -1, Voltages: unknown, CurrentBattery: -1, Temperature: math.MaxInt16},
			Battery{}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			u, ok := MapTelemetry(Frame{Message: c.msg})
			require.True(t, ok)
			assert.Equal(t, &c.expect, u.Battery)
		})
	}
}

func TestMapHeartbeat(t *testing.T) {
	t.Parallel()
	u, ok := MapTelemetry(Frame{Message: &Heartbeat{BaseMode: 0x81, CustomMode: 3, SystemStatus: 4, Type: 2}})
	require.True(t, ok)
	assert.True(t, u.Heartbeat.Armed)
	assert.Equal(t, uint32(3), u.Heartbeat.CustomMode)

	u, _ = MapTelemetry(Frame{Message: &Heartbeat{BaseMode: 0x01}})
	assert.False(t, u.Heartbeat.Armed)
}

func TestMapAck(t *testing.T) {
	t.Parallel()
	_, ok := MapTelemetry(Frame{Message: &CommandAck{}})
	assert.False(t, ok)
	_, ok = MapAck(Frame{Message: &Heartbeat{}})
	assert.False(t, ok)

	a, ok := MapAck(Frame{SystemID: 1, Message: &CommandAck{Command: 400, Result: 0}})
	require.True(t, ok)
	assert.Equal(t, AckUpdate{SystemID: 1, Command: 400, Result: 0}, a)
	assert.Equal(t, AckAccepted, a.Class())
}

func TestClassifyAck(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code   uint8
		expect AckClass
		text   string
	}{
		{0, AckAccepted, "accepted"},
		{1, AckDenied, "denied"},
		{2, AckUnknown, "unknown result"},
		{3, AckUnknown, "unknown result"},
		{4, AckTemporarilyRejected, "temporarily rejected"},
		{5, AckInProgress, "in progress"},
		{6, AckUnknown, "unknown result"},
		{255, AckUnknown, "unknown result"},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, ClassifyAck(c.code), "code=%d", c.code)
		assert.Equal(t, c.text, ClassifyAck(c.code).String())
	}
}
