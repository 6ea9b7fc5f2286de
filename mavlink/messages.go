package mavlink

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Message is a decoded MAVLink payload.
// Implemented only by types of this package.
type Message interface {
	MsgID() uint32
	marshalPayload() []byte
	unmarshalPayload(b []byte)
}

const (
	MsgIDHeartbeat         uint32 = 0
	MsgIDAttitude          uint32 = 30
	MsgIDGlobalPositionInt uint32 = 33
	MsgIDCommandLong       uint32 = 76
	MsgIDCommandAck        uint32 = 77
	MsgIDBatteryStatus     uint32 = 147
)

type msgInfo struct {
	name     string
	crcExtra byte
	length   int // including extension fields
	new      func() Message
}

var registry = map[uint32]msgInfo{
	MsgIDHeartbeat:         {"HEARTBEAT", 50, 9, func() Message { return new(Heartbeat) }},
	MsgIDAttitude:          {"ATTITUDE", 39, 28, func() Message { return new(Attitude) }},
	MsgIDGlobalPositionInt: {"GLOBAL_POSITION_INT", 104, 28, func() Message { return new(GlobalPositionInt) }},
	MsgIDCommandLong:       {"COMMAND_LONG", 152, 33, func() Message { return new(CommandLong) }},
	MsgIDCommandAck:        {"COMMAND_ACK", 143, 10, func() Message { return new(CommandAck) }},
	MsgIDBatteryStatus:     {"BATTERY_STATUS", 154, 36, func() Message { return new(BatteryStatus) }},
}

func MessageName(id uint32) string {
	if info, ok := registry[id]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN_%d", id)
}

// CRCExtra returns message seed byte, ok=false for unknown message id.
func CRCExtra(id uint32) (byte, bool) {
	info, ok := registry[id]
	return info.crcExtra, ok
}

var le = binary.LittleEndian

func putFloat(b []byte, f float32) { le.PutUint32(b, math.Float32bits(f)) }
func getFloat(b []byte) float32    { return math.Float32frombits(le.Uint32(b)) }

type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

func (*Heartbeat) MsgID() uint32 { return MsgIDHeartbeat }
func (m *Heartbeat) marshalPayload() []byte {
	b := make([]byte, 9)
	le.PutUint32(b[0:], m.CustomMode)
	b[4] = m.Type
	b[5] = m.Autopilot
	b[6] = m.BaseMode
	b[7] = m.SystemStatus
	b[8] = m.MavlinkVersion
	return b
}
func (m *Heartbeat) unmarshalPayload(b []byte) {
	m.CustomMode = le.Uint32(b[0:])
	m.Type = b[4]
	m.Autopilot = b[5]
	m.BaseMode = b[6]
	m.SystemStatus = b[7]
	m.MavlinkVersion = b[8]
}

// Attitude angles in radians, rates in radians/second.
type Attitude struct {
	TimeBootMs uint32
	Roll       float32
	Pitch      float32
	Yaw        float32
	RollSpeed  float32
	PitchSpeed float32
	YawSpeed   float32
}

func (*Attitude) MsgID() uint32 { return MsgIDAttitude }
func (m *Attitude) marshalPayload() []byte {
	b := make([]byte, 28)
	le.PutUint32(b[0:], m.TimeBootMs)
	putFloat(b[4:], m.Roll)
	putFloat(b[8:], m.Pitch)
	putFloat(b[12:], m.Yaw)
	putFloat(b[16:], m.RollSpeed)
	putFloat(b[20:], m.PitchSpeed)
	putFloat(b[24:], m.YawSpeed)
	return b
}
func (m *Attitude) unmarshalPayload(b []byte) {
	m.TimeBootMs = le.Uint32(b[0:])
	m.Roll = getFloat(b[4:])
	m.Pitch = getFloat(b[8:])
	m.Yaw = getFloat(b[12:])
	m.RollSpeed = getFloat(b[16:])
	m.PitchSpeed = getFloat(b[20:])
	m.YawSpeed = getFloat(b[24:])
}

// GlobalPositionInt: lat/lon degE7, alt mm, velocities cm/s, heading cdeg (65535 unknown).
type GlobalPositionInt struct {
	TimeBootMs  uint32
	Lat         int32
	Lon         int32
	Alt         int32
	RelativeAlt int32
	Vx          int16
	Vy          int16
	Vz          int16
	Hdg         uint16
}

func (*GlobalPositionInt) MsgID() uint32 { return MsgIDGlobalPositionInt }
func (m *GlobalPositionInt) marshalPayload() []byte {
	b := make([]byte, 28)
	le.PutUint32(b[0:], m.TimeBootMs)
	le.PutUint32(b[4:], uint32(m.Lat))
	le.PutUint32(b[8:], uint32(m.Lon))
	le.PutUint32(b[12:], uint32(m.Alt))
	le.PutUint32(b[16:], uint32(m.RelativeAlt))
	le.PutUint16(b[20:], uint16(m.Vx))
	le.PutUint16(b[22:], uint16(m.Vy))
	le.PutUint16(b[24:], uint16(m.Vz))
	le.PutUint16(b[26:], m.Hdg)
	return b
}
func (m *GlobalPositionInt) unmarshalPayload(b []byte) {
	m.TimeBootMs = le.Uint32(b[0:])
	m.Lat = int32(le.Uint32(b[4:]))
	m.Lon = int32(le.Uint32(b[8:]))
	m.Alt = int32(le.Uint32(b[12:]))
	m.RelativeAlt = int32(le.Uint32(b[16:]))
	m.Vx = int16(le.Uint16(b[20:]))
	m.Vy = int16(le.Uint16(b[22:]))
	m.Vz = int16(le.Uint16(b[24:]))
	m.Hdg = le.Uint16(b[26:])
}

// BatteryStatus base fields; extension fields are ignored.
// Temperature cdegC, voltages mV, current cA, remaining percent.
// Unknown markers: Temperature=INT16_MAX, Voltages[i]=UINT16_MAX, CurrentBattery=-1, BatteryRemaining=-1.
type BatteryStatus struct {
	CurrentConsumed  int32
	EnergyConsumed   int32
	Temperature      int16
	Voltages         [10]uint16
	CurrentBattery   int16
	ID               uint8
	BatteryFunction  uint8
	Type             uint8
	BatteryRemaining int8
}

func (*BatteryStatus) MsgID() uint32 { return MsgIDBatteryStatus }
func (m *BatteryStatus) marshalPayload() []byte {
	b := make([]byte, 36)
	le.PutUint32(b[0:], uint32(m.CurrentConsumed))
	le.PutUint32(b[4:], uint32(m.EnergyConsumed))
	le.PutUint16(b[8:], uint16(m.Temperature))
	for i, v := range m.Voltages {
		le.PutUint16(b[10+2*i:], v)
	}
	le.PutUint16(b[30:], uint16(m.CurrentBattery))
	b[32] = m.ID
	b[33] = m.BatteryFunction
	b[34] = m.Type
	b[35] = byte(m.BatteryRemaining)
	return b
}
func (m *BatteryStatus) unmarshalPayload(b []byte) {
	m.CurrentConsumed = int32(le.Uint32(b[0:]))
	m.EnergyConsumed = int32(le.Uint32(b[4:]))
	m.Temperature = int16(le.Uint16(b[8:]))
	for i := range m.Voltages {
		m.Voltages[i] = le.Uint16(b[10+2*i:])
	}
	m.CurrentBattery = int16(le.Uint16(b[30:]))
	m.ID = b[32]
	m.BatteryFunction = b[33]
	m.Type = b[34]
	m.BatteryRemaining = int8(b[35])
}

type CommandLong struct {
	Params          [7]float32
	Command         uint16
	TargetSystem    uint8
	TargetComponent uint8
	Confirmation    uint8
}

func (*CommandLong) MsgID() uint32 { return MsgIDCommandLong }
func (m *CommandLong) marshalPayload() []byte {
	b := make([]byte, 33)
	for i, p := range m.Params {
		putFloat(b[4*i:], p)
	}
	le.PutUint16(b[28:], m.Command)
	b[30] = m.TargetSystem
	b[31] = m.TargetComponent
	b[32] = m.Confirmation
	return b
}
func (m *CommandLong) unmarshalPayload(b []byte) {
	for i := range m.Params {
		m.Params[i] = getFloat(b[4*i:])
	}
	m.Command = le.Uint16(b[28:])
	m.TargetSystem = b[30]
	m.TargetComponent = b[31]
	m.Confirmation = b[32]
}

type CommandAck struct {
	Command uint16
	Result  uint8
	// extensions
	Progress        uint8
	ResultParam2    int32
	TargetSystem    uint8
	TargetComponent uint8
}

func (*CommandAck) MsgID() uint32 { return MsgIDCommandAck }
func (m *CommandAck) marshalPayload() []byte {
	b := make([]byte, 10)
	le.PutUint16(b[0:], m.Command)
	b[2] = m.Result
	b[3] = m.Progress
	le.PutUint32(b[4:], uint32(m.ResultParam2))
	b[8] = m.TargetSystem
	b[9] = m.TargetComponent
	return b
}
func (m *CommandAck) unmarshalPayload(b []byte) {
	m.Command = le.Uint16(b[0:])
	m.Result = b[2]
	m.Progress = b[3]
	m.ResultParam2 = int32(le.Uint32(b[4:]))
	m.TargetSystem = b[8]
	m.TargetComponent = b[9]
}

// Unknown keeps payload of a message id this package does not decode.
type Unknown struct {
	ID      uint32
	Payload []byte
}

func (m *Unknown) MsgID() uint32 { return m.ID }
func (m *Unknown) marshalPayload() []byte {
	return append([]byte(nil), m.Payload...)
}
func (m *Unknown) unmarshalPayload(b []byte) {
	m.Payload = append([]byte(nil), b...)
}
