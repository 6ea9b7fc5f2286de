package mavlink

import (
	"math"
)

type Position struct {
	Latitude         float64 // degrees
	Longitude        float64 // degrees
	AltitudeMSL      float64 // meters
	RelativeAltitude float64 // meters
	GroundSpeed      float64 // meters/second
	Heading          *float64
}

type AttitudeDeg struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// Battery fields are nil when vehicle reports them unknown.
type Battery struct {
	RemainingPercent *int
	VoltageMv        *int
	CurrentMa        *int
	TemperatureCdeg  *int
}

type HeartbeatInfo struct {
	Armed        bool
	BaseMode     uint8
	CustomMode   uint32
	SystemStatus uint8
	VehicleType  uint8
	Autopilot    uint8
}

// TelemetryUpdate carries exactly one of its parts, consumers merge updates.
type TelemetryUpdate struct {
	SystemID  uint8
	Position  *Position
	Attitude  *AttitudeDeg
	Battery   *Battery
	Heartbeat *HeartbeatInfo
}

type AckUpdate struct {
	SystemID uint8
	Command  uint16
	Result   uint8
	Progress uint8
}

func (a AckUpdate) Class() AckClass { return ClassifyAck(a.Result) }

type AckClass uint8

const (
	AckUnknown AckClass = iota
	AckAccepted
	AckDenied
	AckTemporarilyRejected
	AckInProgress
)

func (c AckClass) String() string {
	switch c {
	case AckAccepted:
		return "accepted"
	case AckDenied:
		return "denied"
	case AckTemporarilyRejected:
		return "temporarily rejected"
	case AckInProgress:
		return "in progress"
	default:
		return "unknown result"
	}
}

func ClassifyAck(code uint8) AckClass {
	switch code {
	case ResultAccepted:
		return AckAccepted
	case ResultDenied:
		return AckDenied
	case ResultTemporarilyRejected:
		return AckTemporarilyRejected
	case ResultInProgress:
		return AckInProgress
	default:
		return AckUnknown
	}
}

const radToDeg = 180 / math.Pi

func intp(x int) *int { return &x }

// MapTelemetry ok=false for messages that are not telemetry.
func MapTelemetry(f Frame) (TelemetryUpdate, bool) {
	u := TelemetryUpdate{SystemID: f.SystemID}
	switch m := f.Message.(type) {
	case *GlobalPositionInt:
		p := &Position{
			Latitude:         float64(m.Lat) / 1e7,
			Longitude:        float64(m.Lon) / 1e7,
			AltitudeMSL:      float64(m.Alt) / 1000,
			RelativeAltitude: float64(m.RelativeAlt) / 1000,
			GroundSpeed:      math.Hypot(float64(m.Vx), float64(m.Vy)) / 100,
		}
		if m.Hdg != math.MaxUint16 {
			h := float64(m.Hdg) / 100
			p.Heading = &h
		}
		u.Position = p

	case *Attitude:
		u.Attitude = &AttitudeDeg{
			Roll:  float64(m.Roll) * radToDeg,
			Pitch: float64(m.Pitch) * radToDeg,
			Yaw:   float64(m.Yaw) * radToDeg,
		}

	case *BatteryStatus:
		b := &Battery{}
		if m.BatteryRemaining >= 0 {
			b.RemainingPercent = intp(int(m.BatteryRemaining))
		}
		if m.Voltages[0] != math.MaxUint16 {
			b.VoltageMv = intp(int(m.Voltages[0]))
		}
		if m.CurrentBattery != -1 {
			b.CurrentMa = intp(int(m.CurrentBattery) * 10)
		}
		if m.Temperature != math.MaxInt16 {
			b.TemperatureCdeg = intp(int(m.Temperature))
		}
		u.Battery = b

	case *Heartbeat:
		u.Heartbeat = &HeartbeatInfo{
			Armed:        m.BaseMode&BaseModeSafetyArmed != 0,
			BaseMode:     m.BaseMode,
			CustomMode:   m.CustomMode,
			SystemStatus: m.SystemStatus,
			VehicleType:  m.Type,
			Autopilot:    m.Autopilot,
		}

	default:
		return TelemetryUpdate{}, false
	}
	return u, true
}

func MapAck(f Frame) (AckUpdate, bool) {
	m, ok := f.Message.(*CommandAck)
	if !ok {
		return AckUpdate{}, false
	}
	return AckUpdate{
		SystemID: f.SystemID,
		Command:  m.Command,
		Result:   m.Result,
		Progress: m.Progress,
	}, true
}
