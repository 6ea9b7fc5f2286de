package types

import (
	"time"

	"github.com/temoto/c2link/mavlink"
)

// Apply merges partial telemetry into vehicle record.
// Fields absent in update keep previous values.
// Any update marks vehicle connected and seen at now.
func (v *Vehicle) Apply(u mavlink.TelemetryUpdate, now time.Time) {
	v.Connected = true
	v.LastSeen = now
	if v.Status == StatusLostLink {
		v.Status = StatusUnknown
	}

	if p := u.Position; p != nil {
		next := Position{
			Latitude:         p.Latitude,
			Longitude:        p.Longitude,
			AltitudeMSL:      p.AltitudeMSL,
			RelativeAltitude: p.RelativeAltitude,
			GroundSpeed:      p.GroundSpeed,
		}
		if p.Heading != nil {
			next.Heading = *p.Heading
		} else if v.Position != nil {
			next.Heading = v.Position.Heading
		}
		v.Position = &next
	}
	if a := u.Attitude; a != nil {
		v.Attitude = &Attitude{RollDeg: a.Roll, PitchDeg: a.Pitch, YawDeg: a.Yaw}
	}
	if b := u.Battery; b != nil {
		next := Battery{}
		if v.Battery != nil {
			next = *v.Battery
		}
		if b.RemainingPercent != nil {
			next.RemainingPercent = *b.RemainingPercent
		}
		if b.VoltageMv != nil {
			next.VoltageMv = *b.VoltageMv
		}
		if b.CurrentMa != nil {
			next.CurrentMa = *b.CurrentMa
		}
		if b.TemperatureCdeg != nil {
			next.TemperatureC = float64(*b.TemperatureCdeg) / 100
		}
		v.Battery = &next
	}
	if h := u.Heartbeat; h != nil {
		if h.CustomMode <= uint32(ModeOffboard) {
			v.FlightMode = FlightMode(h.CustomMode)
		}
		switch {
		case h.Armed && (v.Status == StatusUnknown || v.Status == StatusIdle || v.Status == StatusLanded):
			v.Status = StatusArmed
		case !h.Armed && (v.Status == StatusUnknown || v.Status == StatusArmed):
			v.Status = StatusIdle
		}
	}
}

// Snapshot returns current sample, nil until vehicle reported position.
func (v *Vehicle) Snapshot(now time.Time) *Snapshot {
	if v.Position == nil {
		return nil
	}
	s := &Snapshot{
		VehicleID:  v.ID,
		Position:   *v.Position,
		FlightMode: v.FlightMode,
		Time:       now,
	}
	if v.Attitude != nil {
		s.Attitude = *v.Attitude
	}
	if v.Battery != nil {
		s.Battery = *v.Battery
	}
	return s
}
