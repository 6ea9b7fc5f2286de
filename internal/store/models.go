package store

import (
	"time"

	"github.com/temoto/c2link/internal/types"
)

type vehicleRow struct {
	ID          string `gorm:"primarykey;size:64"`
	Name        string `gorm:"size:100"`
	Type        string `gorm:"size:50"`
	Status      string `gorm:"size:20;not null"`
	FlightMode  string `gorm:"size:20;not null"`
	Latitude    *float64
	Longitude   *float64
	AltitudeMSL *float64
	RelAltitude *float64
	Heading     *float64
	GroundSpeed *float64
	RollDeg     *float64
	PitchDeg    *float64
	YawDeg      *float64
	BatteryPct  *int
	BatteryMv   *int
	BatteryMa   *int
	BatteryTemp *float64
	Connected   bool
	LastSeenMs  int64 `gorm:"index"`
}

func (vehicleRow) TableName() string { return "vehicles" }

type telemetryRow struct {
	ID          uint   `gorm:"primarykey"`
	VehicleID   string `gorm:"size:64;not null;index:idx_telemetry_vehicle_time,priority:1"`
	Latitude    float64
	Longitude   float64
	AltitudeMSL float64
	RelAltitude float64
	Heading     float64
	GroundSpeed float64
	RollDeg     float64
	PitchDeg    float64
	YawDeg      float64
	BatteryPct  int
	BatteryMv   int
	BatteryMa   int
	BatteryTemp float64
	FlightMode  string `gorm:"size:20"`
	TimeMs      int64  `gorm:"not null;index;index:idx_telemetry_vehicle_time,priority:2"`
}

func (telemetryRow) TableName() string { return "telemetry" }

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano() / int64(time.Millisecond)
}

func fromMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}

func f64p(x float64) *float64 { return &x }
func intp(x int) *int          { return &x }

func rowFromVehicle(v *types.Vehicle) *vehicleRow {
	r := &vehicleRow{
		ID:         v.ID,
		Name:       v.Name,
		Type:       v.Type,
		Status:     v.Status.String(),
		FlightMode: v.FlightMode.String(),
		Connected:  v.Connected,
		LastSeenMs: unixMs(v.LastSeen),
	}
	if p := v.Position; p != nil {
		r.Latitude = f64p(p.Latitude)
		r.Longitude = f64p(p.Longitude)
		r.AltitudeMSL = f64p(p.AltitudeMSL)
		r.RelAltitude = f64p(p.RelativeAltitude)
		r.Heading = f64p(p.Heading)
		r.GroundSpeed = f64p(p.GroundSpeed)
	}
	if a := v.Attitude; a != nil {
		r.RollDeg = f64p(a.RollDeg)
		r.PitchDeg = f64p(a.PitchDeg)
		r.YawDeg = f64p(a.YawDeg)
	}
	if b := v.Battery; b != nil {
		r.BatteryPct = intp(b.RemainingPercent)
		r.BatteryMv = intp(b.VoltageMv)
		r.BatteryMa = intp(b.CurrentMa)
		r.BatteryTemp = f64p(b.TemperatureC)
	}
	return r
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func (r *vehicleRow) vehicle() *types.Vehicle {
	v := &types.Vehicle{
		ID:        r.ID,
		Name:      r.Name,
		Type:      r.Type,
		Connected: r.Connected,
		LastSeen:  fromMs(r.LastSeenMs),
	}
	// unknown names stored by other tools read as zero values
	v.Status, _ = types.ParseStatus(r.Status)
	v.FlightMode, _ = types.ParseFlightMode(r.FlightMode)
	if r.Latitude != nil && r.Longitude != nil {
		v.Position = &types.Position{
			Latitude:         *r.Latitude,
			Longitude:        *r.Longitude,
			AltitudeMSL:      deref(r.AltitudeMSL),
			RelativeAltitude: deref(r.RelAltitude),
			Heading:          deref(r.Heading),
			GroundSpeed:      deref(r.GroundSpeed),
		}
	}
	if r.RollDeg != nil {
		v.Attitude = &types.Attitude{RollDeg: *r.RollDeg, PitchDeg: deref(r.PitchDeg), YawDeg: deref(r.YawDeg)}
	}
	if r.BatteryPct != nil || r.BatteryMv != nil {
		v.Battery = &types.Battery{
			RemainingPercent: derefInt(r.BatteryPct),
			VoltageMv:        derefInt(r.BatteryMv),
			CurrentMa:        derefInt(r.BatteryMa),
			TemperatureC:     deref(r.BatteryTemp),
		}
	}
	return v
}

func rowFromSnapshot(s *types.Snapshot) *telemetryRow {
	return &telemetryRow{
		VehicleID:   s.VehicleID,
		Latitude:    s.Position.Latitude,
		Longitude:   s.Position.Longitude,
		AltitudeMSL: s.Position.AltitudeMSL,
		RelAltitude: s.Position.RelativeAltitude,
		Heading:     s.Position.Heading,
		GroundSpeed: s.Position.GroundSpeed,
		RollDeg:     s.Attitude.RollDeg,
		PitchDeg:    s.Attitude.PitchDeg,
		YawDeg:      s.Attitude.YawDeg,
		BatteryPct:  s.Battery.RemainingPercent,
		BatteryMv:   s.Battery.VoltageMv,
		BatteryMa:   s.Battery.CurrentMa,
		BatteryTemp: s.Battery.TemperatureC,
		FlightMode:  s.FlightMode.String(),
		TimeMs:      unixMs(s.Time),
	}
}

func (r *telemetryRow) snapshot() types.Snapshot {
	s := types.Snapshot{
		VehicleID: r.VehicleID,
		Position: types.Position{
			Latitude:         r.Latitude,
			Longitude:        r.Longitude,
			AltitudeMSL:      r.AltitudeMSL,
			RelativeAltitude: r.RelAltitude,
			Heading:          r.Heading,
			GroundSpeed:      r.GroundSpeed,
		},
		Attitude: types.Attitude{RollDeg: r.RollDeg, PitchDeg: r.PitchDeg, YawDeg: r.YawDeg},
		Battery: types.Battery{
			RemainingPercent: r.BatteryPct,
			VoltageMv:        r.BatteryMv,
			CurrentMa:        r.BatteryMa,
			TemperatureC:     r.BatteryTemp,
		},
		Time: fromMs(r.TimeMs),
	}
	s.FlightMode, _ = types.ParseFlightMode(r.FlightMode)
	return s
}
