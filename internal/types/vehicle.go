package types

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

//go:generate stringer -type=Status -linecomment
type Status uint8

const (
	StatusUnknown   Status = iota // UNKNOWN
	StatusIdle                    // IDLE
	StatusArmed                   // ARMED
	StatusFlying                  // FLYING
	StatusReturning               // RETURNING
	StatusLanding                 // LANDING
	StatusLanded                  // LANDED
	StatusLostLink                // LOST_LINK
)

func ParseStatus(s string) (Status, error) {
	for st := StatusUnknown; st <= StatusLostLink; st++ {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return StatusUnknown, errors.NotValidf("status=%s", s)
}

// Wire code of flight mode is its ordinal, sent as DO_SET_MODE custom mode.
//go:generate stringer -type=FlightMode -linecomment
type FlightMode uint8

const (
	ModeManual       FlightMode = iota // MANUAL
	ModeStabilized                     // STABILIZED
	ModeAltitudeHold                   // ALTITUDE_HOLD
	ModePositionHold                   // POSITION_HOLD
	ModeAutoMission                    // AUTO_MISSION
	ModeAutoLoiter                     // AUTO_LOITER
	ModeAutoRTL                        // AUTO_RTL
	ModeOffboard                       // OFFBOARD
)

func (m FlightMode) Code() uint32 { return uint32(m) }

func ParseFlightMode(s string) (FlightMode, error) {
	for m := ModeManual; m <= ModeOffboard; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return ModeManual, errors.NotValidf("flight mode=%s", s)
}

type Position struct {
	Latitude         float64 // degrees
	Longitude        float64 // degrees
	AltitudeMSL      float64 // meters
	RelativeAltitude float64 // meters
	Heading          float64 // degrees
	GroundSpeed      float64 // meters/second
}

func (p Position) String() string {
	return fmt.Sprintf("lat=%.7f lon=%.7f alt=%.1f", p.Latitude, p.Longitude, p.AltitudeMSL)
}

type Attitude struct {
	RollDeg  float64
	PitchDeg float64
	YawDeg   float64
}

type Battery struct {
	RemainingPercent int
	VoltageMv        int
	CurrentMa        int
	TemperatureC     float64
}

// Vehicle is the stored record of one remote vehicle.
// Position, Attitude and Battery are nil until first reported.
type Vehicle struct {
	ID         string
	Name       string
	Type       string
	Status     Status
	FlightMode FlightMode
	Position   *Position
	Attitude   *Attitude
	Battery    *Battery
	Connected  bool
	LastSeen   time.Time
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("Vehicle(id=%s status=%s mode=%s connected=%t)", v.ID, v.Status, v.FlightMode, v.Connected)
}

// SystemID follows vehicle id convention "name-N": N is protocol system id.
// Missing or invalid suffix means 1.
func SystemID(vehicleID string) uint8 {
	if i := strings.LastIndexByte(vehicleID, '-'); i >= 0 {
		if n, err := strconv.ParseUint(vehicleID[i+1:], 10, 8); err == nil {
			return uint8(n)
		}
	}
	return 1
}

// Snapshot is one telemetry sample of a vehicle, merged from partial updates.
type Snapshot struct {
	VehicleID  string
	Position   Position
	Attitude   Attitude
	Battery    Battery
	FlightMode FlightMode
	Time       time.Time
}

// VehicleStore GetByID returns errors.NotFound for unknown id.
type VehicleStore interface {
	GetByID(ctx context.Context, id string) (*Vehicle, error)
	Upsert(ctx context.Context, v *Vehicle) error
}

type TelemetrySink interface {
	Insert(ctx context.Context, s *Snapshot) error
}
