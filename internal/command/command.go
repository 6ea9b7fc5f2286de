// Package command sends vehicle commands and correlates acknowledgements.
package command

import (
	"fmt"

	"github.com/temoto/c2link/internal/types"
	"github.com/temoto/c2link/mavlink"
)

// Command is closed set of operator intents, see types below.
type Command interface {
	fmt.Stringer
	// wire command id, acknowledgement carries it back
	wireID() uint16
	encode(e *mavlink.Encoder, target uint8) []byte
	// status after command is applied without vehicle, ok=false leaves status as is
	localStatus() (types.Status, bool)
}

type Arm struct{ Force bool }
type Disarm struct{ Force bool }
type Takeoff struct{ AltitudeM float64 }
type Land struct{}
type ReturnToLaunch struct{}
type GoTo struct{ Position types.Position }

// StartMission runs whole mission already uploaded to vehicle.
// MissionID is for operator logs, protocol starts current mission.
type StartMission struct{ MissionID string }
type SetFlightMode struct{ Mode types.FlightMode }
type EmergencyStop struct{}

func (Arm) wireID() uint16            { return mavlink.CmdComponentArmDisarm }
func (Disarm) wireID() uint16         { return mavlink.CmdComponentArmDisarm }
func (Takeoff) wireID() uint16        { return mavlink.CmdNavTakeoff }
func (Land) wireID() uint16           { return mavlink.CmdNavLand }
func (ReturnToLaunch) wireID() uint16 { return mavlink.CmdNavReturnToLaunch }
func (GoTo) wireID() uint16           { return mavlink.CmdDoReposition }
func (StartMission) wireID() uint16   { return mavlink.CmdMissionStart }
func (SetFlightMode) wireID() uint16  { return mavlink.CmdDoSetMode }
func (EmergencyStop) wireID() uint16  { return mavlink.CmdComponentArmDisarm }

func (c Arm) encode(e *mavlink.Encoder, t uint8) []byte    { return e.EncodeArm(t, c.Force) }
func (c Disarm) encode(e *mavlink.Encoder, t uint8) []byte { return e.EncodeDisarm(t, c.Force) }
func (c Takeoff) encode(e *mavlink.Encoder, t uint8) []byte {
	return e.EncodeTakeoff(t, c.AltitudeM)
}
func (Land) encode(e *mavlink.Encoder, t uint8) []byte { return e.EncodeLand(t) }
func (ReturnToLaunch) encode(e *mavlink.Encoder, t uint8) []byte {
	return e.EncodeReturnToLaunch(t)
}
func (c GoTo) encode(e *mavlink.Encoder, t uint8) []byte {
	return e.EncodeGoTo(t, c.Position.Latitude, c.Position.Longitude, c.Position.AltitudeMSL)
}
func (StartMission) encode(e *mavlink.Encoder, t uint8) []byte { return e.EncodeStartMission(t) }
func (c SetFlightMode) encode(e *mavlink.Encoder, t uint8) []byte {
	return e.EncodeSetMode(t, c.Mode.Code())
}
func (EmergencyStop) encode(e *mavlink.Encoder, t uint8) []byte { return e.EncodeEmergencyStop(t) }

func (Arm) localStatus() (types.Status, bool)            { return types.StatusArmed, true }
func (Disarm) localStatus() (types.Status, bool)         { return types.StatusIdle, true }
func (Takeoff) localStatus() (types.Status, bool)        { return types.StatusFlying, true }
func (Land) localStatus() (types.Status, bool)           { return types.StatusLanding, true }
func (ReturnToLaunch) localStatus() (types.Status, bool) { return types.StatusReturning, true }
func (GoTo) localStatus() (types.Status, bool)           { return types.StatusUnknown, false }
func (StartMission) localStatus() (types.Status, bool)   { return types.StatusUnknown, false }
func (SetFlightMode) localStatus() (types.Status, bool)  { return types.StatusUnknown, false }
func (EmergencyStop) localStatus() (types.Status, bool)  { return types.StatusLanded, true }

func (c Arm) String() string {
	if c.Force {
		return "arm(force)"
	}
	return "arm"
}
func (c Disarm) String() string {
	if c.Force {
		return "disarm(force)"
	}
	return "disarm"
}
func (c Takeoff) String() string      { return fmt.Sprintf("takeoff(alt=%g)", c.AltitudeM) }
func (Land) String() string           { return "land" }
func (ReturnToLaunch) String() string { return "rtl" }
func (c GoTo) String() string         { return fmt.Sprintf("goto(%s)", c.Position.String()) }
func (c StartMission) String() string { return fmt.Sprintf("mission(%s)", c.MissionID) }
func (c SetFlightMode) String() string {
	return fmt.Sprintf("mode(%s)", c.Mode.String())
}
func (EmergencyStop) String() string { return "estop" }
