package mavlink

import (
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/c2link/log2"
)

// Encoder builds outbound frames as ground station.
// Frames are signed when signer is configured.
type Encoder struct {
	SystemID        uint8
	ComponentID     uint8
	TargetComponent uint8

	log    *log2.Log
	signer *Signer
	seq    uint32
}

func NewEncoder(signer *Signer, log *log2.Log) *Encoder {
	return &Encoder{
		SystemID:        GCSSystemID,
		ComponentID:     GCSComponentID,
		TargetComponent: AutopilotComponent,
		log:             log,
		signer:          signer,
	}
}

func (e *Encoder) nextSeq() uint8 { return uint8(atomic.AddUint32(&e.seq, 1) - 1) }

// Encode any known message with explicit source identity.
func (e *Encoder) Encode(sysID, compID uint8, msg Message) ([]byte, error) {
	b, err := marshalFrame(e.nextSeq(), sysID, compID, msg)
	if err != nil {
		return nil, errors.Annotate(err, "mavlink encode")
	}
	if !e.signer.Configured() {
		return b, nil
	}
	signed, err := e.signer.Sign(b)
	return signed, errors.Annotate(err, "mavlink encode")
}

// EncodeCommand returns COMMAND_LONG frame or nil on failure, error is logged.
func (e *Encoder) EncodeCommand(target uint8, command uint16, params [7]float32) []byte {
	msg := &CommandLong{
		Params:          params,
		Command:         command,
		TargetSystem:    target,
		TargetComponent: e.TargetComponent,
	}
	b, err := e.Encode(e.SystemID, e.ComponentID, msg)
	if err != nil {
		e.log.Errorf("encode command=%d target=%d err=%v", command, target, err)
		return nil
	}
	return b
}

func (e *Encoder) EncodeArm(target uint8, force bool) []byte {
	p := [7]float32{1}
	if force {
		p[1] = ArmForceMagic
	}
	return e.EncodeCommand(target, CmdComponentArmDisarm, p)
}

func (e *Encoder) EncodeDisarm(target uint8, force bool) []byte {
	p := [7]float32{0}
	if force {
		p[1] = ArmForceMagic
	}
	return e.EncodeCommand(target, CmdComponentArmDisarm, p)
}

// EncodeEmergencyStop is forced disarm, motors stop even in flight.
func (e *Encoder) EncodeEmergencyStop(target uint8) []byte {
	return e.EncodeDisarm(target, true)
}

func (e *Encoder) EncodeTakeoff(target uint8, altitudeM float64) []byte {
	p := [7]float32{}
	p[6] = float32(altitudeM)
	return e.EncodeCommand(target, CmdNavTakeoff, p)
}

func (e *Encoder) EncodeLand(target uint8) []byte {
	return e.EncodeCommand(target, CmdNavLand, [7]float32{})
}

func (e *Encoder) EncodeReturnToLaunch(target uint8) []byte {
	return e.EncodeCommand(target, CmdNavReturnToLaunch, [7]float32{})
}

// EncodeGoTo latitude/longitude in degrees, altitude in meters.
func (e *Encoder) EncodeGoTo(target uint8, lat, lon, altM float64) []byte {
	p := [7]float32{}
	p[4] = float32(lat)
	p[5] = float32(lon)
	p[6] = float32(altM)
	return e.EncodeCommand(target, CmdDoReposition, p)
}

func (e *Encoder) EncodeSetMode(target uint8, modeCode uint32) []byte {
	return e.EncodeCommand(target, CmdDoSetMode, [7]float32{ModeFlagCustomEnabled, float32(modeCode)})
}

func (e *Encoder) EncodeStartMission(target uint8) []byte {
	return e.EncodeCommand(target, CmdMissionStart, [7]float32{0, 0})
}
