// Package mavlink encodes vehicle commands into MAVLink v2 frames,
// signs them and parses inbound telemetry and acknowledgements.
// Only the handful of messages a ground station needs for command and monitoring are known,
// everything else decodes as *Unknown.
package mavlink

const (
	Magic = byte(0xfd)

	HeaderLen    = 10
	ChecksumLen  = 2
	SignatureLen = 13
	SignatureTag = 6
	MaxPayload   = 255

	MinFrameLen       = HeaderLen + 1 + ChecksumLen
	MinSignedFrameLen = HeaderLen + ChecksumLen + SignatureLen

	IncompatSigned = byte(0x01)
)

// Ground station identity on the wire.
const (
	GCSSystemID        uint8 = 255
	GCSComponentID     uint8 = 190
	AutopilotComponent uint8 = 1
)

// MAV_CMD values.
const (
	CmdNavReturnToLaunch  uint16 = 20
	CmdNavLand            uint16 = 21
	CmdNavTakeoff         uint16 = 22
	CmdDoSetMode          uint16 = 176
	CmdDoReposition       uint16 = 192
	CmdMissionStart       uint16 = 300
	CmdComponentArmDisarm uint16 = 400

	// Magic param2 of COMPONENT_ARM_DISARM which bypasses pre-arm and in-flight checks.
	ArmForceMagic float32 = 21196

	ModeFlagCustomEnabled float32 = 1
)

// MAV_MODE_FLAG
const BaseModeSafetyArmed uint8 = 0x80

// Command acknowledgement result codes as reported by the fleet autopilots.
const (
	ResultAccepted            uint8 = 0
	ResultDenied              uint8 = 1
	ResultTemporarilyRejected uint8 = 4
	ResultInProgress          uint8 = 5
)
