package command

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/c2link/internal/types"
)

// Usage lists text forms accepted by Parse.
const Usage = `arm [force]
disarm [force]
takeoff ALTITUDE_M
land
rtl
goto LAT LON ALT_M
mission MISSION_ID
mode MANUAL|STABILIZED|ALTITUDE_HOLD|POSITION_HOLD|AUTO_MISSION|AUTO_LOITER|AUTO_RTL|OFFBOARD
estop`

// Names are command words for console completion.
var Names = []string{"arm", "disarm", "takeoff", "land", "rtl", "goto", "mission", "mode", "estop"}

// Parse operator text command, e.g. "takeoff 20".
func Parse(name string, args []string) (Command, error) {
	floats := func(n int) ([]float64, error) {
		if len(args) != n {
			return nil, errors.NotValidf("command %s expects %d arguments, got %d", name, n, len(args))
		}
		fs := make([]float64, n)
		for i, a := range args {
			f, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return nil, errors.NotValidf("command %s argument=%s", name, a)
			}
			fs[i] = f
		}
		return fs, nil
	}
	force := func() (bool, error) {
		switch {
		case len(args) == 0:
			return false, nil
		case len(args) == 1 && args[0] == "force":
			return true, nil
		}
		return false, errors.NotValidf("command %s arguments=%v", name, args)
	}
	noargs := func(c Command) (Command, error) {
		if len(args) != 0 {
			return nil, errors.NotValidf("command %s takes no arguments", name)
		}
		return c, nil
	}

	switch strings.ToLower(name) {
	case "arm":
		f, err := force()
		if err != nil {
			return nil, err
		}
		return Arm{Force: f}, nil
	case "disarm":
		f, err := force()
		if err != nil {
			return nil, err
		}
		return Disarm{Force: f}, nil
	case "takeoff":
		fs, err := floats(1)
		if err != nil {
			return nil, err
		}
		return Takeoff{AltitudeM: fs[0]}, nil
	case "land":
		return noargs(Land{})
	case "rtl", "return":
		return noargs(ReturnToLaunch{})
	case "goto":
		fs, err := floats(3)
		if err != nil {
			return nil, err
		}
		return GoTo{Position: types.Position{Latitude: fs[0], Longitude: fs[1], AltitudeMSL: fs[2]}}, nil
	case "mission":
		if len(args) != 1 {
			return nil, errors.NotValidf("command mission expects mission id")
		}
		return StartMission{MissionID: args[0]}, nil
	case "mode":
		if len(args) != 1 {
			return nil, errors.NotValidf("command mode expects flight mode")
		}
		m, err := types.ParseFlightMode(args[0])
		if err != nil {
			return nil, err
		}
		return SetFlightMode{Mode: m}, nil
	case "estop", "emergency":
		return noargs(EmergencyStop{})
	}
	return nil, errors.NotSupportedf("command=%s", name)
}
