package command

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/temoto/c2link/internal/types"
)

func TestParse(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input     []string
		expect    Command
		expectErr string
	}{
		{[]string{"arm"}, Arm{}, ""},
		{[]string{"arm", "force"}, Arm{Force: true}, ""},
		{[]string{"arm", "now"}, nil, "command arm arguments=[now] not valid"},
		{[]string{"disarm", "force"}, Disarm{Force: true}, ""},
		{[]string{"takeoff", "12.5"}, Takeoff{AltitudeM: 12.5}, ""},
		{[]string{"takeoff"}, nil, "command takeoff expects 1 arguments, got 0 not valid"},
		{[]string{"takeoff", "high"}, nil, "command takeoff argument=high not valid"},
		{[]string{"LAND"}, Land{}, ""},
		{[]string{"land", "x"}, nil, "takes no arguments"},
		{[]string{"rtl"}, ReturnToLaunch{}, ""},
		{[]string{"goto", "47.1", "8.5", "500"}, GoTo{Position: types.Position{Latitude: 47.1, Longitude: 8.5, AltitudeMSL: 500}}, ""},
		{[]string{"mission", "survey-3"}, StartMission{MissionID: "survey-3"}, ""},
		{[]string{"mode", "auto_loiter"}, SetFlightMode{Mode: types.ModeAutoLoiter}, ""},
		{[]string{"mode", "sport"}, nil, "flight mode=sport not valid"},
		{[]string{"estop"}, EmergencyStop{}, ""},
		{[]string{"fly"}, nil, "command=fly not supported"},
	}
	for _, c := range cases {
		cmd, err := Parse(c.input[0], c.input[1:])
		if c.expectErr == "" {
			assert.NoError(t, err, c.input)
			assert.Equal(t, c.expect, cmd, c.input)
		} else {
			assert.Error(t, err, c.input)
			if err != nil {
				assert.Contains(t, err.Error(), c.expectErr, c.input)
			}
			assert.Nil(t, cmd)
		}
	}
}

func TestCommandString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "arm(force)", Arm{Force: true}.String())
	assert.Equal(t, "takeoff(alt=20)", Takeoff{AltitudeM: 20}.String())
	assert.Equal(t, "mode(AUTO_RTL)", SetFlightMode{Mode: types.ModeAutoRTL}.String())
	assert.Equal(t, "rejected: denied", Rejected("denied").String())
	assert.Equal(t, "acknowledged(local)", Result{Kind: ResultAcknowledged, Local: true}.String())
}

func TestConfigSettings(t *testing.T) {
	t.Parallel()
	s, err := (&Config{}).Settings()
	assert.NoError(t, err)
	assert.Equal(t, Settings{Timeout: DefaultTimeout, EmergencyTimeout: DefaultEmergencyTimeout, QOS: 2, Fallback: FallbackApplyLocal}, s)

	s, err = (&Config{TimeoutSec: 3, QOS: 1, Fallback: "Queue"}).Settings()
	assert.NoError(t, err)
	assert.Equal(t, 3e9, float64(s.Timeout))
	assert.Equal(t, byte(1), s.QOS)
	assert.Equal(t, FallbackQueue, s.Fallback)

	_, err = (&Config{QOS: 3}).Settings()
	assert.True(t, errors.IsNotValid(err))
	_, err = (&Config{Fallback: "pray"}).Settings()
	assert.True(t, errors.IsNotValid(err))
	assert.Equal(t, "reject", FallbackReject.String())
}
