package onvifservices

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/config"
	"github.com/onvifcam/onvifd/internal/hal"
)

func TestContinuousMoveNudgesFromCurrentPosition(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	motor := &hal.FakePTZMotor{}
	svc := NewPTZService(r, motor)

	var req continuousMoveRequest
	req.Velocity.PanTilt.X = 0.1
	req.Velocity.PanTilt.Y = 0.2
	reqBody, err := xml.Marshal(req)
	require.NoError(t, err)

	_, err = svc.ContinuousMove(reqBody)
	require.NoError(t, err)

	pan, tilt, _, err := motor.Position()
	require.NoError(t, err)
	require.InDelta(t, 0.1, pan, 1e-9)
	require.InDelta(t, 0.2, tilt, 1e-9)
}

func TestGotoPresetMovesToConfiguredSlot(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	require.NoError(t, r.SetString("ptz", "preset1_token", "home"))
	require.NoError(t, r.SetFloat("ptz", "preset1_pan", 0.5))
	motor := &hal.FakePTZMotor{}
	svc := NewPTZService(r, motor)

	reqBody, _ := xml.Marshal(gotoPresetRequest{PresetToken: "home"})
	_, err := svc.GotoPreset(reqBody)
	require.NoError(t, err)

	pan, _, _, err := motor.Position()
	require.NoError(t, err)
	require.InDelta(t, 0.5, pan, 1e-9)
}

func TestGotoPresetRejectsUnknownToken(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	motor := &hal.FakePTZMotor{}
	svc := NewPTZService(r, motor)

	reqBody, _ := xml.Marshal(gotoPresetRequest{PresetToken: "nonexistent"})
	_, err := svc.GotoPreset(reqBody)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetStatusReportsMotorPosition(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	motor := &hal.FakePTZMotor{}
	require.NoError(t, motor.MoveTo(0.3, 0.4, 0.5))
	svc := NewPTZService(r, motor)

	raw, err := svc.GetStatus(nil)
	require.NoError(t, err)

	var resp getStatusResponse
	require.NoError(t, xml.Unmarshal(raw, &resp))
	require.InDelta(t, 0.3, resp.Position.PanTilt.X, 1e-9)
}
