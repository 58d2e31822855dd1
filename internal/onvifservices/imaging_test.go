package onvifservices

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onvifcam/onvifd/internal/config"
)

func TestGetImagingSettingsReflectsSnapshot(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	require.NoError(t, r.SetInt("imaging", "brightness", 70))
	svc := NewImagingService(r)

	raw, err := svc.GetImagingSettings(nil)
	require.NoError(t, err)

	var resp getImagingSettingsResponse
	require.NoError(t, xml.Unmarshal(raw, &resp))
	require.Equal(t, int32(70), resp.ImagingSettings.Brightness)
}

func TestSetImagingSettingsAppliesThroughRuntime(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	svc := NewImagingService(r)

	req := setImagingSettingsRequest{}
	req.ImagingSettings.Brightness = 80
	req.ImagingSettings.Contrast = 60
	req.ImagingSettings.ColorSaturation = 40
	req.ImagingSettings.Sharpness = 20
	reqBody, err := xml.Marshal(req)
	require.NoError(t, err)

	_, err = svc.SetImagingSettings(reqBody)
	require.NoError(t, err)

	brightness, err := r.GetInt("imaging", "brightness")
	require.NoError(t, err)
	require.Equal(t, int32(80), brightness)
}

func TestSetImagingSettingsRejectsOutOfRange(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	svc := NewImagingService(r)

	req := setImagingSettingsRequest{}
	req.ImagingSettings.Brightness = 999
	reqBody, err := xml.Marshal(req)
	require.NoError(t, err)

	_, err = svc.SetImagingSettings(reqBody)
	require.Error(t, err)
}
