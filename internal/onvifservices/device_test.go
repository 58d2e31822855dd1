package onvifservices

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onvifcam/onvifd/internal/config"
	"github.com/onvifcam/onvifd/internal/soap"
)

func TestGetDeviceInformationReturnsOnvifFields(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	svc := NewDeviceService(r, "192.168.1.50")

	raw, err := svc.GetDeviceInformation(nil)
	require.NoError(t, err)

	var resp getDeviceInformationResponse
	require.NoError(t, xml.Unmarshal(raw, &resp))
	require.NotEmpty(t, resp.Manufacturer)
	require.NotEmpty(t, resp.Model)
}

func TestGetCapabilitiesUsesLiveNetworkConfig(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	require.NoError(t, r.SetInt("network", "http_port", 9090))
	svc := NewDeviceService(r, "192.168.1.50")

	raw, err := svc.GetCapabilities(nil)
	require.NoError(t, err)

	var resp capabilitiesResponse
	require.NoError(t, xml.Unmarshal(raw, &resp))
	require.Contains(t, resp.Device.XAddr, "192.168.1.50:9090")
	require.Contains(t, resp.Media.XAddr, "/onvif/media_service")
}

func TestDeviceServiceRegisterRejectsDuplicate(t *testing.T) {
	r := config.NewRuntime(nil, nil)
	svc := NewDeviceService(r, "host")
	d := soap.NewDispatcher()
	require.NoError(t, svc.Register(d))
	require.Error(t, svc.Register(d))
}
