// Package onvifservices is the Service Handlers component of spec.md §2's
// component table: the Device/Media/PTZ/Imaging/Snapshot operation logic
// that the SOAP Dispatcher routes to. Each handler unmarshals its
// operation-specific request, delegates to the Config Runtime, Stream
// Router, or a HAL collaborator, and marshals an operation-specific
// response body — never the full envelope, which the HTTP Engine wraps.
package onvifservices

import (
	"encoding/xml"
	"fmt"

	"github.com/onvifcam/onvifd/internal/config"
	"github.com/onvifcam/onvifd/internal/soap"
)

const opServices = "onvifservices"

// DeviceService implements the ONVIF device_service operations this
// daemon supports: GetDeviceInformation and GetCapabilities.
type DeviceService struct {
	runtime    *config.Runtime
	serverHost string
}

// NewDeviceService builds a DeviceService bound to runtime. serverHost is
// used to render the XAddrs advertised by GetCapabilities.
func NewDeviceService(runtime *config.Runtime, serverHost string) *DeviceService {
	return &DeviceService{runtime: runtime, serverHost: serverHost}
}

type getDeviceInformationResponse struct {
	XMLName         xml.Name `xml:"tds:GetDeviceInformationResponse"`
	Manufacturer    string   `xml:"tds:Manufacturer"`
	Model           string   `xml:"tds:Model"`
	FirmwareVersion string   `xml:"tds:FirmwareVersion"`
	SerialNumber    string   `xml:"tds:SerialNumber"`
	HardwareId      string   `xml:"tds:HardwareId"`
}

// GetDeviceInformation returns the device identity fields from the
// [onvif] config section, per spec.md scenario 1.
func (d *DeviceService) GetDeviceInformation(_ []byte) ([]byte, error) {
	snap := d.runtime.Snapshot()
	resp := getDeviceInformationResponse{
		Manufacturer:    snap.Onvif.Manufacturer,
		Model:           snap.Onvif.Model,
		FirmwareVersion: snap.Onvif.FirmwareVersion,
		SerialNumber:    snap.Onvif.SerialNumber,
		HardwareId:      snap.Onvif.HardwareID,
	}
	return xml.Marshal(resp)
}

type capabilitiesResponse struct {
	XMLName xml.Name `xml:"tds:GetCapabilitiesResponse"`
	Media   struct {
		XAddr string `xml:"tt:XAddr"`
	} `xml:"tds:Capabilities>tt:Media"`
	PTZ struct {
		XAddr string `xml:"tt:XAddr"`
	} `xml:"tds:Capabilities>tt:PTZ"`
	Imaging struct {
		XAddr string `xml:"tt:XAddr"`
	} `xml:"tds:Capabilities>tt:Imaging"`
	Device struct {
		XAddr string `xml:"tt:XAddr"`
	} `xml:"tds:Capabilities>tt:Device"`
}

// GetCapabilities advertises this daemon's service XAddrs, derived from
// the live network configuration rather than a hard-coded host/port.
func (d *DeviceService) GetCapabilities(_ []byte) ([]byte, error) {
	snap := d.runtime.Snapshot()
	base := fmt.Sprintf("http://%s:%d/onvif", d.serverHost, snap.Network.HTTPPort)

	var resp capabilitiesResponse
	resp.Device.XAddr = base + "/device_service"
	resp.Media.XAddr = base + "/media_service"
	resp.PTZ.XAddr = base + "/ptz_service"
	resp.Imaging.XAddr = base + "/imaging_service"
	return xml.Marshal(resp)
}

// Register wires DeviceService's operations into dispatcher under the
// "device" service name.
func (d *DeviceService) Register(dispatcher *soap.Dispatcher) error {
	if err := dispatcher.Register("device", "GetDeviceInformation", d.GetDeviceInformation); err != nil {
		return err
	}
	return dispatcher.Register("device", "GetCapabilities", d.GetCapabilities)
}
