package onvifservices

import (
	"encoding/xml"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/config"
	"github.com/onvifcam/onvifd/internal/soap"
)

// ImagingService implements the ONVIF imaging_service operations this
// daemon supports: GetImagingSettings, SetImagingSettings.
type ImagingService struct {
	runtime *config.Runtime
}

// NewImagingService builds an ImagingService bound to runtime.
func NewImagingService(runtime *config.Runtime) *ImagingService {
	return &ImagingService{runtime: runtime}
}

type imagingSettingsXML struct {
	Brightness   int32  `xml:"tt:Brightness"`
	Contrast     int32  `xml:"tt:Contrast"`
	ColorSaturation int32 `xml:"tt:ColorSaturation"`
	Sharpness    int32  `xml:"tt:Sharpness"`
	WhiteBalance string `xml:"tt:WhiteBalance>tt:Mode"`
}

type getImagingSettingsResponse struct {
	XMLName          xml.Name            `xml:"timg:GetImagingSettingsResponse"`
	ImagingSettings  imagingSettingsXML  `xml:"timg:ImagingSettings"`
}

// GetImagingSettings reports the current [imaging] section values.
func (i *ImagingService) GetImagingSettings(_ []byte) ([]byte, error) {
	snap := i.runtime.Snapshot()
	resp := getImagingSettingsResponse{}
	resp.ImagingSettings = imagingSettingsXML{
		Brightness:      snap.Imaging.Brightness,
		Contrast:        snap.Imaging.Contrast,
		ColorSaturation: snap.Imaging.Saturation,
		Sharpness:       snap.Imaging.Sharpness,
		WhiteBalance:    snap.Imaging.WhiteBalance,
	}
	return xml.Marshal(resp)
}

// setImagingSettingsRequest matches elements by local name only, so a
// request decodes whatever namespace prefix the client puts on them.
type setImagingSettingsRequest struct {
	ImagingSettings struct {
		Brightness      int32  `xml:"Brightness"`
		Contrast        int32  `xml:"Contrast"`
		ColorSaturation int32  `xml:"ColorSaturation"`
		Sharpness       int32  `xml:"Sharpness"`
		WhiteBalance    string `xml:"WhiteBalance>Mode"`
	} `xml:"ImagingSettings"`
}

// SetImagingSettings validates and applies each provided field through
// the Config Runtime's typed setters, so the same min/max/enum validation
// the INI loader uses also governs ONVIF-driven mutation.
func (i *ImagingService) SetImagingSettings(req []byte) ([]byte, error) {
	var r setImagingSettingsRequest
	if err := xml.Unmarshal(req, &r); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, opServices, "malformed SetImagingSettings request", err)
	}

	s := r.ImagingSettings
	if err := i.runtime.SetInt("imaging", "brightness", s.Brightness); err != nil {
		return nil, err
	}
	if err := i.runtime.SetInt("imaging", "contrast", s.Contrast); err != nil {
		return nil, err
	}
	if err := i.runtime.SetInt("imaging", "saturation", s.ColorSaturation); err != nil {
		return nil, err
	}
	if err := i.runtime.SetInt("imaging", "sharpness", s.Sharpness); err != nil {
		return nil, err
	}
	if s.WhiteBalance != "" {
		if err := i.runtime.SetString("imaging", "white_balance", s.WhiteBalance); err != nil {
			return nil, err
		}
	}

	resp := emptyResponse{XMLName: xml.Name{Local: "timg:SetImagingSettingsResponse"}}
	return xml.Marshal(resp)
}

// Register wires ImagingService's operations into dispatcher under the
// "imaging" service name.
func (i *ImagingService) Register(dispatcher *soap.Dispatcher) error {
	if err := dispatcher.Register("imaging", "GetImagingSettings", i.GetImagingSettings); err != nil {
		return err
	}
	return dispatcher.Register("imaging", "SetImagingSettings", i.SetImagingSettings)
}
