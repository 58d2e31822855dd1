package onvifservices

import (
	"encoding/xml"
	"fmt"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/config"
	"github.com/onvifcam/onvifd/internal/hal"
	"github.com/onvifcam/onvifd/internal/soap"
)

// PTZService implements the ONVIF ptz_service operations this daemon
// supports: ContinuousMove/Stop (delegated to an absolute-position motor
// by translating velocity into a one-shot move, since the HAL contract is
// absolute-only), GotoPreset, GetPresets, GetStatus.
type PTZService struct {
	runtime *config.Runtime
	motor   hal.PTZMotor
}

// NewPTZService builds a PTZService bound to runtime and motor.
func NewPTZService(runtime *config.Runtime, motor hal.PTZMotor) *PTZService {
	return &PTZService{runtime: runtime, motor: motor}
}

// ptzSpeedXML matches elements by local name only, so a request decodes
// whatever namespace prefix the client puts on them.
type ptzSpeedXML struct {
	PanTilt struct {
		X float64 `xml:"x,attr"`
		Y float64 `xml:"y,attr"`
	} `xml:"PanTilt"`
	Zoom struct {
		X float64 `xml:"x,attr"`
	} `xml:"Zoom"`
}

type continuousMoveRequest struct {
	ProfileToken string      `xml:"ProfileToken"`
	Velocity     ptzSpeedXML `xml:"Velocity"`
}

type emptyResponse struct {
	XMLName xml.Name
}

// ContinuousMove moves the PTZ motor toward the requested velocity
// direction. The HAL's PTZMotor contract is position-based, not
// velocity-based, so this handler treats the velocity vector as a
// one-shot relative nudge from the motor's current position — a
// deliberate simplification since real continuous-velocity streaming
// requires a motor-specific control loop this daemon does not own.
func (p *PTZService) ContinuousMove(req []byte) ([]byte, error) {
	var r continuousMoveRequest
	if err := xml.Unmarshal(req, &r); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, opServices, "malformed ContinuousMove request", err)
	}
	pan, tilt, zoom, err := p.motor.Position()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindResource, opServices, "PTZ motor position query failed", err)
	}
	if err := p.motor.MoveTo(pan+r.Velocity.PanTilt.X, tilt+r.Velocity.PanTilt.Y, zoom+r.Velocity.Zoom.X); err != nil {
		return nil, apperr.Wrap(apperr.KindResource, opServices, "PTZ motor move failed", err)
	}
	resp := emptyResponse{XMLName: xml.Name{Local: "tptz:ContinuousMoveResponse"}}
	return xml.Marshal(resp)
}

// Stop halts PTZ motion. Since this daemon's motor contract has no
// separate "halt" primitive, Stop re-issues MoveTo at the motor's current
// reported position.
func (p *PTZService) Stop(_ []byte) ([]byte, error) {
	pan, tilt, zoom, err := p.motor.Position()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindResource, opServices, "PTZ motor position query failed", err)
	}
	if err := p.motor.MoveTo(pan, tilt, zoom); err != nil {
		return nil, apperr.Wrap(apperr.KindResource, opServices, "PTZ motor stop failed", err)
	}
	resp := emptyResponse{XMLName: xml.Name{Local: "tptz:StopResponse"}}
	return xml.Marshal(resp)
}

type gotoPresetRequest struct {
	ProfileToken string `xml:"ProfileToken"`
	PresetToken  string `xml:"PresetToken"`
}

// GotoPreset moves the PTZ motor to one of the schema's fixed preset
// slots, per config.PTZConfig.
func (p *PTZService) GotoPreset(req []byte) ([]byte, error) {
	var r gotoPresetRequest
	if err := xml.Unmarshal(req, &r); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, opServices, "malformed GotoPreset request", err)
	}

	snap := p.runtime.Snapshot()
	for _, preset := range snap.PTZ.Presets {
		if preset.Token == r.PresetToken {
			if err := p.motor.MoveTo(preset.Pan, preset.Tilt, preset.Zoom); err != nil {
				return nil, apperr.Wrap(apperr.KindResource, opServices, "PTZ motor move failed", err)
			}
			resp := emptyResponse{XMLName: xml.Name{Local: "tptz:GotoPresetResponse"}}
			return xml.Marshal(resp)
		}
	}
	return nil, apperr.New(apperr.KindNotFound, opServices, fmt.Sprintf("no such PTZ preset %q", r.PresetToken))
}

type presetXML struct {
	Token string `xml:"token,attr"`
	Name  string `xml:"tt:Name"`
}

type getPresetsResponse struct {
	XMLName xml.Name    `xml:"tptz:GetPresetsResponse"`
	Presets []presetXML `xml:"tptz:Preset"`
}

// GetPresets enumerates the schema's fixed PTZ preset slots, skipping
// unconfigured (empty-token) entries.
func (p *PTZService) GetPresets(_ []byte) ([]byte, error) {
	snap := p.runtime.Snapshot()
	resp := getPresetsResponse{}
	for _, preset := range snap.PTZ.Presets {
		if preset.Token == "" {
			continue
		}
		resp.Presets = append(resp.Presets, presetXML{Token: preset.Token, Name: preset.Token})
	}
	return xml.Marshal(resp)
}

type getStatusResponse struct {
	XMLName  xml.Name `xml:"tptz:GetStatusResponse"`
	Position struct {
		PanTilt struct {
			X float64 `xml:"x,attr"`
			Y float64 `xml:"y,attr"`
		} `xml:"tt:PanTilt"`
		Zoom struct {
			X float64 `xml:"x,attr"`
		} `xml:"tt:Zoom"`
	} `xml:"tptz:PTZStatus>tt:Position"`
}

// GetStatus reports the motor's current reported position.
func (p *PTZService) GetStatus(_ []byte) ([]byte, error) {
	pan, tilt, zoom, err := p.motor.Position()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindResource, opServices, "PTZ motor position query failed", err)
	}
	resp := getStatusResponse{}
	resp.Position.PanTilt.X = pan
	resp.Position.PanTilt.Y = tilt
	resp.Position.Zoom.X = zoom
	return xml.Marshal(resp)
}

// Register wires PTZService's operations into dispatcher under the "ptz"
// service name.
func (p *PTZService) Register(dispatcher *soap.Dispatcher) error {
	regs := []struct {
		op string
		h  soap.HandlerFunc
	}{
		{"ContinuousMove", p.ContinuousMove},
		{"Stop", p.Stop},
		{"GotoPreset", p.GotoPreset},
		{"GetPresets", p.GetPresets},
		{"GetStatus", p.GetStatus},
	}
	for _, r := range regs {
		if err := dispatcher.Register("ptz", r.op, r.h); err != nil {
			return err
		}
	}
	return nil
}
