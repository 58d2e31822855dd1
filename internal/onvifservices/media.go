package onvifservices

import (
	"encoding/xml"
	"fmt"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/config"
	"github.com/onvifcam/onvifd/internal/soap"
)

// MediaService implements the ONVIF media_service operations this daemon
// supports: GetProfiles, GetStreamUri, GetSnapshotUri.
type MediaService struct {
	runtime    *config.Runtime
	serverHost string
}

// NewMediaService builds a MediaService bound to runtime.
func NewMediaService(runtime *config.Runtime, serverHost string) *MediaService {
	return &MediaService{runtime: runtime, serverHost: serverHost}
}

type videoEncoderXML struct {
	Encoding   string `xml:"tt:Encoding"`
	Resolution struct {
		Width  int32 `xml:"tt:Width"`
		Height int32 `xml:"tt:Height"`
	} `xml:"tt:Resolution"`
	RateControl struct {
		FrameRateLimit int32 `xml:"tt:FrameRateLimit"`
		BitrateLimit   int32 `xml:"tt:BitrateLimit"`
	} `xml:"tt:RateControl"`
}

type profileXML struct {
	Token          string           `xml:"token,attr"`
	Name           string           `xml:"tt:Name"`
	VideoEncoder   videoEncoderXML  `xml:"tt:VideoEncoderConfiguration"`
}

type getProfilesResponse struct {
	XMLName  xml.Name     `xml:"trt:GetProfilesResponse"`
	Profiles []profileXML `xml:"trt:Profiles"`
}

// GetProfiles enumerates the two fixed media profiles ("MainProfile" and
// "SubProfile"), per spec.md scenario 2. The response is built entirely
// from the live Snapshot, never hard-coded resolution/bitrate constants.
func (m *MediaService) GetProfiles(_ []byte) ([]byte, error) {
	snap := m.runtime.Snapshot()
	resp := getProfilesResponse{}
	for _, p := range snap.Profiles {
		px := profileXML{Token: p.Token, Name: p.Token}
		px.VideoEncoder.Encoding = p.Video.Encoding
		px.VideoEncoder.Resolution.Width = p.Video.Width
		px.VideoEncoder.Resolution.Height = p.Video.Height
		px.VideoEncoder.RateControl.FrameRateLimit = p.Video.FrameRate
		px.VideoEncoder.RateControl.BitrateLimit = p.Video.BitrateKbps
		resp.Profiles = append(resp.Profiles, px)
	}
	return xml.Marshal(resp)
}

type getStreamUriRequest struct {
	ProfileToken string `xml:"ProfileToken"`
}

type getStreamUriResponse struct {
	XMLName  xml.Name `xml:"trt:GetStreamUriResponse"`
	MediaUri struct {
		Uri string `xml:"tt:Uri"`
	} `xml:"trt:MediaUri"`
}

// GetStreamUri returns the RTSP URI for a profile token, validating the
// token against the live Snapshot's profile list before answering.
func (m *MediaService) GetStreamUri(req []byte) ([]byte, error) {
	var r getStreamUriRequest
	if err := xml.Unmarshal(req, &r); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, opServices, "malformed GetStreamUri request", err)
	}

	snap := m.runtime.Snapshot()
	if !profileExists(snap, r.ProfileToken) {
		return nil, apperr.New(apperr.KindNotFound, opServices, "no such media profile")
	}

	resp := getStreamUriResponse{}
	resp.MediaUri.Uri = fmt.Sprintf("rtsp://%s:%d/%s", m.serverHost, snap.Network.RTSPPort, r.ProfileToken)
	return xml.Marshal(resp)
}

type getSnapshotUriRequest struct {
	ProfileToken string `xml:"ProfileToken"`
}

type getSnapshotUriResponse struct {
	XMLName  xml.Name `xml:"trt:GetSnapshotUriResponse"`
	MediaUri struct {
		Uri string `xml:"tt:Uri"`
	} `xml:"trt:MediaUri"`
}

// GetSnapshotUri returns the JPEG snapshot HTTP URI for a profile token,
// per spec.md §6 "GET /snapshot returns a JPEG of the current frame".
func (m *MediaService) GetSnapshotUri(req []byte) ([]byte, error) {
	var r getSnapshotUriRequest
	if err := xml.Unmarshal(req, &r); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, opServices, "malformed GetSnapshotUri request", err)
	}
	snap := m.runtime.Snapshot()
	if !profileExists(snap, r.ProfileToken) {
		return nil, apperr.New(apperr.KindNotFound, opServices, "no such media profile")
	}

	resp := getSnapshotUriResponse{}
	resp.MediaUri.Uri = fmt.Sprintf("http://%s:%d/snapshot?profile=%s", m.serverHost, snap.Network.HTTPPort, r.ProfileToken)
	return xml.Marshal(resp)
}

func profileExists(snap *config.Snapshot, token string) bool {
	for _, p := range snap.Profiles {
		if p.Token == token {
			return true
		}
	}
	return false
}

// Register wires MediaService's operations into dispatcher under the
// "media" service name.
func (m *MediaService) Register(dispatcher *soap.Dispatcher) error {
	if err := dispatcher.Register("media", "GetProfiles", m.GetProfiles); err != nil {
		return err
	}
	if err := dispatcher.Register("media", "GetStreamUri", m.GetStreamUri); err != nil {
		return err
	}
	return dispatcher.Register("media", "GetSnapshotUri", m.GetSnapshotUri)
}
