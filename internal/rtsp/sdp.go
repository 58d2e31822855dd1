package rtsp

import (
	"fmt"
	"strings"

	"github.com/onvifcam/onvifd/internal/config"
)

// MediaCapabilities is the subset of a profile's configuration SDP
// synthesis needs — extracted from config.Snapshot so this package does
// not depend on config.Runtime's mutation surface, only its data shape.
type MediaCapabilities struct {
	ProfileToken string
	Video        config.VideoEncoderConfig
	Audio        config.AudioEncoderConfig
}

// CapabilitiesForProfile extracts MediaCapabilities for the named profile
// token out of a Snapshot, or false if no profile matches.
func CapabilitiesForProfile(snap *config.Snapshot, profileToken string) (MediaCapabilities, bool) {
	for _, p := range snap.Profiles {
		if p.Token == profileToken {
			return MediaCapabilities{ProfileToken: p.Token, Video: p.Video, Audio: p.Audio}, true
		}
	}
	return MediaCapabilities{}, false
}

// videoPayloadType is the dynamic RTP payload type this engine assigns to
// its only supported video encoding (H264), within the 96-127 dynamic
// range per RFC 3551.
const videoPayloadType = 96

// audioPayloadType is the dynamic payload type assigned to the optional
// audio stream.
const audioPayloadType = 97

// SynthesizeSDP builds an SDP description for caps, deriving every
// a=fmtp parameter from the runtime configuration rather than hard-coded
// constants, per spec.md §4.11.
func SynthesizeSDP(caps MediaCapabilities, serverAddr string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=- 0 0 IN IP4 %s\r\n", serverAddr)
	fmt.Fprintf(&b, "s=%s\r\n", caps.ProfileToken)
	fmt.Fprintf(&b, "c=IN IP4 %s\r\n", serverAddr)
	fmt.Fprintf(&b, "t=0 0\r\n")

	fmt.Fprintf(&b, "m=video 0 RTP/AVP %d\r\n", videoPayloadType)
	fmt.Fprintf(&b, "a=control:trackID=video\r\n")
	fmt.Fprintf(&b, "a=rtpmap:%d %s/90000\r\n", videoPayloadType, caps.Video.Encoding)
	fmt.Fprintf(&b, "a=fmtp:%d width=%d;height=%d;framerate=%d;bitrate=%d\r\n",
		videoPayloadType, caps.Video.Width, caps.Video.Height, caps.Video.FrameRate, caps.Video.BitrateKbps)

	if caps.Audio.Enabled {
		fmt.Fprintf(&b, "m=audio 0 RTP/AVP %d\r\n", audioPayloadType)
		fmt.Fprintf(&b, "a=control:trackID=audio\r\n")
		fmt.Fprintf(&b, "a=rtpmap:%d %s/%d\r\n", audioPayloadType, caps.Audio.Encoding, caps.Audio.SampleRate)
		fmt.Fprintf(&b, "a=fmtp:%d bitrate=%d\r\n", audioPayloadType, caps.Audio.BitrateKbps)
	}

	return b.String()
}
