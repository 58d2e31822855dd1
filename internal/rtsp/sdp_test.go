package rtsp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onvifcam/onvifd/internal/config"
)

func TestCapabilitiesForProfileFindsMatch(t *testing.T) {
	snap := &config.Snapshot{}
	snap.Profiles[0].Token = "main"
	snap.Profiles[0].Video = config.VideoEncoderConfig{Encoding: "H264", Width: 1920, Height: 1080, FrameRate: 25, BitrateKbps: 2000}

	caps, ok := CapabilitiesForProfile(snap, "main")
	require.True(t, ok)
	require.Equal(t, int32(1920), caps.Video.Width)
}

func TestCapabilitiesForProfileMissIsFalse(t *testing.T) {
	snap := &config.Snapshot{}
	_, ok := CapabilitiesForProfile(snap, "nonexistent")
	require.False(t, ok)
}

func TestSynthesizeSDPDerivesFmtpFromConfig(t *testing.T) {
	caps := MediaCapabilities{
		ProfileToken: "main",
		Video:        config.VideoEncoderConfig{Encoding: "H264", Width: 1280, Height: 720, FrameRate: 30, BitrateKbps: 4000},
	}
	sdp := SynthesizeSDP(caps, "192.168.1.50")
	require.Contains(t, sdp, "m=video 0 RTP/AVP 96")
	require.Contains(t, sdp, "width=1280;height=720;framerate=30;bitrate=4000")
	require.NotContains(t, sdp, "m=audio")
}

func TestSynthesizeSDPIncludesAudioWhenEnabled(t *testing.T) {
	caps := MediaCapabilities{
		ProfileToken: "main",
		Video:        config.VideoEncoderConfig{Encoding: "H264", Width: 640, Height: 360, FrameRate: 15, BitrateKbps: 512},
		Audio:        config.AudioEncoderConfig{Enabled: true, Encoding: "PCMU", SampleRate: 8000, BitrateKbps: 64},
	}
	sdp := SynthesizeSDP(caps, "192.168.1.50")
	require.Contains(t, sdp, "m=audio 0 RTP/AVP 97")
	require.Contains(t, sdp, "PCMU/8000")
}
