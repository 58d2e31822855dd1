package rtsp

import (
	"strconv"
	"strings"

	"github.com/onvifcam/onvifd/internal/apperr"
)

// ParseTransportHeader parses an RTSP Transport header value such as
// "RTP/AVP;unicast;client_port=4000-4001" or
// "RTP/AVP/TCP;unicast;interleaved=0-1". Any other protocol (RTSPS
// included) is rejected here with KindNotSupported, and the engine answers
// every parse error with 461 — this parser only understands the two
// transports spec.md §4.11 supports.
func ParseTransportHeader(value string) (Transport, error) {
	parts := strings.Split(value, ";")
	if len(parts) == 0 {
		return Transport{}, apperr.New(apperr.KindInvalid, opRTSP, "empty Transport header")
	}
	proto := strings.ToUpper(strings.TrimSpace(parts[0]))

	var t Transport
	switch proto {
	case "RTP/AVP", "RTP/AVP/UDP":
		t.Interleaved = false
	case "RTP/AVP/TCP":
		t.Interleaved = true
	default:
		return Transport{}, apperr.New(apperr.KindNotSupported, opRTSP, "unsupported transport protocol")
	}

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case strings.HasPrefix(p, "client_port="):
			lo, hi, err := parsePortRange(strings.TrimPrefix(p, "client_port="))
			if err != nil {
				return Transport{}, err
			}
			t.ClientPortLo, t.ClientPortHi = lo, hi
		case strings.HasPrefix(p, "interleaved="):
			lo, hi, err := parsePortRange(strings.TrimPrefix(p, "interleaved="))
			if err != nil {
				return Transport{}, err
			}
			t.ChannelLo, t.ChannelHi = lo, hi
		}
	}
	return t, nil
}

func parsePortRange(s string) (lo, hi int, err error) {
	parts := strings.SplitN(s, "-", 2)
	lo, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, apperr.New(apperr.KindInvalid, opRTSP, "malformed port range")
	}
	if len(parts) == 2 {
		hi, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, apperr.New(apperr.KindInvalid, opRTSP, "malformed port range")
		}
	} else {
		hi = lo
	}
	return lo, hi, nil
}

// AllocateServerPorts assigns an even/odd RTP/RTCP server port pair from
// a pool starting at base, keyed by how many pairs have already been
// handed out — a minimal deterministic allocator; a production deployment
// would track releases to reuse freed pairs; this daemon's session count
// is small enough that this is not a bottleneck.
func AllocateServerPorts(base int, ordinal int) (lo, hi int) {
	lo = base + ordinal*2
	hi = lo + 1
	return lo, hi
}

// AllocateChannels assigns an even/odd interleaved channel pair for
// session ordinal on the RTSP TCP connection.
func AllocateChannels(ordinal int) (lo, hi int) {
	lo = ordinal * 2
	hi = lo + 1
	return lo, hi
}
