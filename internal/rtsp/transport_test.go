package rtsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTransportHeaderUDPWithClientPort(t *testing.T) {
	tr, err := ParseTransportHeader("RTP/AVP;unicast;client_port=4000-4001")
	require.NoError(t, err)
	require.False(t, tr.Interleaved)
	require.Equal(t, 4000, tr.ClientPortLo)
	require.Equal(t, 4001, tr.ClientPortHi)
}

func TestParseTransportHeaderTCPInterleaved(t *testing.T) {
	tr, err := ParseTransportHeader("RTP/AVP/TCP;unicast;interleaved=0-1")
	require.NoError(t, err)
	require.True(t, tr.Interleaved)
	require.Equal(t, 0, tr.ChannelLo)
	require.Equal(t, 1, tr.ChannelHi)
}

func TestParseTransportHeaderRejectsUnsupportedProtocol(t *testing.T) {
	_, err := ParseTransportHeader("RTSPS/AVP")
	require.Error(t, err)
}

func TestAllocateServerPortsAreDistinctPerOrdinal(t *testing.T) {
	lo0, hi0 := AllocateServerPorts(30000, 0)
	lo1, hi1 := AllocateServerPorts(30000, 1)
	require.Equal(t, 30000, lo0)
	require.Equal(t, 30001, hi0)
	require.Equal(t, 30002, lo1)
	require.Equal(t, 30003, hi1)
}

func TestAllocateChannelsAreEvenOddPairs(t *testing.T) {
	lo, hi := AllocateChannels(3)
	require.Equal(t, 6, lo)
	require.Equal(t, 7, hi)
}
