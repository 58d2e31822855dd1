package soap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onvifcam/onvifd/internal/apperr"
)

const sampleEnvelope = `<?xml version="1.0"?>
<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope">
  <env:Header>
    <Action>http://www.onvif.org/ver10/device/wsdl/GetDeviceInformation</Action>
    <Security>
      <UsernameToken>
        <Username>admin</Username>
        <Password Type="PasswordDigest">abc123==</Password>
        <Nonce>bm9uY2U=</Nonce>
        <Created>2026-01-01T00:00:00Z</Created>
      </UsernameToken>
    </Security>
  </env:Header>
  <env:Body>
    <GetDeviceInformation xmlns="http://www.onvif.org/ver10/device/wsdl"/>
  </env:Body>
</env:Envelope>`

func TestParseEnvelopeExtractsActionAndBodyElement(t *testing.T) {
	env, err := ParseEnvelope([]byte(sampleEnvelope))
	require.NoError(t, err)
	require.Equal(t, "http://www.onvif.org/ver10/device/wsdl/GetDeviceInformation", env.Header.Action)
	require.Equal(t, "GetDeviceInformation", env.BodyElementName())
	require.True(t, env.HasUsernameToken())
	require.Equal(t, "admin", env.Header.Security.UsernameToken.Username)
	require.Equal(t, "PasswordDigest", env.Header.Security.UsernameToken.Password.Type)
}

func TestParseEnvelopeRejectsMalformedXML(t *testing.T) {
	_, err := ParseEnvelope([]byte("<not-xml"))
	require.Error(t, err)
}

func TestActionFromHeaderOrPathPrefersHeader(t *testing.T) {
	require.Equal(t, "GetDeviceInformation", ActionFromHeaderOrPath("GetDeviceInformation", "/onvif/device_service"))
}

func TestActionFromHeaderOrPathFallsBackToPath(t *testing.T) {
	require.Equal(t, "device_service", ActionFromHeaderOrPath("", "/onvif/device_service"))
}

func TestDispatcherRegisterAndDispatch(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register("Device", "GetDeviceInformation", func(req []byte) ([]byte, error) {
		return []byte("<GetDeviceInformationResponse/>"), nil
	}))
	out, err := d.Dispatch("Device", "GetDeviceInformation", nil)
	require.NoError(t, err)
	require.Contains(t, string(out), "GetDeviceInformationResponse")
}

func TestDispatcherRejectsDuplicateRegistration(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register("Device", "GetDeviceInformation", func([]byte) ([]byte, error) { return nil, nil }))
	err := d.Register("Device", "GetDeviceInformation", func([]byte) ([]byte, error) { return nil, nil })
	require.Error(t, err)
}

func TestDispatchMissReturnsNotSupported(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Dispatch("Device", "Nope", nil)
	require.Error(t, err)
	require.Equal(t, apperr.KindNotSupported, apperr.KindOf(err))
}

func TestFaultForMapsEachKind(t *testing.T) {
	cases := []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.KindInvalid, 400},
		{apperr.KindNotFound, 400},
		{apperr.KindNotSupported, 400},
		{apperr.KindAuth, 401},
		{apperr.KindResource, 503},
		{apperr.KindInternal, 500},
	}
	for _, c := range cases {
		f := FaultFor(apperr.New(c.kind, "op", "msg"))
		require.Equal(t, c.status, f.HTTPStatus)
	}
}
