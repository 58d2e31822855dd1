// Package soap is the SOAP Dispatcher of spec.md §4.7: envelope parsing via
// encoding/xml, an additive (service,operation) handler registry, and the
// ONVIF error-kind to HTTP-status/fault-code mapping table. XML struct
// binding follows govr/onvif-style tag conventions observed in the
// pack's ONVIF-adjacent example sources — see DESIGN.md.
package soap

import (
	"encoding/xml"
	"strings"

	"github.com/onvifcam/onvifd/internal/apperr"
)

const opSOAP = "soap"

// Envelope is the minimal SOAP 1.2 envelope shape this dispatcher needs:
// an optional WS-Addressing Action plus WS-Security header, and an
// untouched raw body for operation-specific unmarshalling downstream.
type Envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Header  Header   `xml:"Header"`
	Body    Body     `xml:"Body"`
}

type Header struct {
	Action   string          `xml:"Action"`
	Security SecurityHeader  `xml:"Security"`
}

type SecurityHeader struct {
	UsernameToken UsernameTokenXML `xml:"UsernameToken"`
}

type UsernameTokenXML struct {
	Username string `xml:"Username"`
	Password struct {
		Value string `xml:",chardata"`
		Type  string `xml:"Type,attr"`
	} `xml:"Password"`
	Nonce   string `xml:"Nonce"`
	Created string `xml:"Created"`
}

// Body carries the raw inner XML of the single top-level element, which
// callers re-unmarshal into an operation-specific request type once the
// (service,operation) pair has been resolved.
type Body struct {
	XMLName  xml.Name
	InnerXML []byte `xml:",innerxml"`
	Content  struct {
		XMLName xml.Name
	} `xml:",any"`
}

// ParseEnvelope decodes raw into an Envelope. The top-level body element's
// local name is the operation name; its namespace-derived service name is
// resolved by the caller from the request path or SOAPAction header,
// per spec.md §4.7 step 1.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, opSOAP, "malformed SOAP envelope", err)
	}
	return &env, nil
}

// BodyElementName returns the local name of the envelope's top-level body
// element (e.g. "GetDeviceInformation").
func (e *Envelope) BodyElementName() string {
	// Body.XMLName is populated by encoding/xml from <Body>; the actual
	// operation element is the first child, captured via Body.Content.
	return e.Body.Content.XMLName.Local
}

// ActionFromHeaderOrPath resolves the WS-Addressing Action, falling back
// to a URL path's final segment when the header is absent (some ONVIF
// clients omit the header and rely on the request path instead).
func ActionFromHeaderOrPath(action, path string) string {
	if action != "" {
		return action
	}
	segs := strings.Split(strings.TrimRight(path, "/"), "/")
	return segs[len(segs)-1]
}

// HasUsernameToken reports whether the envelope's header carried a
// wsse:UsernameToken.
func (e *Envelope) HasUsernameToken() bool {
	return e.Header.Security.UsernameToken.Username != ""
}
