package httpserver

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// ServerHeader is the literal Server: header value this engine sends.
const ServerHeader = "onvifd"

// ResponseWriter accumulates a status line, headers, and body into a single
// byte buffer ready to be written to a connection's socket in one go,
// matching spec.md §4.5 "status line, headers, blank line, body".
type ResponseWriter struct {
	status      int
	headers     map[string]string
	headerOrder []string
	body        bytes.Buffer
}

// NewResponseWriter starts a response with the given status code.
func NewResponseWriter(status int) *ResponseWriter {
	return &ResponseWriter{status: status, headers: map[string]string{}}
}

// Status returns the response's HTTP status code.
func (w *ResponseWriter) Status() int { return w.status }

// SetHeader sets (overwriting) a response header.
func (w *ResponseWriter) SetHeader(name, value string) {
	lname := name
	if _, exists := w.headers[lname]; !exists {
		w.headerOrder = append(w.headerOrder, lname)
	}
	w.headers[lname] = value
}

// Write appends to the response body.
func (w *ResponseWriter) Write(p []byte) (int, error) {
	return w.body.Write(p)
}

// Bytes renders the full wire response: status line, Server/Date headers,
// Content-Length (or Transfer-Encoding: chunked if explicitly set),
// caller headers, blank line, body.
func (w *ResponseWriter) Bytes(now time.Time) []byte {
	var out bytes.Buffer
	fmt.Fprintf(&out, "HTTP/1.1 %d %s\r\n", w.status, StatusText(w.status))
	fmt.Fprintf(&out, "Server: %s\r\n", ServerHeader)
	fmt.Fprintf(&out, "Date: %s\r\n", now.UTC().Format(time.RFC1123))

	if _, hasCL := w.headers["Content-Length"]; !hasCL {
		if _, chunked := w.headers["Transfer-Encoding"]; !chunked {
			fmt.Fprintf(&out, "Content-Length: %d\r\n", w.body.Len())
		}
	}
	for _, name := range w.headerOrder {
		fmt.Fprintf(&out, "%s: %s\r\n", name, w.headers[name])
	}
	out.WriteString("\r\n")
	out.Write(w.body.Bytes())
	return out.Bytes()
}

// SOAPFault writes a minimal ONVIF-style SOAP fault envelope as the body
// and sets Content-Type accordingly, per spec.md §4.5/§4.7. The body never
// contains a stack trace, file path, or internal identifier beyond
// correlationID.
func (w *ResponseWriter) SOAPFault(code, subcode, reason, correlationID string) {
	w.SetHeader("Content-Type", "application/soap+xml; charset=utf-8")
	fmt.Fprintf(&w.body, soapFaultTemplate, code, subcode, reason, correlationID)
}

const soapFaultTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope">
  <env:Body>
    <env:Fault>
      <env:Code>
        <env:Value>%s</env:Value>
        <env:Subcode><env:Value>%s</env:Value></env:Subcode>
      </env:Code>
      <env:Reason><env:Text xml:lang="en">%s</env:Text></env:Reason>
      <env:Detail>
        <CorrelationID>%s</CorrelationID>
      </env:Detail>
    </env:Fault>
  </env:Body>
</env:Envelope>
`

// PlainText writes a short plain-text reason as the body, for non-SOAP
// error paths (e.g. a 405 before any SOAP parsing occurred).
func (w *ResponseWriter) PlainText(reason string) {
	w.SetHeader("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(&w.body, reason)
}
