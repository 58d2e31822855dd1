package rtsp

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/onvifcam/onvifd/internal/apperr"
)

// Request is one parsed RTSP/1.0 request line plus headers, per RFC 2326 §4
// — a deliberately smaller cousin of httpserver.Request since RTSP's
// control channel carries no chunked bodies and no keep-alive negotiation
// beyond the session itself.
type Request struct {
	Method  string
	URI     string
	Version string
	CSeq    string
	Headers map[string]string
}

// Header returns a header value, or "" if absent. Lookups are
// case-insensitive per RFC 2326 §4.2.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// ReadRequest reads one RTSP request from br: a request line, headers
// terminated by a blank line. RTSP control messages never carry a body in
// this daemon's supported method set (DESCRIBE/SETUP/PLAY/PAUSE/TEARDOWN).
func ReadRequest(br *bufio.Reader) (*Request, error) {
	line, err := readRTSPLine(br)
	if err != nil {
		return nil, err
	}
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return nil, apperr.New(apperr.KindParse, opRTSP, "malformed RTSP request line")
	}

	req := &Request{Method: parts[0], URI: parts[1], Version: parts[2], Headers: map[string]string{}}

	for {
		hline, err := readRTSPLine(br)
		if err != nil {
			return nil, err
		}
		if hline == "" {
			break
		}
		idx := strings.IndexByte(hline, ':')
		if idx < 0 {
			return nil, apperr.New(apperr.KindParse, opRTSP, "malformed RTSP header")
		}
		name := strings.TrimSpace(hline[:idx])
		value := strings.TrimSpace(hline[idx+1:])
		req.Headers[strings.ToLower(name)] = value
	}
	req.CSeq = req.Header("CSeq")
	return req, nil
}

func readRTSPLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, opRTSP, "failed to read RTSP line", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteResponse renders an RTSP/1.0 response with the given status, CSeq
// echoed from the request, and extra headers, per RFC 2326 §7.
func WriteResponse(w *strings.Builder, status int, reason, cseq string, headers map[string]string, body string) {
	w.WriteString("RTSP/1.0 ")
	w.WriteString(strconv.Itoa(status))
	w.WriteString(" ")
	w.WriteString(reason)
	w.WriteString("\r\n")
	if cseq != "" {
		w.WriteString("CSeq: " + cseq + "\r\n")
	}
	for k, v := range headers {
		w.WriteString(k + ": " + v + "\r\n")
	}
	if body != "" {
		w.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	}
	w.WriteString("\r\n")
	w.WriteString(body)
}

// StatusText maps the RTSP status codes this engine emits to their reason
// phrase, per RFC 2326 §7.1 (a subset of HTTP's registry plus
// RTSP-specific codes like 454/455/459/461).
func StatusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 404:
		return "Not Found"
	case 454:
		return "Session Not Found"
	case 455:
		return "Method Not Valid in This State"
	case 459:
		return "Aggregate Operation Not Allowed"
	case 461:
		return "Unsupported Transport"
	case 500:
		return "Internal Server Error"
	default:
		return "Error"
	}
}
