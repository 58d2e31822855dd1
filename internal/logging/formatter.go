package logging

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	componentKey   = "component"
	correlationKey = "correlation_id"
	noticeKey      = "_notice"

	maxLineBytes = 1024
)

// sensitiveFieldNames are redacted by name, case-insensitively, wherever
// they appear as a structured field.
var sensitiveFieldNames = map[string]bool{
	"authorization": true,
	"password":      true,
	"secret":        true,
	"token":         true,
	"apikey":        true,
}

// sensitiveValuePattern catches sensitive key=value pairs embedded inside a
// free-form message string (e.g. a dumped header line), independent of
// whether the field arrived as a structured field.
var sensitiveValuePattern = regexp.MustCompile(`(?i)"?(?:password|secret|token|apikey)"?\s*[:=]\s*"?[^\s,"]+`)

// authorizationHeaderPattern redacts the entire value of a logged
// Authorization header, since Digest challenges embed spaces and commas.
var authorizationHeaderPattern = regexp.MustCompile(`(?i)(Authorization\s*:\s*).*`)

// wssePasswordPattern redacts the inner text of a logged <wsse:Password>
// element from a dumped SOAP body.
var wssePasswordPattern = regexp.MustCompile(`(?is)(<wsse:Password[^>]*>).*?(</wsse:Password>)`)

// Formatter renders log entries as:
//
//	YYYY-MM-DD HH:MM:SS,mmm LEVEL [HOSTNAME] component.path.identifier message
//
// Lines are capped at 1024 bytes, control characters below 0x20 (except
// none — tabs are also scrubbed since the format is single-line) and 0x7F
// are replaced with a space, and sensitive fields/substrings are redacted.
type Formatter struct {
	JSON bool
}

// NewFormatter returns the line formatter for the given textual format
// name ("json" selects a redacted single-line JSON rendering, anything
// else the plain wire format).
func NewFormatter(format string) logrus.Formatter {
	return &Formatter{JSON: strings.EqualFold(format, "json")}
}

func (f *Formatter) Format(e *logrus.Entry) ([]byte, error) {
	level := levelName(e)
	component := componentPath(e)
	msg := sanitizeMessage(redactMessage(e.Message))

	var buf bytes.Buffer
	if f.JSON {
		fmt.Fprintf(&buf, `{"time":"%s","level":"%s","host":%q,"component":%q,"message":%q`,
			e.Time.Format("2006-01-02T15:04:05.000Z07:00"), level, hostname, component, msg)
		for _, k := range sortedKeys(e.Data) {
			if k == componentKey || k == correlationKey || k == noticeKey {
				continue
			}
			fmt.Fprintf(&buf, `,%q:%q`, k, redactField(k, e.Data[k]))
		}
		buf.WriteString("}\n")
	} else {
		fmt.Fprintf(&buf, "%s %s [%s] %s %s",
			e.Time.Format("2006-01-02 15:04:05,000"), level, hostname, component, msg)
		for _, k := range sortedKeys(e.Data) {
			if k == componentKey || k == correlationKey || k == noticeKey {
				continue
			}
			fmt.Fprintf(&buf, " %s=%v", k, redactField(k, e.Data[k]))
		}
		buf.WriteByte('\n')
	}

	line := buf.Bytes()
	if len(line) > maxLineBytes {
		line = append(line[:maxLineBytes-1], '\n')
	}
	return line, nil
}

func levelName(e *logrus.Entry) string {
	if _, ok := e.Data[noticeKey]; ok {
		return "NOTICE"
	}
	return strings.ToUpper(e.Level.String())
}

func componentPath(e *logrus.Entry) string {
	comp, _ := e.Data[componentKey].(string)
	if comp == "" {
		comp = "daemon"
	}
	if id, ok := e.Data[correlationKey].(string); ok && id != "" {
		return comp + "." + id
	}
	return comp
}

func redactField(key string, value interface{}) interface{} {
	if sensitiveFieldNames[strings.ToLower(key)] {
		return "<REDACTED>"
	}
	if s, ok := value.(string); ok {
		return sanitizeMessage(s)
	}
	return value
}

func redactMessage(msg string) string {
	msg = authorizationHeaderPattern.ReplaceAllString(msg, "${1}<REDACTED>")
	msg = sensitiveValuePattern.ReplaceAllString(msg, "<REDACTED>")
	msg = wssePasswordPattern.ReplaceAllString(msg, "${1}***REDACTED***${2}")
	return msg
}

// sanitizeMessage replaces control characters below 0x20 and 0x7F with a
// space, and collapses embedded newlines/carriage returns.
func sanitizeMessage(msg string) string {
	var b strings.Builder
	b.Grow(len(msg))
	for _, r := range msg {
		if r == '\n' || r == '\r' || r < 0x20 || r == 0x7f {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sortedKeys(f logrus.Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
