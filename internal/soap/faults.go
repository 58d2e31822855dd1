package soap

import "github.com/onvifcam/onvifd/internal/apperr"

// Fault is the wire-level {status, code, subcode} mapped from a handler
// error's apperr.Kind, per spec.md §4.7 fault table.
type Fault struct {
	HTTPStatus int
	Code       string
	Subcode    string
}

// FaultFor maps err to the fault table entry. err is expected to be (or
// wrap) an *apperr.Error; unrecognised errors map to Internal/500.
func FaultFor(err error) Fault {
	switch apperr.KindOf(err) {
	case apperr.KindInvalid:
		return Fault{HTTPStatus: 400, Code: "env:Sender", Subcode: "ter:InvalidArgVal"}
	case apperr.KindNotFound:
		return Fault{HTTPStatus: 400, Code: "env:Sender", Subcode: "ter:NoSuchProfile"}
	case apperr.KindNotSupported:
		return Fault{HTTPStatus: 400, Code: "env:Sender", Subcode: "ter:ActionNotSupported"}
	case apperr.KindAuth:
		return Fault{HTTPStatus: 401, Code: "env:Sender", Subcode: "wsse:FailedAuthentication"}
	case apperr.KindResource:
		return Fault{HTTPStatus: 503, Code: "env:Receiver", Subcode: "ter:NotAvailable"}
	default:
		return Fault{HTTPStatus: 500, Code: "env:Receiver", Subcode: "ter:InternalError"}
	}
}
