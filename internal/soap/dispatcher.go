package soap

import (
	"fmt"
	"sync"

	"github.com/onvifcam/onvifd/internal/apperr"
)

// HandlerFunc handles one parsed operation. req is the raw inner XML of
// the operation element; the handler unmarshals it into its own request
// type and writes results via the returned response bytes (already the
// operation-specific SOAP body content, not the full envelope).
type HandlerFunc func(req []byte) ([]byte, error)

type key struct {
	service   string
	operation string
}

// Dispatcher is the (service,operation) -> HandlerFunc registry of
// spec.md §4.7. Registration is additive; re-registering an existing pair
// is an error.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[key]HandlerFunc
}

// NewDispatcher builds an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[key]HandlerFunc{}}
}

// Register adds a handler for (service, operation). Returns an error if a
// handler is already registered for that pair.
func (d *Dispatcher) Register(service, operation string, h HandlerFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := key{service, operation}
	if _, exists := d.handlers[k]; exists {
		return apperr.New(apperr.KindInvalid, opSOAP, fmt.Sprintf("handler already registered for %s/%s", service, operation))
	}
	d.handlers[k] = h
	return nil
}

// Dispatch looks up and invokes the handler for (service, operation). A
// miss returns apperr.KindNotSupported, mapped by FaultFor to
// ter:ActionNotSupported/400 per the fault table.
func (d *Dispatcher) Dispatch(service, operation string, req []byte) ([]byte, error) {
	d.mu.RLock()
	h, ok := d.handlers[key{service, operation}]
	d.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotSupported, opSOAP, fmt.Sprintf("no handler for %s/%s", service, operation))
	}
	return h(req)
}
