package option

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry is a Connection's per-connection mapping from option code to
// Handler (§4.4). BINARY and SGA are pre-registered by the Connection at
// construction; any other option code is lazily filled with an Unknown
// handler the first time a negotiation for it arrives.
type Registry struct {
	mu       sync.Mutex
	handlers map[byte]Handler
	sender   Sender
	log      zerolog.Logger
}

// NewRegistry builds an empty Registry bound to sender.
func NewRegistry(sender Sender, log zerolog.Logger) *Registry {
	return &Registry{
		handlers: make(map[byte]Handler),
		sender:   sender,
		log:      log,
	}
}

// Register installs handler under its own Code(), attaching it to the
// Registry's Sender immediately (flushing any negotiation it queued before
// registration).
func (r *Registry) Register(handler Handler) error {
	r.mu.Lock()
	r.handlers[handler.Code()] = handler
	r.mu.Unlock()

	if attacher, ok := handler.(interface{ Attach(Sender) error }); ok {
		return attacher.Attach(r.sender)
	}
	return nil
}

// Lookup returns the handler for code, inserting a default Unknown handler
// (which rejects everything) if none is registered yet.
func (r *Registry) Lookup(code byte) Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handlers[code]; ok {
		return h
	}
	h := NewUnknown(code)
	_ = h.Attach(r.sender)
	r.handlers[code] = h
	r.log.Debug().Uint8("option", code).Msg("unknown option negotiated, installed reject-all handler")
	return h
}

// Get returns the handler for code without installing a default, and
// whether one was found.
func (r *Registry) Get(code byte) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[code]
	return h, ok
}
