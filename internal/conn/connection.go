// Package conn implements the Connection type from §4.4: it composes a
// telnet.Engine with an option.Registry, pre-registers BINARY and
// SUPPRESS-GO-AHEAD, and filters the engine's event stream down to the
// in-band bytes and control functions callers actually want.
package conn

import (
	"context"
	"crypto/tls"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vspc/vspc/internal/telnet"
	"github.com/vspc/vspc/internal/telnet/option"
)

// Connection owns a telnet.Engine and an option.Registry for one accepted
// (or dialed) Telnet stream. It is created on accept and torn down on EOF
// or a fatal decode/protocol error, per §4.4's lifecycle.
type Connection struct {
	ID       string
	engine   *telnet.Engine
	registry *option.Registry
	Log      zerolog.Logger
}

// New builds a Connection around transport, pre-registering BINARY and SGA
// as always-accepting options (§4.5). Additional options (AUTHENTICATION,
// COM-PORT, VMware-Extension, vSPC-Admin) are registered by the caller via
// Register once New returns, since their configuration differs between the
// VM-facing listener and the admin listener.
func New(transport telnet.Transport, log zerolog.Logger) *Connection {
	id := uuid.NewString()
	log = log.With().Str("conn_id", id).Logger()
	engine := telnet.NewEngine(transport, log)
	c := &Connection{
		ID:     id,
		engine: engine,
		Log:    log,
	}
	c.registry = option.NewRegistry(c, log)
	_ = c.registry.Register(newBinary())
	_ = c.registry.Register(newSGA())
	return c
}

// Register installs an additional option handler, honoring any negotiation
// byte it queued before attachment.
func (c *Connection) Register(h option.Handler) error {
	return c.registry.Register(h)
}

// Option returns the handler registered for code, if any.
func (c *Connection) Option(code byte) (option.Handler, bool) {
	return c.registry.Get(code)
}

// SendBytes forwards data to the protocol engine, doubling IAC bytes.
func (c *Connection) SendBytes(data []byte) error {
	return c.engine.SendData(data)
}

// SendOptionNegotiation satisfies option.Sender.
func (c *Connection) SendOptionNegotiation(code byte, action telnet.NegotiationAction) error {
	return c.engine.SendOptionNegotiation(code, action)
}

// SendOptionSubnegotiation satisfies option.Sender.
func (c *Connection) SendOptionSubnegotiation(code byte, payload []byte) error {
	return c.engine.SendOptionSubnegotiation(code, payload)
}

// StartTLS triggers the underlying transport's in-place TLS upgrade.
func (c *Connection) StartTLS(ctx context.Context, cfg *tls.Config, server bool) error {
	return c.engine.StartTLS(ctx, cfg, server)
}

// Next returns the next in-band event: a DataChunk or a ControlFunction.
// OptionNegotiation and OptionSubnegotiation events are consumed internally
// and dispatched to the relevant option.Handler (§4.4); negotiations for an
// option with no registered handler install the reject-all Unknown handler
// first. Subnegotiations with no handler are logged and dropped.
func (c *Connection) Next() (telnet.Event, error) {
	for {
		ev, err := c.engine.Next()
		if err != nil {
			return telnet.Event{}, err
		}

		switch ev.Kind {
		case telnet.EventData, telnet.EventControl:
			return ev, nil

		case telnet.EventNegotiation:
			h := c.registry.Lookup(ev.OptionCode)
			responder, ok := h.(option.Responder)
			if !ok {
				continue
			}
			if err := responder.Respond(ev.Action); err != nil {
				if isWarning(err) {
					c.Log.Warn().Err(err).Msg("protocol warning during negotiation")
					continue
				}
				return telnet.Event{}, err
			}

		case telnet.EventSubnegotiation:
			h, ok := c.registry.Get(ev.OptionCode)
			if !ok {
				c.Log.Debug().Uint8("option", ev.OptionCode).Msg("subnegotiation for unregistered option dropped")
				continue
			}
			if err := h.Subnegotiate(ev.Payload); err != nil {
				if isWarning(err) {
					c.Log.Warn().Err(err).Msg("protocol warning during subnegotiation")
					continue
				}
				return telnet.Event{}, err
			}
		}
	}
}

func isWarning(err error) bool {
	_, ok := err.(*telnet.ProtocolWarning)
	return ok
}
