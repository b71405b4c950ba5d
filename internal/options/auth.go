// Package options implements the concrete Telnet options from §4.5–§4.10:
// BINARY and SGA live with Connection (internal/conn) since they are
// pre-registered there; AUTHENTICATION, COM-PORT, VMware-Extension and
// vSPC-Admin live here.
package options

import (
	"context"
	"crypto/tls"

	"github.com/rs/zerolog"

	"github.com/vspc/vspc/internal/telnet"
	"github.com/vspc/vspc/internal/telnet/option"
)

// AUTHENTICATION option code and subcommands (§4.6).
const (
	OptionAuthentication byte = 37

	authCmdIS    byte = 0
	authCmdSend  byte = 1
	authCmdReply byte = 2

	authTypeSSL byte = 7

	authSSLStart    byte = 1
	authSSLAccepted byte = 2
)

// AuthRole fixes which half of the AUTHENTICATION handshake a handler
// plays, decided at construction (§4.6).
type AuthRole int

const (
	AuthServer AuthRole = iota
	AuthClient
)

// TLSStarter is the subset of Connection needed to trigger the TLS upgrade
// once AUTHENTICATION completes.
type TLSStarter interface {
	StartTLS(ctx context.Context, cfg *tls.Config, server bool) error
}

// TLSProvider supplies the *tls.Config used for the upgrade. Production
// wiring injects one backed by real certificates; UnimplementedTLSProvider
// below is the fallback that fails with ConfigError when nothing was
// injected and no generator is configured, per §4.6.
type TLSProvider interface {
	TLSConfig() (*tls.Config, error)
}

// StaticTLSProvider returns a pre-built *tls.Config.
type StaticTLSProvider struct{ Config *tls.Config }

func (p StaticTLSProvider) TLSConfig() (*tls.Config, error) { return p.Config, nil }

// UnimplementedTLSProvider is the default: calling it fails with
// ConfigError, matching §4.6's "calling generateSslContext() when
// unimplemented fails with ConfigError."
type UnimplementedTLSProvider struct{}

func (UnimplementedTLSProvider) TLSConfig() (*tls.Config, error) {
	return nil, telnet.NewConfigError("generateSslContext: no TLS context injected or generator configured")
}

// Authentication implements option 37 (§4.6).
type Authentication struct {
	option.BaseOption

	role    AuthRole
	starter TLSStarter
	tls     TLSProvider
	log     zerolog.Logger
}

// NewAuthenticationServer builds the server-side AUTHENTICATION handler.
func NewAuthenticationServer(starter TLSStarter, tlsProvider TLSProvider, log zerolog.Logger) *Authentication {
	a := &Authentication{role: AuthServer, starter: starter, tls: tlsProvider, log: log}
	a.Init(a, OptionAuthentication, "AUTHENTICATION")
	return a
}

// NewAuthenticationClient builds the client-side AUTHENTICATION handler.
func NewAuthenticationClient(starter TLSStarter, tlsProvider TLSProvider, log zerolog.Logger) *Authentication {
	a := &Authentication{role: AuthClient, starter: starter, tls: tlsProvider, log: log}
	a.Init(a, OptionAuthentication, "AUTHENTICATION")
	return a
}

// ShouldAccept accepts only when the peer's requesting side matches this
// handler's role: server accepts them=true, client accepts them=false.
func (a *Authentication) ShouldAccept(them bool) bool {
	if a.role == AuthServer {
		return them
	}
	return !them
}

// OnStateChange: the server advertises SSL as soon as the option enables.
func (a *Authentication) OnStateChange(them bool, enabled bool) {
	if a.role != AuthServer || !them || !enabled {
		return
	}
	if err := a.sendSubneg(authCmdSend, authTypeSSL, 0); err != nil {
		a.log.Warn().Err(err).Msg("AUTHENTICATION: failed to send SEND")
	}
}

func (a *Authentication) sendSubneg(cmd byte, rest ...byte) error {
	payload := append([]byte{cmd}, rest...)
	return a.Sender().SendOptionSubnegotiation(OptionAuthentication, payload)
}

// Subnegotiate dispatches IS/SEND/REPLY per §4.6.
func (a *Authentication) Subnegotiate(payload []byte) error {
	if len(payload) == 0 {
		return telnet.NewProtocolError("AUTHENTICATION: empty subnegotiation")
	}
	switch {
	case a.role == AuthServer && payload[0] == authCmdIS:
		return a.handleIS(payload[1:])
	case a.role == AuthClient && payload[0] == authCmdSend:
		return a.handleSend(payload[1:])
	case a.role == AuthClient && payload[0] == authCmdReply:
		return a.handleReply(payload[1:])
	default:
		return telnet.NewProtocolWarning("AUTHENTICATION: unexpected subcommand %d for role", payload[0])
	}
}

func (a *Authentication) handleIS(rest []byte) error {
	if len(rest) < 3 {
		return telnet.NewProtocolError("AUTHENTICATION: truncated IS payload")
	}
	typ, modifiers, start := rest[0], rest[1], rest[2]
	if typ != authTypeSSL || start != authSSLStart {
		return telnet.NewProtocolWarning("AUTHENTICATION: unsupported IS type/start %d/%d", typ, start)
	}
	if err := a.sendSubneg(authCmdReply, typ, modifiers, authSSLAccepted); err != nil {
		return err
	}
	cfg, err := a.tls.TLSConfig()
	if err != nil {
		return err
	}
	return a.starter.StartTLS(context.Background(), cfg, true)
}

func (a *Authentication) handleSend(rest []byte) error {
	if len(rest)%2 != 0 {
		return telnet.NewProtocolError("AUTHENTICATION: malformed SEND type-pair list")
	}
	exactMatch := false
	anySSL := false
	var anySSLModifiers byte
	for i := 0; i+1 < len(rest); i += 2 {
		typ, mod := rest[i], rest[i+1]
		if typ == authTypeSSL {
			if mod == 0 {
				exactMatch = true
			} else if !anySSL {
				anySSL = true
				anySSLModifiers = mod
			}
		}
	}
	switch {
	case exactMatch:
		return a.sendSubneg(authCmdIS, authTypeSSL, 0, authSSLStart)
	case anySSL:
		return a.sendSubneg(authCmdIS, authTypeSSL, anySSLModifiers, authSSLStart)
	default:
		return a.sendSubneg(authCmdIS, 0, 0)
	}
}

func (a *Authentication) handleReply(rest []byte) error {
	if len(rest) < 3 {
		return telnet.NewProtocolError("AUTHENTICATION: truncated REPLY payload")
	}
	typ, _, code := rest[0], rest[1], rest[2]
	if typ != authTypeSSL || code != authSSLAccepted {
		return telnet.NewProtocolWarning("AUTHENTICATION: REPLY not accepted (type=%d code=%d)", typ, code)
	}
	cfg, err := a.tls.TLSConfig()
	if err != nil {
		return err
	}
	return a.starter.StartTLS(context.Background(), cfg, false)
}
