package telnet

import (
	"context"
	"crypto/tls"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Transport is the bidirectional byte stream a protocol Engine drives. A
// plain *net.TCPConn satisfies it; TLSUpgrader additionally lets the engine
// swap the underlying connection for a *tls.Conn in place once
// AUTHENTICATION (§4.6) triggers a secure-transport upgrade.
type Transport interface {
	io.Reader
	io.Writer
}

// TLSUpgrader is implemented by transports that can upgrade themselves to
// TLS in place. Only the trigger point is specified by the core; the
// secure-transport mechanism itself is a collaborator (§1 scope).
type TLSUpgrader interface {
	Transport
	UpgradeServerTLS(ctx context.Context, cfg *tls.Config) error
	UpgradeClientTLS(ctx context.Context, cfg *tls.Config) error
}

// Engine wraps a bidirectional transport. It encodes outgoing data,
// negotiations and subnegotiations with IAC escaping, drives the Decoder on
// the receive side, and exposes a startTLS trigger. Writes are unbuffered
// from the engine's perspective and are issued in call order (FIFO).
type Engine struct {
	mu        sync.Mutex // serializes writes
	transport Transport
	decoder   *Decoder
	log       zerolog.Logger
}

// NewEngine builds an Engine around transport, decoding events from the
// same transport.
func NewEngine(transport Transport, log zerolog.Logger) *Engine {
	return &Engine{
		transport: transport,
		decoder:   NewDecoder(transport),
		log:       log,
	}
}

// SendData writes bytes with every 0xFF doubled.
func (e *Engine) SendData(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writeEscaped(data)
}

// SendOptionNegotiation writes IAC action code.
func (e *Engine) SendOptionNegotiation(code byte, action NegotiationAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.transport.Write([]byte{IAC, byte(action), code})
	return err
}

// SendOptionSubnegotiation writes IAC SB code payload' IAC SE, where
// payload' has every 0xFF byte doubled.
func (e *Engine) SendOptionSubnegotiation(code byte, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.transport.Write([]byte{IAC, SB, code}); err != nil {
		return err
	}
	if err := e.writeEscaped(payload); err != nil {
		return err
	}
	_, err := e.transport.Write([]byte{IAC, SE})
	return err
}

func (e *Engine) writeEscaped(data []byte) error {
	start := 0
	for i, b := range data {
		if b == IAC {
			if _, err := e.transport.Write(data[start : i+1]); err != nil {
				return err
			}
			if _, err := e.transport.Write([]byte{IAC}); err != nil {
				return err
			}
			start = i + 1
		}
	}
	if start < len(data) {
		if _, err := e.transport.Write(data[start:]); err != nil {
			return err
		}
	}
	return nil
}

// StartTLS requests the underlying transport upgrade in place. After a
// successful upgrade, subsequent reads and writes are ciphertext. server
// selects which side of the handshake to perform.
func (e *Engine) StartTLS(ctx context.Context, cfg *tls.Config, server bool) error {
	upgrader, ok := e.transport.(TLSUpgrader)
	if !ok {
		return NewConfigError("transport does not support TLS upgrade")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if server {
		err = upgrader.UpgradeServerTLS(ctx, cfg)
	} else {
		err = upgrader.UpgradeClientTLS(ctx, cfg)
	}
	if err != nil {
		return err
	}
	// The decoder's bufio.Reader wraps e.transport by value at
	// construction; since Transport.Read is always redirected through the
	// same interface value after in-place upgrade, no decoder rebuild is
	// necessary as long as UpgradeServerTLS/UpgradeClientTLS mutate the
	// transport's internal net.Conn rather than replacing the Transport
	// value itself.
	return nil
}

// Next decodes and returns the next event from the transport.
func (e *Engine) Next() (Event, error) {
	return e.decoder.Next()
}
