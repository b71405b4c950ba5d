package telnet

import "fmt"

// ProtocolError is a fatal, connection-terminating framing or negotiation
// violation: malformed subnegotiation shape, an IAC SE with no open
// subnegotiation, data received by a handler that does not own its VMPort,
// or a vMotion handoff whose preconditions failed.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "telnet: protocol error: " + e.Msg }

// NewProtocolError builds a ProtocolError with a formatted message.
func NewProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// ProtocolWarning is a non-fatal anomaly: an RFC 1143 error transition
// (DONT answered by WILL, etc.), an unknown-option negotiation, or an
// unexpected subnegotiation on an option with no handler. Callers log it
// and continue.
type ProtocolWarning struct {
	Msg string
}

func (e *ProtocolWarning) Error() string { return "telnet: protocol warning: " + e.Msg }

// NewProtocolWarning builds a ProtocolWarning with a formatted message.
func NewProtocolWarning(format string, args ...interface{}) *ProtocolWarning {
	return &ProtocolWarning{Msg: fmt.Sprintf(format, args...)}
}

// ConfigError marks a fatal misconfiguration discovered during a
// connection's lifetime, such as AUTHENTICATION requiring a TLS context
// that was never injected and has no generator configured.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "telnet: config error: " + e.Msg }

// NewConfigError builds a ConfigError with a formatted message.
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}
