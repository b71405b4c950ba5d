package option

import (
	"sync"

	"github.com/vspc/vspc/internal/telnet"
)

// Handler is the per-option dispatch surface a Connection's Registry holds
// one of per option code. Concrete options embed BaseOption for the RFC
// 1143 bookkeeping and override ShouldAccept/OnStateChange/Subnegotiate as
// needed; BaseOption's own defaults (reject everything, ignore
// subnegotiation) make an option that never overrides them behave like the
// "Unknown" handler from §4.4.
type Handler interface {
	Code() byte
	Name() string
	ShouldAccept(them bool) bool
	OnStateChange(them bool, enabled bool)
	Subnegotiate(payload []byte) error
}

// Responder exposes BaseOption's Respond method through an interface so
// callers holding only a Handler can still drive the RFC 1143 remote-
// response transition; every concrete option gets it for free by embedding
// BaseOption.
type Responder interface {
	Respond(action telnet.NegotiationAction) error
}

// Requester exposes BaseOption's Request method the same way, for callers
// (the VMware-extension and admin options) that need to actively request a
// side be enabled or disabled rather than only reacting to the peer.
type Requester interface {
	Request(side Side, enable bool) error
}

// Sender is the subset of the protocol engine an option needs to emit
// negotiations and subnegotiations. Connection satisfies it; BaseOption
// only ever sees it through this narrow interface, which is what makes the
// handler-to-connection link a weak back-reference rather than ownership.
type Sender interface {
	SendOptionNegotiation(code byte, action telnet.NegotiationAction) error
	SendOptionSubnegotiation(code byte, payload []byte) error
}

type pendingEmit struct {
	action telnet.NegotiationAction
}

// BaseOption implements the RFC 1143 Q-state machine (§4.3) and the
// attach/queue lifecycle (§4.3's "queue if not yet attached" rule, §4.4's
// "handler may be unset until attached"). Concrete options embed it and
// call Init once, from their constructor, with themselves as self so
// BaseOption can invoke the overridden ShouldAccept/OnStateChange/
// Subnegotiate through the Handler interface rather than its own defaults.
type BaseOption struct {
	mu   sync.Mutex
	self Handler
	code byte
	name string

	us, them QState

	sender  Sender
	pending []struct {
		code   byte
		action telnet.NegotiationAction
	}
}

// Init must be called by concrete constructors before the option is used.
func (b *BaseOption) Init(self Handler, code byte, name string) {
	b.self = self
	b.code = code
	b.name = name
}

func (b *BaseOption) Code() byte   { return b.code }
func (b *BaseOption) Name() string { return b.name }

// ShouldAccept is the default: reject everything. Concrete options override
// it. This matches §9's open question (i): the original default is false,
// and BINARY/SGA override it unconditionally rather than relying on this
// default, since they are pre-registered and always accepted.
func (b *BaseOption) ShouldAccept(them bool) bool { return false }

// OnStateChange default is a no-op; most options only care about specific
// transitions and override this.
func (b *BaseOption) OnStateChange(them bool, enabled bool) {}

// Subnegotiate default drops the payload; options with no subnegotiation
// (BINARY, SGA) never override it.
func (b *BaseOption) Subnegotiate(payload []byte) error { return nil }

// Attach binds the option to its Connection's Sender and flushes any
// negotiation bytes queued before attachment.
func (b *BaseOption) Attach(sender Sender) error {
	b.mu.Lock()
	b.sender = sender
	queued := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, p := range queued {
		if err := sender.SendOptionNegotiation(p.code, p.action); err != nil {
			return err
		}
	}
	return nil
}

// Attached reports whether the option has a live Sender.
func (b *BaseOption) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sender != nil
}

// Sender returns the currently attached Sender, or nil before attachment.
// Concrete options use it to emit subnegotiations from OnStateChange or
// Subnegotiate, which (unlike Request) BaseOption has no built-in queuing
// for: both callbacks only ever fire after the option is attached, since
// attachment happens at registration time, before the RFC 1143 handshake
// that would enable the option can even begin.
func (b *BaseOption) Sender() Sender {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sender
}

func (b *BaseOption) emit(action telnet.NegotiationAction) error {
	b.mu.Lock()
	sender := b.sender
	code := b.code
	if sender == nil {
		b.pending = append(b.pending, struct {
			code   byte
			action telnet.NegotiationAction
		}{code, action})
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	return sender.SendOptionNegotiation(code, action)
}

func enableByte(side Side) telnet.NegotiationAction {
	if side == Them {
		return telnet.NegotiationAction(telnet.DO)
	}
	return telnet.NegotiationAction(telnet.WILL)
}

func disableByte(side Side) telnet.NegotiationAction {
	if side == Them {
		return telnet.NegotiationAction(telnet.DONT)
	}
	return telnet.NegotiationAction(telnet.WONT)
}

func (b *BaseOption) state(side Side) *QState {
	if side == Us {
		return &b.us
	}
	return &b.them
}

// Enabled reports whether side is currently YES.
func (b *BaseOption) Enabled(side Side) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.state(side) == QYes
}

// Request implements the §4.3 local-request operation: a caller on our
// process asks to activate/deactivate side.
func (b *BaseOption) Request(side Side, enable bool) error {
	b.mu.Lock()
	statePtr := b.state(side)
	prev := *statePtr
	next, shouldEmit := requestTransition(prev, enable)
	*statePtr = next
	b.mu.Unlock()

	b.fireStateChange(side, prev, next)

	if !shouldEmit {
		return nil
	}
	action := disableByte(side)
	if enable {
		action = enableByte(side)
	}
	return b.emit(action)
}

// Respond implements the §4.3 remote-response operation: the peer sent
// WILL/WONT/DO/DONT. It returns a *telnet.ProtocolWarning for RFC 1143
// violations (never fatal) and nil on success; only a send failure from the
// underlying Sender is returned as a plain, fatal error.
func (b *BaseOption) Respond(action telnet.NegotiationAction) error {
	side := Them
	if byte(action) == telnet.DO || byte(action) == telnet.DONT {
		side = Us
	}
	activate := byte(action) == telnet.WILL || byte(action) == telnet.DO

	b.mu.Lock()
	statePtr := b.state(side)
	prev := *statePtr

	var next QState
	var emitAction telnet.NegotiationAction
	var shouldEmit bool
	var warning string

	switch {
	case activate && prev == QNo:
		if b.self.ShouldAccept(side == Them) {
			next, emitAction, shouldEmit = QYes, enableByte(side), true
		} else {
			next, emitAction, shouldEmit = QNo, disableByte(side), true
		}
	case activate && prev == QWantNoEmpty:
		next, warning = QNo, "DONT answered by WILL/DO"
	case activate && prev == QWantNoOpposite:
		next, warning = QYes, "DONT answered by WILL/DO"
	case activate && prev == QWantYesEmpty:
		next = QYes
	case activate && prev == QWantYesOpposite:
		next, emitAction, shouldEmit = QWantNoEmpty, disableByte(side), true
	case activate: // QYes: redundant re-announcement
		next = prev
	case !activate && prev == QYes:
		next, emitAction, shouldEmit = QNo, disableByte(side), true
	case !activate && prev == QWantNoEmpty:
		next = QNo
	case !activate && prev == QWantNoOpposite:
		next, emitAction, shouldEmit = QWantYesEmpty, enableByte(side), true
	case !activate && prev == QWantYesEmpty:
		next = QNo
	case !activate && prev == QWantYesOpposite:
		next = QNo
	default: // !activate && prev == QNo: redundant
		next = prev
	}

	*statePtr = next
	b.mu.Unlock()

	b.fireStateChange(side, prev, next)

	if shouldEmit {
		if err := b.emit(emitAction); err != nil {
			return err
		}
	}

	if warning != "" {
		return telnet.NewProtocolWarning("%s: %s (option %d, side %s)", warning, b.name, b.code, side)
	}
	return nil
}

func (b *BaseOption) fireStateChange(side Side, prev, next QState) {
	if next == prev {
		return
	}
	if (prev == QYes) == (next == QYes) {
		return
	}
	b.self.OnStateChange(side == Them, next == QYes)
}
