// Package vmport implements the VM-Port registry (§3, §4.11): the global
// mapping from port-id to a VMPort record, each owning its current VM-side
// option handler (the "veo") and its list of backends, plus the access-
// control rules that govern attaching a new backend.
package vmport

import (
	"sync"

	"github.com/vspc/vspc/internal/telnet"
)

// ConnectionOwner is the VM-side option handler currently allowed to feed
// bytes into a VMPort — the VMware-extension option of whichever
// Connection currently owns the port. It is compared by interface identity
// ("port.veo == self") to enforce §8 property 3: at most one owner at a
// time, and bytes arriving from anyone else are rejected.
type ConnectionOwner interface {
	// SendBytes delivers bytes to the VM over the owning Connection.
	SendBytes(data []byte) error
}

// Backend is a consumer/producer attached to a VMPort: a disk log, a
// memory buffer, an interactive admin client, or a null-modem peer
// (§4.11, Glossary). It only needs to accept inbound bytes; the
// `receive_bytes` contract from §1's scope note.
type Backend interface {
	ReceiveBytes(data []byte) error
}

// VMPort is the logical identity of a VM's serial port, persistent across
// vMotion (§3).
type VMPort struct {
	mu sync.Mutex

	PortID       string
	VCUUID       string
	PortLabel    string
	VMName       string
	ListeningURI string

	veo ConnectionOwner

	backends          []Backend
	readonlyBackends  []Backend
	readwriteBackends []Backend

	exclusiveBackend      Backend
	exclusiveWriteBackend Backend
}

// New builds a VMPort. portID is vcUUID, or vcUUID+"."+portLabel when
// portLabel is non-empty (§3).
func New(portID, vcUUID, portLabel string) *VMPort {
	return &VMPort{PortID: portID, VCUUID: vcUUID, PortLabel: portLabel}
}

// SetVEO reassigns the option handler allowed to feed this port, per
// §4.9's vMotion handoff and the admin option's disconnect path (which
// passes nil). Returns the previous owner.
func (p *VMPort) SetVEO(owner ConnectionOwner) ConnectionOwner {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setVEOLocked(owner)
}

// SetVEOLocked is SetVEO for a caller that already holds the port's lock
// via Lock/Unlock. The vMotion handoff (§4.9) uses this to fold the veo
// reassignment into the same critical section as the rest of its
// multi-field mutation, instead of releasing and reacquiring the mutex.
func (p *VMPort) SetVEOLocked(owner ConnectionOwner) ConnectionOwner {
	return p.setVEOLocked(owner)
}

func (p *VMPort) setVEOLocked(owner ConnectionOwner) ConnectionOwner {
	prev := p.veo
	p.veo = owner
	return prev
}

// VEO returns the current owning option handler, or nil.
func (p *VMPort) VEO() ConnectionOwner {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.veo
}

// Lock/Unlock expose the port's mutex directly so the vMotion handoff
// (§4.9) can hold it across its whole multi-field mutation, atomically
// with respect to inbound data processing on either connection (§5).
func (p *VMPort) Lock()   { p.mu.Lock() }
func (p *VMPort) Unlock() { p.mu.Unlock() }

// ReceiveBytes implements "VM -> VMPort.receiveBytes" from §4.11: rejected
// with a ProtocolError-shaped error unless from is the current veo;
// otherwise every attached backend receives the bytes, in registration
// order.
func (p *VMPort) ReceiveBytes(from ConnectionOwner, data []byte) error {
	p.mu.Lock()
	if p.veo != from {
		p.mu.Unlock()
		return telnet.NewProtocolError("receive_bytes on port %q from non-owning handler", p.PortID)
	}
	backends := make([]Backend, len(p.backends))
	copy(backends, p.backends)
	p.mu.Unlock()

	for _, b := range backends {
		if err := b.ReceiveBytes(data); err != nil {
			// A single misbehaving backend must not stop fan-out to the
			// others or bring down the VM connection.
			continue
		}
	}
	return nil
}

// SendBytes implements "backend -> port.sendBytes delegates to port.veo's
// send" from §4.11.
func (p *VMPort) SendBytes(data []byte) error {
	p.mu.Lock()
	veo := p.veo
	p.mu.Unlock()
	if veo == nil {
		return telnet.NewProtocolError("send_bytes on port %q with no attached VM connection", p.PortID)
	}
	return veo.SendBytes(data)
}

// Attach grants backend access under requested mode, applying the §4.11
// access table. On success backend is appended to Backends() and to the
// read-only/read-write bucket implied by the grant.
func (p *VMPort) Attach(requested AccessMode, backend Backend) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	writable, err := p.determineAccess(requested)
	if err != nil {
		return err
	}

	p.backends = append(p.backends, backend)
	if writable {
		p.readwriteBackends = append(p.readwriteBackends, backend)
	} else {
		p.readonlyBackends = append(p.readonlyBackends, backend)
	}
	switch requested {
	case Exclusive:
		p.exclusiveBackend = backend
	case ExclWrite:
		p.exclusiveWriteBackend = backend
	}
	return nil
}

// Detach undoes Attach: removes backend from Backends() and whichever
// bucket(s) it was classified into.
func (p *VMPort) Detach(backend Backend) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.backends = removeBackend(p.backends, backend)
	p.readonlyBackends = removeBackend(p.readonlyBackends, backend)
	p.readwriteBackends = removeBackend(p.readwriteBackends, backend)
	if p.exclusiveBackend == backend {
		p.exclusiveBackend = nil
	}
	if p.exclusiveWriteBackend == backend {
		p.exclusiveWriteBackend = nil
	}
}

// Backends returns a snapshot of the currently attached backends.
func (p *VMPort) Backends() []Backend {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Backend, len(p.backends))
	copy(out, p.backends)
	return out
}

func removeBackend(list []Backend, target Backend) []Backend {
	out := list[:0]
	for _, b := range list {
		if b != target {
			out = append(out, b)
		}
	}
	return out
}
