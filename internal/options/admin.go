package options

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/vspc/vspc/internal/telnet"
	"github.com/vspc/vspc/internal/telnet/option"
	"github.com/vspc/vspc/internal/vmport"
)

// OptionAdmin is the vSPC-Admin option (§4.10).
const OptionAdmin byte = 233

const (
	adminGetPortList   byte = 0x10
	adminPortList      byte = 0x11
	adminSetConnection byte = 0x20
	adminPortConnected byte = 0x21
	adminPortDiscon    byte = 0x22
)

// Locking-mode wire values (§6).
const (
	lockReadWrite  byte = 0x00
	lockReadOnly   byte = 0x01
	lockExclusive  byte = 0x10
	lockExclWrite  byte = 0x11
	lockReadOnlyOK byte = 0x20
)

func lockingModeByte(m vmport.AccessMode) byte {
	switch m {
	case vmport.ReadOnly:
		return lockReadOnly
	case vmport.Exclusive:
		return lockExclusive
	case vmport.ExclWrite:
		return lockExclWrite
	case vmport.ReadOnlyOK:
		return lockReadOnlyOK
	default:
		return lockReadWrite
	}
}

func decodeLockingMode(b byte) (vmport.AccessMode, bool) {
	switch b {
	case lockReadWrite:
		return vmport.ReadWrite, true
	case lockReadOnly:
		return vmport.ReadOnly, true
	case lockExclusive:
		return vmport.Exclusive, true
	case lockExclWrite:
		return vmport.ExclWrite, true
	case lockReadOnlyOK:
		return vmport.ReadOnlyOK, true
	default:
		return 0, false
	}
}

type adminRole int

const (
	adminServerRole adminRole = iota
	adminClientRole
)

// PortInfo is one entry of a decoded GET_VM_PORT_LIST reply.
type PortInfo struct {
	PortID       string
	VMName       string
	ListeningURI string
}

// Admin implements option 233 (§4.10), both the production server role (the
// vSPC daemon's admin listener, doubling as a vmport.Backend once attached
// to a port) and the client role used by the admin CLI.
type Admin struct {
	option.BaseOption

	role adminRole
	log  zerolog.Logger

	// server role
	connBytes ByteSender
	registry  *vmport.Registry
	port      *vmport.VMPort
	mode      vmport.AccessMode

	// client role
	onAvailable       func()
	onPortList        func([]PortInfo)
	onConnectionState func(connected bool)
}

// NewAdminServer builds the server-side vSPC-Admin handler for one admin
// connection. It proactively offers the option (Request(Us, true)), queued
// until the option is registered and attached.
func NewAdminServer(connBytes ByteSender, registry *vmport.Registry, log zerolog.Logger) *Admin {
	a := &Admin{role: adminServerRole, connBytes: connBytes, registry: registry, log: log}
	a.Init(a, OptionAdmin, "VSPC-ADMIN")
	_ = a.Request(option.Us, true)
	return a
}

// NewAdminClient builds the client-side handler used by the admin CLI.
// Each callback is optional; a nil callback silently drops the event.
func NewAdminClient(onAvailable func(), onPortList func([]PortInfo), onConnectionState func(bool), log zerolog.Logger) *Admin {
	a := &Admin{role: adminClientRole, onAvailable: onAvailable, onPortList: onPortList, onConnectionState: onConnectionState, log: log}
	a.Init(a, OptionAdmin, "VSPC-ADMIN")
	return a
}

func (a *Admin) ShouldAccept(them bool) bool {
	// Both roles accept the peer enabling its side: the server's own offer
	// arrives at the client as WILL, which is a them-side request.
	return them
}

func (a *Admin) OnStateChange(them bool, enabled bool) {
	if a.role != adminClientRole || !them || !enabled {
		return
	}
	if a.onAvailable != nil {
		a.onAvailable()
	}
}

// Port returns the VMPort this admin session is currently attached to, or
// nil.
func (a *Admin) Port() *vmport.VMPort { return a.port }

// Forward sends bytes typed on the admin connection itself out to the VM
// through the currently attached port, per §4.11's "backend -> sendBytes"
// path.
func (a *Admin) Forward(data []byte) error {
	if a.port == nil {
		return telnet.NewProtocolError("VSPC-ADMIN: not connected to a VM port")
	}
	return a.port.SendBytes(data)
}

// ReceiveBytes implements vmport.Backend: bytes arriving from the VM are
// relayed to the admin connection.
func (a *Admin) ReceiveBytes(data []byte) error {
	return a.connBytes.SendBytes(data)
}

// --- client-role action methods ---

func (a *Admin) RequestPortList() error {
	return a.Sender().SendOptionSubnegotiation(OptionAdmin, []byte{adminGetPortList})
}

func (a *Admin) ConnectToPort(portID string, mode vmport.AccessMode) error {
	payload := append([]byte{adminSetConnection, lockingModeByte(mode)}, []byte(portID)...)
	return a.Sender().SendOptionSubnegotiation(OptionAdmin, payload)
}

func (a *Admin) DisconnectFromPort() error {
	return a.Sender().SendOptionSubnegotiation(OptionAdmin, []byte{adminSetConnection})
}

// Subnegotiate dispatches by role per §4.10.
func (a *Admin) Subnegotiate(payload []byte) error {
	if len(payload) < 1 {
		return telnet.NewProtocolError("VSPC-ADMIN: empty subnegotiation")
	}
	if a.role == adminServerRole {
		return a.handleServer(payload)
	}
	return a.handleClient(payload)
}

func (a *Admin) handleServer(payload []byte) error {
	switch payload[0] {
	case adminGetPortList:
		if len(payload) != 1 {
			return telnet.NewProtocolWarning("VSPC-ADMIN: malformed GET_VM_PORT_LIST")
		}
		reply := append([]byte{adminPortList}, encodePortList(a.registry.List())...)
		return a.Sender().SendOptionSubnegotiation(OptionAdmin, reply)

	case adminSetConnection:
		return a.handleSetConnection(payload[1:])

	default:
		return telnet.NewProtocolWarning("VSPC-ADMIN: unhandled subcommand %d", payload[0])
	}
}

func (a *Admin) handleSetConnection(rest []byte) error {
	a.disconnectCurrent()

	if len(rest) == 0 {
		return a.Sender().SendOptionSubnegotiation(OptionAdmin, []byte{adminPortDiscon})
	}
	if len(rest) <= 1 {
		return telnet.NewProtocolError("VSPC-ADMIN: malformed VM_PORT_SET_CONNECTION")
	}

	mode, ok := decodeLockingMode(rest[0])
	if !ok {
		return telnet.NewProtocolError("VSPC-ADMIN: unknown locking mode %d", rest[0])
	}
	portID := string(rest[1:])

	port, ok := a.registry.Get(portID)
	if !ok {
		return a.Sender().SendOptionSubnegotiation(OptionAdmin, []byte{adminPortDiscon})
	}
	if err := port.Attach(mode, a); err != nil {
		return a.Sender().SendOptionSubnegotiation(OptionAdmin, []byte{adminPortDiscon})
	}

	a.port = port
	a.mode = mode
	return a.Sender().SendOptionSubnegotiation(OptionAdmin, []byte{adminPortConnected})
}

func (a *Admin) disconnectCurrent() {
	if a.port == nil {
		return
	}
	a.port.Detach(a)
	a.port = nil
}

func (a *Admin) handleClient(payload []byte) error {
	switch payload[0] {
	case adminPortList:
		ports, err := decodePortList(payload[1:])
		if err != nil {
			return err
		}
		if a.onPortList != nil {
			a.onPortList(ports)
		}
		return nil
	case adminPortConnected:
		if a.onConnectionState != nil {
			a.onConnectionState(true)
		}
		return nil
	case adminPortDiscon:
		if a.onConnectionState != nil {
			a.onConnectionState(false)
		}
		return nil
	default:
		return telnet.NewProtocolWarning("VSPC-ADMIN: unhandled subcommand %d", payload[0])
	}
}

func encodePortList(ports []*vmport.VMPort) []byte {
	fields := make([]string, 0, len(ports)*3)
	for _, p := range ports {
		fields = append(fields, p.PortID, p.VMName, p.ListeningURI)
	}
	return []byte(strings.Join(fields, "\x00"))
}

func decodePortList(payload []byte) ([]PortInfo, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	fields := strings.Split(string(payload), "\x00")
	if len(fields)%3 != 0 {
		return nil, telnet.NewProtocolError("VSPC-ADMIN: VM_PORT_LIST length not divisible by 3")
	}
	out := make([]PortInfo, 0, len(fields)/3)
	for i := 0; i+2 < len(fields); i += 3 {
		out = append(out, PortInfo{PortID: fields[i], VMName: fields[i+1], ListeningURI: fields[i+2]})
	}
	return out, nil
}
