package vmport

import "fmt"

// PortNotFound describes a requested port_id that has no VMPort. Registry.Get
// reports a missing port through its boolean result rather than this error;
// the vSPC-Admin server option answers a missing port with a
// VM_PORT_DISCONNECTED reply (§4.10, §7) rather than failing the connection.
type PortNotFound struct {
	PortID string
}

func (e *PortNotFound) Error() string { return fmt.Sprintf("vmport: port %q not found", e.PortID) }

// PortAccessDenied is returned by VMPort.Attach when §4.11's access table
// denies the requested locking mode. Also converted to VM_PORT_DISCONNECTED
// by the admin server option rather than failing the connection.
type PortAccessDenied struct {
	PortID string
	Mode   AccessMode
}

func (e *PortAccessDenied) Error() string {
	return fmt.Sprintf("vmport: access denied for port %q (mode %s)", e.PortID, e.Mode)
}
