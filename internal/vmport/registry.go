package vmport

import "sync"

// Registry is the process-wide mapping from port-id to VMPort (§3). It is
// the single long-lived owner object passed explicitly to each connection
// task (§9's "avoid hidden process-wide singletons" note), guarded by one
// RWMutex as §5 requires for a parallel-threaded implementation.
type Registry struct {
	mu    sync.RWMutex
	ports map[string]*VMPort
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ports: make(map[string]*VMPort)}
}

// GetOrCreate returns the existing VMPort for portID, or creates, stores
// and returns a new one. Used by the VMware-extension option's identity
// check (§4.8) once vc_uuid, vm_name and will_proxy are all known.
func (r *Registry) GetOrCreate(portID, vcUUID, portLabel string) *VMPort {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.ports[portID]; ok {
		return p
	}
	p := New(portID, vcUUID, portLabel)
	r.ports[portID] = p
	return p
}

// Get looks up portID without creating it. Used by the vSPC-Admin server
// option's VM_PORT_SET_CONNECTION (§4.10), which answers a missing port
// with VM_PORT_DISCONNECTED rather than silently creating an empty port.
func (r *Registry) Get(portID string) (*VMPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.ports[portID]
	return p, ok
}

// Remove deletes portID unconditionally. Callers (connection teardown)
// must first confirm they still own the port's veo (§9 open question
// (iii): a VMPort whose veo was cleared by disconnect remains registered
// until the owning veo tears down).
func (r *Registry) Remove(portID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, portID)
}

// List returns a snapshot of all registered ports, for the vSPC-Admin
// GET_VM_PORT_LIST reply (§4.10) and the debug HTTP status endpoint.
func (r *Registry) List() []*VMPort {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*VMPort, 0, len(r.ports))
	for _, p := range r.ports {
		out = append(out, p)
	}
	return out
}
