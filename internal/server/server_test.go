package server

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vspc/vspc/internal/options"
	"github.com/vspc/vspc/internal/stats"
	"github.com/vspc/vspc/internal/telnet"
	"github.com/vspc/vspc/internal/vmotion"
	"github.com/vspc/vspc/internal/vmport"
)

// Wire values from §4.8, duplicated here (rather than imported unexported)
// the same way a real peer driving the protocol over the network would
// only know the bytes, not the package's internal constant names.
const (
	wireDoProxy  = 70
	wireVMVCUUID = 80
	wireVMName   = 82
)

type nopByteSender struct{}

func (nopByteSender) SendBytes(data []byte) error { return nil }

type nopOptionSender struct{}

func (nopOptionSender) SendOptionNegotiation(code byte, action telnet.NegotiationAction) error {
	return nil
}
func (nopOptionSender) SendOptionSubnegotiation(code byte, payload []byte) error { return nil }

func establishedVMwareExtension(t *testing.T, registry *vmport.Registry, broker *vmotion.Broker, serviceURI string) *options.VMwareExtension {
	t.Helper()
	vmx := options.NewVMwareExtensionServer(nopByteSender{}, registry, broker, stats.New(), serviceURI, zerolog.Nop())
	require.NoError(t, vmx.Attach(nopOptionSender{}))

	require.NoError(t, vmx.Subnegotiate(append([]byte{wireDoProxy, 'S'}, []byte(serviceURI)...)))
	require.NoError(t, vmx.Subnegotiate(append([]byte{wireVMVCUUID}, []byte("564d9c8e123456789abcdeadbeef0001")...)))
	require.NoError(t, vmx.Subnegotiate(append([]byte{wireVMName}, []byte("test-vm")...)))
	require.NotNil(t, vmx.Port())
	return vmx
}

func TestTeardownVM_RemovesOwnedPort(t *testing.T) {
	registry := vmport.NewRegistry()
	broker := vmotion.NewBroker()
	srv := &Server{ports: registry, broker: broker, counters: stats.New()}

	vmx := establishedVMwareExtension(t, registry, broker, "telnet://\x00")
	portID := vmx.Port().PortID

	srv.teardownVM(vmx, zerolog.Nop())

	_, ok := registry.Get(portID)
	require.False(t, ok)
}

// TestTeardownVM_OwnerMismatchLeavesPortRegistered covers the post-vMotion
// case (§7): the old source connection tears down after its VMPort has
// already been handed off, and must not rip the port out from under the
// new owner.
func TestTeardownVM_OwnerMismatchLeavesPortRegistered(t *testing.T) {
	registry := vmport.NewRegistry()
	broker := vmotion.NewBroker()
	srv := &Server{ports: registry, broker: broker, counters: stats.New()}

	vmx := establishedVMwareExtension(t, registry, broker, "telnet://\x00")
	port := vmx.Port()
	newOwner := options.NewVMwareExtensionServer(nopByteSender{}, registry, broker, stats.New(), "telnet://\x00", zerolog.Nop())
	port.SetVEO(newOwner)

	srv.teardownVM(vmx, zerolog.Nop())

	_, ok := registry.Get(port.PortID)
	require.True(t, ok)
	require.Equal(t, newOwner, port.VEO())
}

func TestTeardownVM_SweepsPendingVMotionFromBroker(t *testing.T) {
	registry := vmport.NewRegistry()
	broker := vmotion.NewBroker()
	srv := &Server{ports: registry, broker: broker, counters: stats.New()}

	vmx := establishedVMwareExtension(t, registry, broker, "telnet://\x00")
	broker.Begin("some-key", vmx)
	require.Equal(t, 1, broker.Len())

	srv.teardownVM(vmx, zerolog.Nop())

	require.Equal(t, 0, broker.Len())
}
