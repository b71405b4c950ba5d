package backend

import "github.com/vspc/vspc/internal/vmport"

// NullModemBackend bridges one VMPort's inbound bytes to another VMPort's
// send path — the "null-modem peer" glossary entry. Wiring two VMs together
// takes two instances, each attached to one port and pointed at the other:
// the NewNullModemPair constructor builds both halves at once.
type NullModemBackend struct {
	peer *vmport.VMPort
}

// NewNullModemPair attaches a and b to each other's ports so that bytes
// received on one flow out to the VM on the other, in both directions.
func NewNullModemPair(a, b *vmport.VMPort) (aToB *NullModemBackend, bToA *NullModemBackend, err error) {
	aToB = &NullModemBackend{peer: b}
	bToA = &NullModemBackend{peer: a}

	if err := a.Attach(vmport.ReadWrite, aToB); err != nil {
		return nil, nil, err
	}
	if err := b.Attach(vmport.ReadWrite, bToA); err != nil {
		a.Detach(aToB)
		return nil, nil, err
	}
	return aToB, bToA, nil
}

// ReceiveBytes implements vmport.Backend: bytes arriving from this
// backend's attached port are relayed to the peer port's VM.
func (n *NullModemBackend) ReceiveBytes(data []byte) error {
	return n.peer.SendBytes(data)
}
