package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vspc/vspc/internal/vmport"
)

type fakeOwner struct {
	sent [][]byte
}

func (f *fakeOwner) SendBytes(data []byte) error {
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func TestNullModemPair_BridgesBothDirections(t *testing.T) {
	a := vmport.New("vc-a", "vc-a", "")
	b := vmport.New("vc-b", "vc-b", "")
	ownerA := &fakeOwner{}
	ownerB := &fakeOwner{}
	a.SetVEO(ownerA)
	b.SetVEO(ownerB)

	_, _, err := NewNullModemPair(a, b)
	require.NoError(t, err)

	require.NoError(t, a.ReceiveBytes(ownerA, []byte("from-a")))
	require.Equal(t, [][]byte{[]byte("from-a")}, ownerB.sent)

	require.NoError(t, b.ReceiveBytes(ownerB, []byte("from-b")))
	require.Equal(t, [][]byte{[]byte("from-b")}, ownerA.sent)
}

func TestNullModemPair_RollsBackOnSecondAttachFailure(t *testing.T) {
	a := vmport.New("vc-a", "vc-a", "")
	b := vmport.New("vc-b", "vc-b", "")

	// Pre-occupy b with an exclusive backend so its Attach fails.
	require.NoError(t, b.Attach(vmport.Exclusive, &fakeBackend{}))

	_, _, err := NewNullModemPair(a, b)
	require.Error(t, err)
	require.Empty(t, a.Backends())
}

type fakeBackend struct{}

func (fakeBackend) ReceiveBytes(data []byte) error { return nil }
