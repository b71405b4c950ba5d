package vmport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOwner struct{ sent [][]byte }

func (f *fakeOwner) SendBytes(data []byte) error {
	f.sent = append(f.sent, data)
	return nil
}

type fakeBackend struct{ received [][]byte }

func (f *fakeBackend) ReceiveBytes(data []byte) error {
	f.received = append(f.received, data)
	return nil
}

func TestVMPort_AtMostOneOwner(t *testing.T) {
	p := New("uuid-1", "uuid-1", "")
	a := &fakeOwner{}
	b := &fakeOwner{}

	p.SetVEO(a)
	require.NoError(t, p.ReceiveBytes(a, []byte("hi")))

	err := p.ReceiveBytes(b, []byte("hi"))
	require.Error(t, err)
}

func TestVMPort_ExclusiveGrantBlocksFurtherAttach(t *testing.T) {
	p := New("uuid-1", "uuid-1", "")
	excl := &fakeBackend{}
	require.NoError(t, p.Attach(Exclusive, excl))

	other := &fakeBackend{}
	err := p.Attach(ReadOnly, other)
	require.Error(t, err)
	var denied *PortAccessDenied
	require.ErrorAs(t, err, &denied)
}

func TestVMPort_ExclWriteBlocksRWButAllowsRO(t *testing.T) {
	p := New("uuid-1", "uuid-1", "")
	writer := &fakeBackend{}
	require.NoError(t, p.Attach(ExclWrite, writer))

	_, rwErr := p.determineAccess(ReadWrite)
	require.Error(t, rwErr)

	reader := &fakeBackend{}
	require.NoError(t, p.Attach(ReadOnly, reader))

	// READONLY_OK downgrades to RO whenever EXCL_WRITE is present.
	downgraded := &fakeBackend{}
	require.NoError(t, p.Attach(ReadOnlyOK, downgraded))
	require.Contains(t, p.readonlyBackends, Backend(downgraded))
}

func TestVMPort_ReceiveBytesFanOutInRegistrationOrder(t *testing.T) {
	p := New("uuid-1", "uuid-1", "")
	owner := &fakeOwner{}
	p.SetVEO(owner)

	var order []int
	b1 := &orderedBackend{id: 1, order: &order}
	b2 := &orderedBackend{id: 2, order: &order}
	require.NoError(t, p.Attach(ReadOnly, b1))
	require.NoError(t, p.Attach(ReadOnly, b2))

	require.NoError(t, p.ReceiveBytes(owner, []byte("x")))
	require.Equal(t, []int{1, 2}, order)
}

type orderedBackend struct {
	id    int
	order *[]int
}

func (o *orderedBackend) ReceiveBytes(data []byte) error {
	*o.order = append(*o.order, o.id)
	return nil
}

func TestDetach_RestoresAccess(t *testing.T) {
	p := New("uuid-1", "uuid-1", "")
	excl := &fakeBackend{}
	require.NoError(t, p.Attach(Exclusive, excl))
	p.Detach(excl)

	fresh := &fakeBackend{}
	require.NoError(t, p.Attach(ReadWrite, fresh))
}
