package options

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vspc/vspc/internal/telnet"
	"github.com/vspc/vspc/internal/vmotion"
	"github.com/vspc/vspc/internal/vmport"
)

type fakeOptionSender struct {
	subnegs [][]byte
}

func (f *fakeOptionSender) SendOptionNegotiation(code byte, action telnet.NegotiationAction) error {
	return nil
}

func (f *fakeOptionSender) SendOptionSubnegotiation(code byte, payload []byte) error {
	f.subnegs = append(f.subnegs, append([]byte(nil), payload...))
	return nil
}

type fakeByteSender struct {
	sent [][]byte
}

func (f *fakeByteSender) SendBytes(data []byte) error {
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

type fakeStats struct {
	begins, peers, completes, aborts, abandons int
}

func (f *fakeStats) VMotionBegin()    { f.begins++ }
func (f *fakeStats) VMotionPeer()     { f.peers++ }
func (f *fakeStats) VMotionComplete() { f.completes++ }
func (f *fakeStats) VMotionAbort()    { f.aborts++ }
func (f *fakeStats) VMotionAbandon()  { f.abandons++ }

func newTestVMwareExtension(t *testing.T, registry *vmport.Registry, broker *vmotion.Broker, stats StatsRecorder) (*VMwareExtension, *fakeByteSender, *fakeOptionSender) {
	t.Helper()
	bytes := &fakeByteSender{}
	v := NewVMwareExtensionServer(bytes, registry, broker, stats, "telnet://\x00", zerolog.Nop())
	sender := &fakeOptionSender{}
	require.NoError(t, v.Attach(sender))
	return v, bytes, sender
}

func establishIdentity(t *testing.T, v *VMwareExtension) {
	t.Helper()
	require.NoError(t, v.handleDoProxy(append([]byte{'S'}, []byte("telnet://\x00")...)))
	require.NoError(t, v.handleVCUUID([]byte("564d9c8e-1234-5678-9abc-deadbeef0001")))
	require.NoError(t, v.handleVMName([]byte("test-vm")))
}

func TestVMwareExtension_IdentityCheckAttachesPort(t *testing.T) {
	registry := vmport.NewRegistry()
	v, _, _ := newTestVMwareExtension(t, registry, vmotion.NewBroker(), &fakeStats{})

	establishIdentity(t, v)

	require.NotNil(t, v.Port())
	require.Equal(t, v, v.Port().VEO())
	require.Equal(t, "test-vm", v.Port().VMName)
}

func TestVMwareExtension_DoProxyRejectsUnmatchedURI(t *testing.T) {
	registry := vmport.NewRegistry()
	v, _, sender := newTestVMwareExtension(t, registry, vmotion.NewBroker(), &fakeStats{})

	require.NoError(t, v.handleDoProxy(append([]byte{'S'}, []byte("telnet://somewhere-else")...)))

	require.False(t, v.willProxy)
	require.Len(t, sender.subnegs, 1)
	require.Equal(t, []byte{vmwWontProxy}, sender.subnegs[0])
}

// TestVMwareExtension_VMotionHappyPath drives BEGIN/PEER/COMPLETE across a
// source and destination handler sharing one broker (scenario G).
func TestVMwareExtension_VMotionHappyPath(t *testing.T) {
	registry := vmport.NewRegistry()
	broker := vmotion.NewBroker()
	srcStats := &fakeStats{}
	dstStats := &fakeStats{}

	src, _, srcSender := newTestVMwareExtension(t, registry, broker, srcStats)
	establishIdentity(t, src)
	require.NotNil(t, src.Port())

	dst, _, dstSender := newTestVMwareExtension(t, registry, broker, dstStats)

	sequence := []byte("seq-1")
	require.NoError(t, src.handleVMotionBegin(sequence))
	require.Equal(t, 1, srcStats.begins)
	require.Equal(t, 1, broker.Len())

	goAhead := srcSender.subnegs[len(srcSender.subnegs)-1]
	require.Equal(t, vmwVMotionGoAhead, goAhead[0])
	secret := goAhead[1+len(sequence):]
	require.Len(t, secret, vmotion.SecretLen)

	peerPayload := append(append([]byte(nil), sequence...), secret...)
	require.NoError(t, dst.handleVMotionPeer(peerPayload))
	require.Equal(t, 1, dstStats.peers)
	require.NotNil(t, dst.vmotionPeer)
	peerOK := dstSender.subnegs[len(dstSender.subnegs)-1]
	require.Equal(t, vmwVMotionPeerOK, peerOK[0])

	originalPort := src.Port()
	require.NoError(t, dst.handleVMotionComplete())

	require.Equal(t, 1, dstStats.completes)
	require.Equal(t, 0, broker.Len())
	require.Equal(t, originalPort, dst.Port())
	require.Equal(t, dst, originalPort.VEO())
	require.Nil(t, src.vmotion)
}

func TestVMwareExtension_VMotionAbortIsNoopOnDestination(t *testing.T) {
	registry := vmport.NewRegistry()
	broker := vmotion.NewBroker()
	dst, _, _ := newTestVMwareExtension(t, registry, broker, &fakeStats{})

	require.NoError(t, dst.handleVMotionAbort())
	require.Nil(t, dst.vmotion)
}

func TestVMwareExtension_VMotionBeginTwiceAbandonsFirst(t *testing.T) {
	registry := vmport.NewRegistry()
	broker := vmotion.NewBroker()
	stats := &fakeStats{}
	src, _, _ := newTestVMwareExtension(t, registry, broker, stats)

	require.NoError(t, src.handleVMotionBegin([]byte("seq-a")))
	require.Equal(t, 1, broker.Len())

	require.NoError(t, src.handleVMotionBegin([]byte("seq-b")))
	require.Equal(t, 1, stats.abandons)
	require.Equal(t, 1, broker.Len())
}

func TestSanitizeVCUUID(t *testing.T) {
	s, err := sanitizeVCUUID([]byte("56 4d 9c 8e-1234-5678-9abc-deadbeef0001"))
	require.NoError(t, err)
	require.Len(t, s, 32)

	_, err = sanitizeVCUUID([]byte("too-short"))
	require.Error(t, err)
}

func TestMatchServiceURI(t *testing.T) {
	ok, label := matchServiceURI("telnet://\x00", "telnet://\x00")
	require.True(t, ok)
	require.Empty(t, label)

	ok, label = matchServiceURI("telnet://\x00", "telnet://\x00?port=com1")
	require.True(t, ok)
	require.Equal(t, "com1", label)

	ok, _ = matchServiceURI("telnet://\x00", "telnet://somewhere-else")
	require.False(t, ok)
}
