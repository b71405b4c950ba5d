package option

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vspc/vspc/internal/telnet"
)

// fakeSender records emitted negotiations instead of touching a socket.
type fakeSender struct {
	negotiations []struct {
		code   byte
		action telnet.NegotiationAction
	}
}

func (f *fakeSender) SendOptionNegotiation(code byte, action telnet.NegotiationAction) error {
	f.negotiations = append(f.negotiations, struct {
		code   byte
		action telnet.NegotiationAction
	}{code, action})
	return nil
}

func (f *fakeSender) SendOptionSubnegotiation(code byte, payload []byte) error { return nil }

type acceptAllOption struct {
	BaseOption
	changes []struct {
		them    bool
		enabled bool
	}
}

func newAcceptAllOption(code byte) *acceptAllOption {
	o := &acceptAllOption{}
	o.Init(o, code, "test-option")
	return o
}

func (o *acceptAllOption) ShouldAccept(them bool) bool { return true }

func (o *acceptAllOption) OnStateChange(them bool, enabled bool) {
	o.changes = append(o.changes, struct {
		them    bool
		enabled bool
	}{them, enabled})
}

func TestBaseOption_RequestThenAcceptConverges(t *testing.T) {
	// Scenario F: us=NO, request(them, true) -> WANTYES_EMPTY, emit DO.
	// Peer replies WILL -> YES, OnStateChange(them, true) fires exactly once.
	sender := &fakeSender{}
	o := newAcceptAllOption(44)
	require.NoError(t, o.Attach(sender))

	require.NoError(t, o.Request(Them, true))
	require.Equal(t, QWantYesEmpty, o.them)
	require.Len(t, sender.negotiations, 1)
	require.Equal(t, telnet.NegotiationAction(telnet.DO), sender.negotiations[0].action)

	require.NoError(t, o.Respond(telnet.NegotiationAction(telnet.WILL)))
	require.Equal(t, QYes, o.them)
	require.True(t, o.Enabled(Them))
	require.Len(t, o.changes, 1)
	require.True(t, o.changes[0].them)
	require.True(t, o.changes[0].enabled)
}

func TestBaseOption_QueuesUntilAttached(t *testing.T) {
	o := newAcceptAllOption(1)
	require.NoError(t, o.Request(Us, true))
	require.False(t, o.Attached())

	sender := &fakeSender{}
	require.NoError(t, o.Attach(sender))
	require.Len(t, sender.negotiations, 1)
	require.Equal(t, telnet.NegotiationAction(telnet.WILL), sender.negotiations[0].action)
}

func TestBaseOption_RejectKeepsNo(t *testing.T) {
	sender := &fakeSender{}
	type rejectAll struct{ BaseOption }
	r := &rejectAll{}
	r.Init(r, 99, "reject-all")
	require.NoError(t, r.Attach(sender))

	require.NoError(t, r.Respond(telnet.NegotiationAction(telnet.WILL)))
	require.Equal(t, QNo, r.them)
	require.Len(t, sender.negotiations, 1)
	require.Equal(t, telnet.NegotiationAction(telnet.DONT), sender.negotiations[0].action)
}

// TestQStateConvergence is Property 2: any interleaving of request/respond
// calls on both ends reaches a stable, matching enabled state.
func TestQStateConvergence(t *testing.T) {
	aSender := &fakeSender{}
	bSender := &fakeSender{}
	a := newAcceptAllOption(1)
	b := newAcceptAllOption(1)
	require.NoError(t, a.Attach(aSender))
	require.NoError(t, b.Attach(bSender))

	// a wants to enable "them" (b); drive the handshake to completion by
	// feeding each side's emitted negotiations to the other, exactly the
	// FIFO wire-order guarantee from §5.
	require.NoError(t, a.Request(Them, true))
	for len(aSender.negotiations) > 0 || len(bSender.negotiations) > 0 {
		for _, n := range aSender.negotiations {
			require.NoError(t, b.Respond(flip(n.action)))
		}
		aSender.negotiations = nil
		for _, n := range bSender.negotiations {
			require.NoError(t, a.Respond(flip(n.action)))
		}
		bSender.negotiations = nil
	}

	require.Equal(t, a.Enabled(Them), b.Enabled(Us))
}

// flip translates a negotiation action emitted by one peer into the action
// byte the other peer receives (DO/DONT <-> WILL/WONT swap sides).
func flip(action telnet.NegotiationAction) telnet.NegotiationAction {
	switch byte(action) {
	case telnet.DO:
		return telnet.NegotiationAction(telnet.WILL)
	case telnet.DONT:
		return telnet.NegotiationAction(telnet.WONT)
	case telnet.WILL:
		return telnet.NegotiationAction(telnet.DO)
	case telnet.WONT:
		return telnet.NegotiationAction(telnet.DONT)
	}
	return action
}
