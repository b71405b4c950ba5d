package telnet

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, input []byte) ([]Event, error) {
	t.Helper()
	d := NewDecoder(bytes.NewReader(input))
	var events []Event
	for {
		ev, err := d.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestDecoder_NOPDropped(t *testing.T) {
	// Scenario A: "123" FF F1 "456" -> ["123", "456"]
	events, err := decodeAll(t, []byte{'1', '2', '3', IAC, NOP, '4', '5', '6'})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, []byte("123"), events[0].Data)
	require.Equal(t, []byte("456"), events[1].Data)
}

func TestDecoder_EscapedIAC(t *testing.T) {
	// Scenario B: "123" FF FF "456" -> ["123", "\xFF", "456"]
	events, err := decodeAll(t, []byte{'1', '2', '3', IAC, IAC, '4', '5', '6'})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, []byte("123"), events[0].Data)
	require.Equal(t, []byte{0xFF}, events[1].Data)
	require.Equal(t, []byte("456"), events[2].Data)
}

func TestDecoder_OptionNegotiation(t *testing.T) {
	// Scenario C: "1" FF FB 7B "2" (WILL 123) -> ["1", WILL(123), "2"]
	events, err := decodeAll(t, []byte{'1', IAC, WILL, 123, '2'})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, []byte("1"), events[0].Data)
	require.Equal(t, EventNegotiation, events[1].Kind)
	require.Equal(t, NegotiationAction(WILL), events[1].Action)
	require.EqualValues(t, 123, events[1].OptionCode)
	require.Equal(t, []byte("2"), events[2].Data)
}

func TestDecoder_Subnegotiation(t *testing.T) {
	// Scenario D: "1" FF FA 7B 01 FF FF 02 FF F0 "2"
	// -> ["1", Subneg(123, [01, FF, 02]), "2"]
	input := []byte{'1', IAC, SB, 123, 0x01, IAC, IAC, 0x02, IAC, SE, '2'}
	events, err := decodeAll(t, input)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, []byte("1"), events[0].Data)
	require.Equal(t, EventSubnegotiation, events[1].Kind)
	require.EqualValues(t, 123, events[1].OptionCode)
	require.Equal(t, []byte{0x01, 0xFF, 0x02}, events[1].Payload)
	require.Equal(t, []byte("2"), events[2].Data)
}

func TestDecoder_UnexpectedSE(t *testing.T) {
	// Scenario E: "123" FF F0 -> ["123", ProtocolError]
	d := NewDecoder(bytes.NewReader([]byte{'1', '2', '3', IAC, SE}))
	ev, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("123"), ev.Data)

	_, err = d.Next()
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestDecoder_EmptySubnegotiationIsProtocolError(t *testing.T) {
	d := NewDecoder(bytes.NewReader([]byte{IAC, SB, IAC, SE}))
	_, err := d.Next()
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestDecoder_ControlFunction(t *testing.T) {
	events, err := decodeAll(t, []byte{'a', IAC, GA, 'b'})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, EventControl, events[1].Kind)
	require.Equal(t, GA, events[1].Control)
}

func TestDecoder_RoundTrip(t *testing.T) {
	// Property 1: encoding the emitted events back to bytes reproduces the
	// original stream byte-for-byte, for streams with no protocol-illegal
	// subnegotiation patterns.
	input := []byte{
		'h', 'e', 'l', 'l', 'o', IAC, IAC, ' ', 'w', 'o', 'r', 'l', 'd',
		IAC, WILL, 1, IAC, DONT, 44,
		IAC, SB, 44, 1, 0, 0, 0x25, 0x80, IAC, SE,
		'!',
	}
	d := NewDecoder(bytes.NewReader(input))
	var out bytes.Buffer
	for {
		ev, err := d.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		switch ev.Kind {
		case EventData:
			for _, b := range ev.Data {
				out.WriteByte(b)
				if b == IAC {
					out.WriteByte(IAC)
				}
			}
		case EventNegotiation:
			out.WriteByte(IAC)
			out.WriteByte(byte(ev.Action))
			out.WriteByte(ev.OptionCode)
		case EventSubnegotiation:
			out.WriteByte(IAC)
			out.WriteByte(SB)
			out.WriteByte(ev.OptionCode)
			for _, b := range ev.Payload {
				out.WriteByte(b)
				if b == IAC {
					out.WriteByte(IAC)
				}
			}
			out.WriteByte(IAC)
			out.WriteByte(SE)
		}
	}
	require.Equal(t, input, out.Bytes())
}
