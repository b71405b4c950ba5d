package options

import (
	"encoding/binary"

	"github.com/rs/zerolog"

	"github.com/vspc/vspc/internal/telnet"
	"github.com/vspc/vspc/internal/telnet/option"
)

// OptionComPort is RFC 2217 COM-PORT (§4.7).
const OptionComPort byte = 44

const (
	comportSetBaudRate byte = 1
	comportSetDataSize byte = 2
	comportSetParity   byte = 3
	comportSetStopSize byte = 4
)

// Parity values (§4.7).
const (
	ParityNone byte = iota + 1
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// Stop-bit size values (§4.7).
const (
	StopBits1 byte = iota + 1
	StopBits2
	StopBits1_5
)

// SerialPortController receives the actual parameter changes COM-PORT
// negotiates. This is the "validation of serial parameters" Non-goal's
// collaborator: the default NopSerialPortController only logs.
type SerialPortController interface {
	SetBaudRate(v uint32)
	SetDataSize(v uint8)
	SetParity(v uint8)
	SetStopSize(v uint8)
}

// NopSerialPortController logs and otherwise ignores every change.
type NopSerialPortController struct{ Log zerolog.Logger }

func (c NopSerialPortController) SetBaudRate(v uint32) { c.Log.Debug().Uint32("baud_rate", v).Msg("comport") }
func (c NopSerialPortController) SetDataSize(v uint8)  { c.Log.Debug().Uint8("data_size", v).Msg("comport") }
func (c NopSerialPortController) SetParity(v uint8)    { c.Log.Debug().Uint8("parity", v).Msg("comport") }
func (c NopSerialPortController) SetStopSize(v uint8)  { c.Log.Debug().Uint8("stop_size", v).Msg("comport") }

// ComPort implements the access-server role of option 44 (§4.7): it
// accepts whenever the peer (the VM) requests it, and applies baud/data
// size/parity/stop-size changes via a SerialPortController, skipping
// zero-valued "query" subcommands and redundant repeats.
type ComPort struct {
	option.BaseOption

	controller SerialPortController

	baudRate uint32
	dataSize uint8
	parity   uint8
	stopSize uint8
}

// NewComPort builds a COM-PORT handler reporting changes to controller.
func NewComPort(controller SerialPortController) *ComPort {
	c := &ComPort{controller: controller}
	c.Init(c, OptionComPort, "COM-PORT")
	return c
}

// ShouldAccept accepts whenever the VM requests it.
func (c *ComPort) ShouldAccept(them bool) bool { return them }

// Subnegotiate applies a single parameter change per §4.7.
func (c *ComPort) Subnegotiate(payload []byte) error {
	if len(payload) < 1 {
		return telnet.NewProtocolError("COM-PORT: empty subnegotiation")
	}
	switch payload[0] {
	case comportSetBaudRate:
		if len(payload) < 5 {
			return telnet.NewProtocolError("COM-PORT: truncated baud rate payload")
		}
		v := binary.BigEndian.Uint32(payload[1:5])
		if v != 0 && v != c.baudRate {
			c.baudRate = v
			c.controller.SetBaudRate(v)
		}
	case comportSetDataSize:
		if len(payload) < 2 {
			return telnet.NewProtocolError("COM-PORT: truncated data size payload")
		}
		v := payload[1]
		if v != 0 && v != c.dataSize {
			c.dataSize = v
			c.controller.SetDataSize(v)
		}
	case comportSetParity:
		if len(payload) < 2 {
			return telnet.NewProtocolError("COM-PORT: truncated parity payload")
		}
		v := payload[1]
		if v != 0 && v != c.parity {
			c.parity = v
			c.controller.SetParity(v)
		}
	case comportSetStopSize:
		if len(payload) < 2 {
			return telnet.NewProtocolError("COM-PORT: truncated stop size payload")
		}
		v := payload[1]
		if v != 0 && v != c.stopSize {
			c.stopSize = v
			c.controller.SetStopSize(v)
		}
	default:
		return telnet.NewProtocolWarning("COM-PORT: unhandled subcommand %d", payload[0])
	}
	return nil
}
