package conn

import "github.com/vspc/vspc/internal/telnet/option"

const (
	optionBinary byte = 0
	optionSGA    byte = 3
)

// binaryOption implements BINARY (§4.5): always accept on both sides, no
// subnegotiation.
type binaryOption struct {
	option.BaseOption
}

func newBinary() *binaryOption {
	o := &binaryOption{}
	o.Init(o, optionBinary, "BINARY")
	return o
}

func (o *binaryOption) ShouldAccept(them bool) bool { return true }

// sgaOption implements SUPPRESS-GO-AHEAD (§4.5): always accept on both
// sides, no subnegotiation.
type sgaOption struct {
	option.BaseOption
}

func newSGA() *sgaOption {
	o := &sgaOption{}
	o.Init(o, optionSGA, "SUPPRESS-GO-AHEAD")
	return o
}

func (o *sgaOption) ShouldAccept(them bool) bool { return true }
