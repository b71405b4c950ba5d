package option

// Unknown is installed by the Registry for any option code with no
// registered handler. It rejects every negotiation (BaseOption's default
// ShouldAccept) and drops any subnegotiation payload.
type Unknown struct {
	BaseOption
}

// NewUnknown builds an Unknown handler for code.
func NewUnknown(code byte) *Unknown {
	u := &Unknown{}
	u.Init(u, code, "unknown")
	return u
}
