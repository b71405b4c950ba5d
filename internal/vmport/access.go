package vmport

// AccessMode is the locking mode an admin backend requests when attaching
// to a VMPort (§4.11, wire values in §6).
type AccessMode int

const (
	ReadWrite AccessMode = iota
	ReadOnly
	Exclusive
	ExclWrite
	ReadOnlyOK
)

func (m AccessMode) String() string {
	switch m {
	case ReadWrite:
		return "READWRITE"
	case ReadOnly:
		return "READONLY"
	case Exclusive:
		return "EXCLUSIVE"
	case ExclWrite:
		return "EXCL_WRITE"
	case ReadOnlyOK:
		return "READONLY_OK"
	default:
		return "UNKNOWN"
	}
}

// determineAccess implements the §4.11 access table. Caller holds p.mu.
// It returns whether the grant is read-write and, on denial, a
// *PortAccessDenied wrapping p.PortID and mode.
//
// The exact predicate, stated once instead of per-row, is: an exclusive
// backend already present denies everything; an exclusive-write backend
// already present denies every mode except READWRITE, READONLY_OK and
// READONLY (and READWRITE itself is still denied — the safe interpretation
// from §9 open question (iv): a second writer never coexists with
// EXCL_WRITE).
func (p *VMPort) determineAccess(requested AccessMode) (writable bool, err error) {
	if p.exclusiveBackend != nil {
		return false, &PortAccessDenied{PortID: p.PortID, Mode: requested}
	}

	exclWrite := p.exclusiveWriteBackend != nil

	switch requested {
	case ReadWrite:
		if exclWrite {
			return false, &PortAccessDenied{PortID: p.PortID, Mode: requested}
		}
		return true, nil

	case ReadOnly:
		return false, nil

	case ReadOnlyOK:
		if exclWrite {
			return false, nil // downgrade to RO
		}
		return true, nil

	case Exclusive:
		if exclWrite {
			return false, &PortAccessDenied{PortID: p.PortID, Mode: requested}
		}
		if len(p.readonlyBackends) > 0 || len(p.readwriteBackends) > 0 {
			return false, &PortAccessDenied{PortID: p.PortID, Mode: requested}
		}
		return true, nil

	case ExclWrite:
		if exclWrite {
			return false, &PortAccessDenied{PortID: p.PortID, Mode: requested}
		}
		if len(p.readwriteBackends) > 0 {
			return false, &PortAccessDenied{PortID: p.PortID, Mode: requested}
		}
		return true, nil

	default:
		return false, &PortAccessDenied{PortID: p.PortID, Mode: requested}
	}
}
