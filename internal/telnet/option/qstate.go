// Package option implements the RFC 1143 Q-state option negotiation state
// machine, the per-connection option Registry, and a BaseOption concrete
// options embed to get RFC 1143 bookkeeping for free.
package option

// QState is the six-valued RFC 1143 negotiation state for one side (us or
// them) of one option. An option is enabled on a side iff that side's state
// is QYes.
type QState int

const (
	QNo QState = iota
	QYes
	QWantNoEmpty
	QWantNoOpposite
	QWantYesEmpty
	QWantYesOpposite
)

func (s QState) String() string {
	switch s {
	case QNo:
		return "NO"
	case QYes:
		return "YES"
	case QWantNoEmpty:
		return "WANTNO_EMPTY"
	case QWantNoOpposite:
		return "WANTNO_OPPOSITE"
	case QWantYesEmpty:
		return "WANTYES_EMPTY"
	case QWantYesOpposite:
		return "WANTYES_OPPOSITE"
	default:
		return "INVALID"
	}
}

// Side names which half of the option's negotiation state a transition
// applies to: Us (whether we have the option enabled) or Them (whether the
// peer does).
type Side int

const (
	Us Side = iota
	Them
)

func (s Side) String() string {
	if s == Them {
		return "them"
	}
	return "us"
}

// requestTransition implements §4.3's local-request table. It is written
// once, generically over Side, because the table is identical for both
// sides modulo which negotiation byte gets emitted (DO/DONT for Them,
// WILL/WONT for Us) — that byte selection lives in enableByte and
// disableByte, not here.
func requestTransition(current QState, enable bool) (next QState, emit bool) {
	if enable {
		switch current {
		case QNo:
			return QWantYesEmpty, true
		case QWantNoEmpty:
			return QWantNoOpposite, false
		case QWantYesOpposite:
			return QWantYesEmpty, false
		default: // YES, WANTYES_EMPTY, WANTNO_OPPOSITE
			return current, false
		}
	}
	switch current {
	case QYes:
		return QWantNoEmpty, true
	case QWantNoOpposite:
		return QWantNoEmpty, false
	case QWantYesEmpty:
		return QWantYesOpposite, false
	default: // NO, WANTNO_EMPTY, WANTYES_OPPOSITE: already disabled or en route
		return current, false
	}
}

// The remote-response (§4.3 Respond) transition table is implemented
// directly in BaseOption.Respond rather than here: unlike the local-request
// table, several of its branches need the option's ShouldAccept callback
// and the specific reply byte simultaneously, which reads more clearly as
// one switch than as a table plus a side lookup.
