// Package fsm holds the session state machine's single source of truth:
// the state labels, the event vocabulary, and the table of allowed
// transitions between them. Nothing here talks to streams, timers, or
// the network — it is pure data plus pure functions, generalized from
// the decision/transition table pairing this codebase already used for
// its stream-session lifecycle.
package fsm

// State is a tagged variant for the session lifecycle. It is backed by
// an int rather than a bare string so illegal states can't be
// constructed by typo; String() is the stable label used by logs,
// metrics, and tests.
type State int

const (
	Created State = iota
	SrcConnected
	DstConnected
	Streaming
	Finished
	TimeoutNoSrcNoDst
	TimeoutNoDst
	TimeoutNoSrc
	SrcError
	DstError
	SrcDisconnected
	DstDisconnected
	ClientError
)

var stateLabels = [...]string{
	"CREATED",
	"SRC_CONNECTED",
	"DST_CONNECTED",
	"STREAMING",
	"FINISHED",
	"TIMEOUT_NO_SRC_NO_DST",
	"TIMEOUT_NO_DST",
	"TIMEOUT_NO_SRC",
	"SRC_ERROR",
	"DST_ERROR",
	"SRC_DISCONNECTED",
	"DST_DISCONNECTED",
	"CLIENT_ERROR",
}

// String returns the observable label for the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateLabels) {
		return "UNKNOWN"
	}
	return stateLabels[s]
}

// IsTerminal reports whether s is one of the session's end-of-life states.
func (s State) IsTerminal() bool {
	switch s {
	case Finished, TimeoutNoSrcNoDst, TimeoutNoDst, TimeoutNoSrc,
		SrcError, DstError, SrcDisconnected, DstDisconnected, ClientError:
		return true
	default:
		return false
	}
}
