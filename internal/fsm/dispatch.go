package fsm

import "fmt"

// IllegalTransitionError reports a rejected (state, event) pair together
// with the decision table's reason code, mirroring this codebase's habit
// of surfacing the forbidding reason rather than a bare "invalid" error.
type IllegalTransitionError struct {
	From   State
	Event  EventKind
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("fsm: %s rejected in state %s: %s", eventLabel(e.Event), e.From, e.Reason)
}

var eventLabels = [...]string{
	"EvRegisterSource",
	"EvRegisterDestination",
	"EvDeadline",
	"EvStreamFinished",
	"EvSourceError",
	"EvDestinationError",
	"EvSourceDisconnected",
	"EvDestinationDisconnected",
	"EvClientError",
}

func eventLabel(ev EventKind) string {
	if int(ev) < 0 || int(ev) >= len(eventLabels) {
		return "EvUnknown"
	}
	return eventLabels[ev]
}

// Dispatch is the single entry point through which a session may change
// state. It enforces terminal absorption before anything else, then
// consults the decision table and, if allowed, the transition table,
// returning the resulting Transition. Callers (the Session type) are
// responsible for serializing calls to Dispatch per session instance;
// Dispatch itself performs no locking.
func Dispatch(from State, ev Event) (Transition, error) {
	d := DecisionFor(from, ev.Kind)
	if !d.Allowed {
		return Transition{}, &IllegalTransitionError{From: from, Event: ev.Kind, Reason: d.Reason}
	}

	t, ok := TransitionFor(from, ev.Kind)
	if !ok {
		return Transition{}, &IllegalTransitionError{From: from, Event: ev.Kind, Reason: ForbiddenOutOfOrder}
	}

	return t, nil
}
