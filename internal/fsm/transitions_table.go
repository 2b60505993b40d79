package fsm

// Transition is one row of the explicit state table: being in From and
// accepting Event moves the session to To, recording Reason for every
// terminal transition except the successful one into Finished, whose
// Reason is ReasonNone.
type Transition struct {
	From   State
	To     State
	Event  EventKind
	Reason ReasonCode
}

// transitionsTable enumerates every legal move in the session lifecycle.
// It is consulted only after DecisionFor has already confirmed the
// state×event pair is allowed; a row missing here for an allowed
// decision is a programming error, not a runtime one.
var transitionsTable = []Transition{
	{From: Created, To: SrcConnected, Event: EvRegisterSource, Reason: ReasonNone},
	{From: Created, To: DstConnected, Event: EvRegisterDestination, Reason: ReasonNone},

	{From: SrcConnected, To: Streaming, Event: EvRegisterDestination, Reason: ReasonNone},
	{From: DstConnected, To: Streaming, Event: EvRegisterSource, Reason: ReasonNone},

	{From: Created, To: TimeoutNoSrcNoDst, Event: EvDeadline, Reason: ReasonTimeoutNoSrcNoDst},
	{From: SrcConnected, To: TimeoutNoDst, Event: EvDeadline, Reason: ReasonTimeoutNoDst},
	{From: DstConnected, To: TimeoutNoSrc, Event: EvDeadline, Reason: ReasonTimeoutNoSrc},

	{From: Streaming, To: Finished, Event: EvStreamFinished, Reason: ReasonNone},
	{From: Streaming, To: SrcError, Event: EvSourceError, Reason: ReasonSourceError},
	{From: Streaming, To: DstError, Event: EvDestinationError, Reason: ReasonDestinationError},
	{From: Streaming, To: SrcDisconnected, Event: EvSourceDisconnected, Reason: ReasonSourceDisconnected},
	{From: Streaming, To: DstDisconnected, Event: EvDestinationDisconnected, Reason: ReasonDestinationDisconnected},

	{From: Created, To: ClientError, Event: EvClientError, Reason: ReasonClientError},
	{From: SrcConnected, To: ClientError, Event: EvClientError, Reason: ReasonClientError},
	{From: DstConnected, To: ClientError, Event: EvClientError, Reason: ReasonClientError},
	{From: Streaming, To: ClientError, Event: EvClientError, Reason: ReasonClientError},
}

// TransitionFor looks up the row governing a (from, event) pair.
func TransitionFor(from State, ev EventKind) (Transition, bool) {
	for _, t := range transitionsTable {
		if t.From == from && t.Event == ev {
			return t, true
		}
	}
	return Transition{}, false
}
