package fsm

const (
	ForbiddenTerminalAbsorbing = "terminal_absorbing"
	ForbiddenOutOfOrder        = "out_of_order"
	ForbiddenDuplicateEndpoint = "duplicate_endpoint"
)

// Decision records whether a transition is allowed and, if not, why.
type Decision struct {
	Allowed bool
	Reason  string
}

func allowed() Decision        { return Decision{Allowed: true} }
func forbid(r string) Decision { return Decision{Allowed: false, Reason: r} }

// decisionTable defines an explicit decision for every State×Event
// combination the session can reach. Unlisted combinations are forbidden
// with ForbiddenOutOfOrder by DecisionFor's fallback.
var decisionTable = map[State]map[EventKind]Decision{
	Created: {
		EvRegisterSource:      allowed(),
		EvRegisterDestination: allowed(),
		EvDeadline:            allowed(),
		EvClientError:         allowed(),
	},
	SrcConnected: {
		EvRegisterSource:      forbid(ForbiddenDuplicateEndpoint),
		EvRegisterDestination: allowed(),
		EvDeadline:            allowed(),
		EvClientError:         allowed(),
	},
	DstConnected: {
		EvRegisterSource:      allowed(),
		EvRegisterDestination: forbid(ForbiddenDuplicateEndpoint),
		EvDeadline:            allowed(),
		EvClientError:         allowed(),
	},
	Streaming: {
		EvRegisterSource:           forbid(ForbiddenDuplicateEndpoint),
		EvRegisterDestination:      forbid(ForbiddenDuplicateEndpoint),
		EvStreamFinished:           allowed(),
		EvSourceError:              allowed(),
		EvDestinationError:         allowed(),
		EvSourceDisconnected:       allowed(),
		EvDestinationDisconnected:  allowed(),
		EvClientError:              allowed(),
	},
}

// terminalDecisions is shared by every terminal state: once terminal,
// every event is absorbed and forbidden.
var terminalDecisions = map[EventKind]Decision{
	EvRegisterSource:          forbid(ForbiddenTerminalAbsorbing),
	EvRegisterDestination:     forbid(ForbiddenTerminalAbsorbing),
	EvDeadline:                forbid(ForbiddenTerminalAbsorbing),
	EvStreamFinished:          forbid(ForbiddenTerminalAbsorbing),
	EvSourceError:             forbid(ForbiddenTerminalAbsorbing),
	EvDestinationError:        forbid(ForbiddenTerminalAbsorbing),
	EvSourceDisconnected:      forbid(ForbiddenTerminalAbsorbing),
	EvDestinationDisconnected: forbid(ForbiddenTerminalAbsorbing),
	EvClientError:             forbid(ForbiddenTerminalAbsorbing),
}

// DecisionFor returns the explicit decision for state×event.
func DecisionFor(from State, ev EventKind) Decision {
	if from.IsTerminal() {
		if d, ok := terminalDecisions[ev]; ok {
			return d
		}
		return forbid(ForbiddenTerminalAbsorbing)
	}
	m, ok := decisionTable[from]
	if !ok {
		return forbid(ForbiddenOutOfOrder)
	}
	d, ok := m[ev]
	if !ok {
		return forbid(ForbiddenOutOfOrder)
	}
	return d
}
