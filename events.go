package relay

import (
	"sync"

	"github.com/relaycore/relay/internal/fsm"
)

// SessionEvent is the public subscription topic a Handler registers
// against. It is coarser than fsm.EventKind: callers care about the
// class of terminal outcome, not the exact internal transition that
// produced it.
type SessionEvent int

const (
	// EventFinished fires when streaming completed and the source
	// reported a clean end of stream.
	EventFinished SessionEvent = iota
	// EventTimeout fires for any of the three timeout verdicts.
	EventTimeout
	// EventError fires for source/destination errors or unexpected
	// disconnects during streaming.
	EventError
	// EventClientError fires when RegisterClientError finalized the
	// session synchronously.
	EventClientError
)

func (e SessionEvent) String() string {
	switch e {
	case EventFinished:
		return "finished"
	case EventTimeout:
		return "timeout"
	case EventError:
		return "error"
	case EventClientError:
		return "client_error"
	default:
		return "unknown"
	}
}

// Outcome is the payload delivered to every Handler when a Session
// reaches a terminal state.
type Outcome struct {
	SessionID        string
	State            fsm.State
	Reason           fsm.ReasonCode
	Message          string
	BytesTransferred int64
	ClientErr        *ClientError
}

// Handler observes a terminal Session outcome. Handlers run synchronously,
// in registration order, on the goroutine that drove the session into its
// terminal state, and to completion before Active() flips to false — a
// handler that blocks holds up the session's own teardown.
type Handler func(Outcome)

type handlerEntry struct {
	h    Handler
	once bool
}

// subscriptions is an in-process, synchronous replacement for a
// publish/subscribe bus: this module has no cross-process or persisted
// event delivery to support, so a direct callback registry is enough.
type subscriptions struct {
	mu       sync.Mutex
	handlers map[SessionEvent][]handlerEntry
}

func newSubscriptions() *subscriptions {
	return &subscriptions{handlers: make(map[SessionEvent][]handlerEntry)}
}

func (s *subscriptions) on(ev SessionEvent, h Handler, once bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[ev] = append(s.handlers[ev], handlerEntry{h: h, once: once})
}

// fire invokes every handler registered for ev, in registration order,
// removing one-shot handlers as it goes. The Session calling this has
// already unlocked its own mutex and committed its terminal state, so
// handlers observe a consistent, already-terminal session without
// holding up any other session operation.
func (s *subscriptions) fire(ev SessionEvent, o Outcome) {
	s.mu.Lock()
	entries := s.handlers[ev]
	// remaining gets its own backing array: entries[:0] would alias the
	// same array and corrupt entries in place once a once-handler drops
	// out ahead of a persistent one, before the fire loop below even runs.
	remaining := make([]handlerEntry, 0, len(entries))
	for _, e := range entries {
		if !e.once {
			remaining = append(remaining, e)
		}
	}
	s.handlers[ev] = remaining
	s.mu.Unlock()

	for _, e := range entries {
		e.h(o)
	}
}
