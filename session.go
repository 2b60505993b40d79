package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/relaycore/relay/internal/fsm"
	"github.com/relaycore/relay/internal/log"
	"github.com/relaycore/relay/internal/metrics"
	"github.com/relaycore/relay/internal/tracing"
)

// sessionDeps are the collaborators a SessionManager wires into every
// Session it creates. Kept separate from Session's public surface so
// tests can build a Session directly with minimal deps.
type sessionDeps struct {
	ttl        time.Duration
	limiter    *rate.Limiter
	metrics    *metrics.Recorder
	onTerminal func(*Session)
}

// Session tracks one source<->destination pairing through its state
// machine, pipes bytes between them once both are attached, and emits
// at most one terminal event (none when Deactivate ends it first). See
// fsm.State for the full state set.
type Session struct {
	id string

	mu        sync.Mutex
	state     fsm.State
	reason    fsm.ReasonCode
	message   string
	hasSrc    bool
	hasDst    bool
	src       Source
	dst       Destination
	clientErr *ClientError
	released  bool

	bytesTransferred int64 // atomic
	active           int32 // atomic; 1 while session is live

	createdAt time.Time
	deadline  time.Time
	timer     *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	pipeWG sync.WaitGroup

	subs *subscriptions

	deps sessionDeps

	span        trace.Span
	logger      zerolog.Logger
	ttfbRecord  sync.Once
	streamStart time.Time
}

func newSession(parentCtx context.Context, id string, deps sessionDeps) *Session {
	spanCtx, span := tracing.StartSession(parentCtx, id)
	ctx, cancel := context.WithCancel(spanCtx)

	now := time.Now()
	s := &Session{
		id:        id,
		state:     fsm.Created,
		active:    1,
		createdAt: now,
		deadline:  now.Add(deps.ttl),
		ctx:       ctx,
		cancel:    cancel,
		subs:      newSubscriptions(),
		deps:      deps,
		span:      span,
		logger:    log.Derive(func(c *zerolog.Context) { *c = c.Str("session_id", id) }),
	}
	s.timer = time.AfterFunc(deps.ttl, s.onDeadline)
	return s
}

// ID returns the session's stable identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current fsm state.
func (s *Session) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BytesTransferred returns the running total of bytes the destination
// has accepted. Safe to read from any goroutine.
func (s *Session) BytesTransferred() int64 {
	return atomic.LoadInt64(&s.bytesTransferred)
}

// Active reports whether the session has not yet released its resources.
func (s *Session) Active() bool {
	return atomic.LoadInt32(&s.active) == 1
}

// ClientErr returns the registered client error, if any.
func (s *Session) ClientErr() (ClientError, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clientErr == nil {
		return ClientError{}, false
	}
	return *s.clientErr, true
}

// On registers a persistent handler for ev.
func (s *Session) On(ev SessionEvent, h Handler) {
	s.subs.on(ev, h, false)
}

// Once registers a handler for ev that fires at most once.
func (s *Session) Once(ev SessionEvent, h Handler) {
	s.subs.on(ev, h, true)
}

// RegisterSource attaches src as the session's producer. Returns a
// *DuplicateEndpointError if a source is already registered.
func (s *Session) RegisterSource(src Source) error {
	if src == nil {
		return fmt.Errorf("relay: nil source")
	}
	s.mu.Lock()
	if s.hasSrc {
		s.mu.Unlock()
		return &DuplicateEndpointError{Endpoint: EndpointSource}
	}
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	tr, err := fsm.Dispatch(s.state, fsm.Event{Kind: fsm.EvRegisterSource})
	if err != nil {
		s.mu.Unlock()
		return &DuplicateEndpointError{Endpoint: EndpointSource}
	}
	s.hasSrc = true
	s.src = src
	from := s.state
	s.state = tr.To
	tracing.AddTransitionEvent(s.span, from.String(), tr.To.String(), "register_source")
	entering := tr.To
	if entering == fsm.Streaming {
		s.startPipeLocked()
	}
	s.mu.Unlock()
	return nil
}

// RegisterDestination attaches dst as the session's consumer. Returns a
// *DuplicateEndpointError if a destination is already registered.
func (s *Session) RegisterDestination(dst Destination) error {
	if dst == nil {
		return fmt.Errorf("relay: nil destination")
	}
	s.mu.Lock()
	if s.hasDst {
		s.mu.Unlock()
		return &DuplicateEndpointError{Endpoint: EndpointDestination}
	}
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	tr, err := fsm.Dispatch(s.state, fsm.Event{Kind: fsm.EvRegisterDestination})
	if err != nil {
		s.mu.Unlock()
		return &DuplicateEndpointError{Endpoint: EndpointDestination}
	}
	s.hasDst = true
	s.dst = dst
	from := s.state
	s.state = tr.To
	tracing.AddTransitionEvent(s.span, from.String(), tr.To.String(), "register_destination")
	entering := tr.To
	if entering == fsm.Streaming {
		s.startPipeLocked()
	}
	s.mu.Unlock()
	return nil
}

// RegisterClientError records ce and synchronously finalizes the session
// into CLIENT_ERROR. It is idempotent: called on an already-terminal
// session it does nothing. The client_error event's handlers run to
// completion, and resources are released, before this method returns.
func (s *Session) RegisterClientError(ce ClientError) error {
	s.terminalTransition(fsm.EvClientError, ce.Error(), &ce)
	// terminalTransition cancels the pipe's context as part of release;
	// wait for a concurrently running pipeLoop (if any) to observe it
	// and exit before client_error handlers are treated as the last
	// word. Safe here specifically because this call never runs on the
	// pipeLoop goroutine itself.
	s.pipeWG.Wait()
	return nil
}

// Deactivate forcibly releases resources and disarms the timer without
// emitting any event. It is idempotent and callable from any state.
func (s *Session) Deactivate() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()

	s.disarmTimer()
	s.cancel()
	s.pipeWG.Wait()
	atomic.StoreInt32(&s.active, 0)
	tracing.EndTerminal(s.span, s.State().String(), "deactivated", s.BytesTransferred())
	if s.deps.onTerminal != nil {
		s.deps.onTerminal(s)
	}
}

func (s *Session) onDeadline() {
	s.terminalTransition(fsm.EvDeadline, "", nil)
}

// terminalTransition drives the session from its current state into a
// terminal one via kind, then fires the corresponding public event and
// releases resources. A terminalTransition call on an already-terminal
// session, or one the decision table forbids, is silently ignored: once
// any terminal event fires, subsequent signals are ignored.
func (s *Session) terminalTransition(kind fsm.EventKind, message string, clientErr *ClientError) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	tr, err := fsm.Dispatch(s.state, fsm.Event{Kind: kind})
	if err != nil {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = tr.To
	s.reason = tr.Reason
	s.message = message
	if clientErr != nil {
		s.clientErr = clientErr
	}
	tracing.AddTransitionEvent(s.span, from.String(), tr.To.String(), eventName(kind))
	outcome := s.snapshotOutcomeLocked()
	s.mu.Unlock()

	s.finalizeTerminal(sessionEventFor(kind), outcome)
}

func (s *Session) snapshotOutcomeLocked() Outcome {
	return Outcome{
		SessionID:        s.id,
		State:            s.state,
		Reason:           s.reason,
		Message:          s.message,
		BytesTransferred: atomic.LoadInt64(&s.bytesTransferred),
		ClientErr:        s.clientErr,
	}
}

// finalizeTerminal releases resources in a fixed order: fire the event
// and let observers run to completion (1), disarm the timer (2),
// release stream handles (3), then flip active to false (4).
func (s *Session) finalizeTerminal(ev SessionEvent, outcome Outcome) {
	s.logger.Info().
		Str(log.FieldStateTo, outcome.State.String()).
		Str(log.FieldReason, string(outcome.Reason)).
		Int64(log.FieldBytesTransferred, outcome.BytesTransferred).
		Msg("session reached terminal state")

	s.subs.fire(ev, outcome)

	s.disarmTimer()
	s.cancel()

	s.mu.Lock()
	s.src = nil
	s.dst = nil
	alreadyReleased := s.released
	s.released = true
	s.mu.Unlock()

	atomic.StoreInt32(&s.active, 0)
	tracing.EndTerminal(s.span, outcome.State.String(), string(outcome.Reason), outcome.BytesTransferred)
	s.deps.metrics.RecordTerminal(string(outcome.Reason))

	if !alreadyReleased && s.deps.onTerminal != nil {
		s.deps.onTerminal(s)
	}
}

func (s *Session) disarmTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

// startPipeLocked begins forwarding bytes from source to destination. It
// is called with s.mu held, on entry to fsm.Streaming.
func (s *Session) startPipeLocked() {
	s.disarmTimer()
	s.streamStart = time.Now()
	s.pipeWG.Add(1)
	// Capture src/dst now, under the lock: finalizeTerminal clears
	// s.src/s.dst on release, and this goroutine must not race that
	// write by re-reading the fields on every loop iteration.
	go s.pipeLoop(s.src, s.dst)
}

type readResult struct {
	p   []byte
	eof bool
	err error
}

// pipeLoop forwards bytes from source to destination until end of
// stream, an error, or a premature disconnect on either side, then
// drives the matching terminal transition. Backpressure comes from the
// unbuffered reads channel: the reader goroutine can fetch at most one
// chunk ahead of the dst.Write in progress before it blocks.
func (s *Session) pipeLoop(src Source, dst Destination) {
	defer s.pipeWG.Done()

	reads := make(chan readResult)
	go func() {
		defer close(reads)
		for {
			p, eof, err := src.Read(s.ctx)
			select {
			case reads <- readResult{p: p, eof: eof, err: err}:
			case <-s.ctx.Done():
				return
			}
			if eof || err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-src.CloseNotify():
			s.terminalTransition(fsm.EvSourceDisconnected, "Source disconnected before end", nil)
			return
		case <-dst.CloseNotify():
			s.terminalTransition(fsm.EvDestinationDisconnected, "Destination disconnected before end", nil)
			return
		case res, ok := <-reads:
			if !ok {
				return
			}
			if res.err != nil {
				s.terminalTransition(fsm.EvSourceError, fmt.Sprintf("Source error: %s", res.err.Error()), nil)
				return
			}
			if res.eof {
				select {
				case <-dst.Drained():
				case <-dst.CloseNotify():
					s.terminalTransition(fsm.EvDestinationDisconnected, "Destination disconnected before end", nil)
					return
				case <-s.ctx.Done():
					return
				}
				s.terminalTransition(fsm.EvStreamFinished, "", nil)
				return
			}
			if len(res.p) == 0 {
				continue
			}
			if s.deps.limiter != nil {
				if werr := s.deps.limiter.WaitN(s.ctx, len(res.p)); werr != nil {
					return
				}
			}
			n, werr := dst.Write(s.ctx, res.p)
			if werr != nil {
				s.terminalTransition(fsm.EvDestinationError, fmt.Sprintf("Destination error: %s", werr.Error()), nil)
				return
			}
			s.ttfbRecord.Do(func() {
				s.deps.metrics.ObserveTTFB(time.Since(s.streamStart))
			})
			atomic.AddInt64(&s.bytesTransferred, int64(n))
		}
	}
}

func eventName(kind fsm.EventKind) string {
	switch kind {
	case fsm.EvRegisterSource:
		return "register_source"
	case fsm.EvRegisterDestination:
		return "register_destination"
	case fsm.EvDeadline:
		return "deadline"
	case fsm.EvStreamFinished:
		return "stream_finished"
	case fsm.EvSourceError:
		return "source_error"
	case fsm.EvDestinationError:
		return "destination_error"
	case fsm.EvSourceDisconnected:
		return "source_disconnected"
	case fsm.EvDestinationDisconnected:
		return "destination_disconnected"
	case fsm.EvClientError:
		return "client_error"
	default:
		return "unknown"
	}
}

func sessionEventFor(kind fsm.EventKind) SessionEvent {
	switch kind {
	case fsm.EvDeadline:
		return EventTimeout
	case fsm.EvStreamFinished:
		return EventFinished
	case fsm.EvClientError:
		return EventClientError
	default:
		return EventError
	}
}
