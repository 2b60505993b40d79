package relay

import (
	"context"
	"sync"
)

// fakeSource is a hand-written Source double: it replays a fixed set of
// chunks, then reports EOF, an injected error, or waits to be closed
// out-of-band, depending on how the test configured it.
type fakeSource struct {
	mu      sync.Mutex
	chunks  [][]byte
	idx     int
	err     error
	closed  chan struct{}
	blocked bool // if true, Read hangs (ctx-cancellable) once chunks are exhausted instead of signaling EOF
}

func newFakeSource(chunks ...[]byte) *fakeSource {
	return &fakeSource{chunks: chunks, closed: make(chan struct{})}
}

// newBlockingFakeSource never produces a chunk and never reaches EOF on
// its own; it only yields via ctx cancellation, for tests that drive the
// terminal transition from the destination side instead.
func newBlockingFakeSource() *fakeSource {
	return &fakeSource{closed: make(chan struct{}), blocked: true}
}

func (f *fakeSource) Read(ctx context.Context) ([]byte, bool, error) {
	f.mu.Lock()
	if f.idx < len(f.chunks) {
		c := f.chunks[f.idx]
		f.idx++
		f.mu.Unlock()
		return c, false, nil
	}
	if f.err != nil {
		defer f.mu.Unlock()
		return nil, false, f.err
	}
	blocked := f.blocked
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	return nil, true, nil
}

func (f *fakeSource) CloseNotify() <-chan struct{} { return f.closed }

// failAfterChunks arranges for Read to return err once every chunk has
// been replayed.
func (f *fakeSource) failAfterChunks(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) triggerDisconnect() { close(f.closed) }

// fakeDestination is a hand-written Destination double. It is
// "always drained" by default (Drained's channel is pre-closed), since
// none of this module's scenarios need to test a destination that lags
// behind its last accepted write.
type fakeDestination struct {
	mu       sync.Mutex
	received []byte
	err      error
	closed   chan struct{}
	drained  chan struct{}
}

func newFakeDestination() *fakeDestination {
	drained := make(chan struct{})
	close(drained)
	return &fakeDestination{closed: make(chan struct{}), drained: drained}
}

func (f *fakeDestination) Write(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.received = append(f.received, p...)
	return len(p), nil
}

func (f *fakeDestination) Drained() <-chan struct{}     { return f.drained }
func (f *fakeDestination) CloseNotify() <-chan struct{} { return f.closed }

func (f *fakeDestination) failNextWrite(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeDestination) triggerDisconnect() { close(f.closed) }

func (f *fakeDestination) bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.received))
	copy(out, f.received)
	return out
}
