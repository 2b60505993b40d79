// Package relay implements a protocol-agnostic streaming relay: a
// Session pairs exactly one Source with exactly one Destination and
// forwards bytes between them while tracking lifecycle state, byte
// counts, and terminal outcomes. SessionManager owns the population of
// Sessions, enforces a TTL on idle entries, and bounds how many may be
// active concurrently.
package relay

import "context"

// Source is the read side of a relayed stream. Read is pull-based: the
// forwarding goroutine calls it once per chunk and blocks until data,
// EOF, or an error is available. Each chunk is handed to the writer over
// an unbuffered channel, so at most one chunk is read ahead of the
// Destination.Write in progress; a slow Destination therefore stalls the
// Source side too — backpressure falls out of the call shape instead of
// an explicit buffer.
type Source interface {
	// Read returns the next chunk of stream data. eof=true with a nil
	// error signals a clean end of stream; a non-nil err is always
	// terminal. p may be reused by the caller after Read returns.
	Read(ctx context.Context) (p []byte, eof bool, err error)

	// CloseNotify is closed when the source disconnects out-of-band
	// (e.g. the underlying connection drops) without Read ever
	// returning an error.
	CloseNotify() <-chan struct{}
}

// Destination is the write side of a relayed stream.
type Destination interface {
	// Write forwards a chunk and blocks until it has been accepted by
	// the destination, giving the relay backpressure for free.
	Write(ctx context.Context, p []byte) (n int, err error)

	// Drained is closed once the destination has flushed everything
	// written to it. A session waits on it after source EOF before
	// declaring the stream finished, so FINISHED means the destination
	// actually has every byte, not just that the source ran dry.
	Drained() <-chan struct{}

	// CloseNotify is closed when the destination disconnects out-of-band.
	CloseNotify() <-chan struct{}
}
