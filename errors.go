package relay

import (
	"errors"
	"fmt"
)

// ErrDuplicateEndpoint is the sentinel a caller can match against with
// errors.Is; DuplicateEndpointError carries which endpoint it was.
var ErrDuplicateEndpoint = errors.New("relay: endpoint already registered")

// Endpoint names which side of a Session a DuplicateEndpointError refers to.
type Endpoint string

const (
	EndpointSource      Endpoint = "source"
	EndpointDestination Endpoint = "destination"
)

// DuplicateEndpointError is returned by RegisterSource/RegisterDestination
// when the corresponding endpoint is already present. The session's state
// does not change and no event fires when this error is returned.
type DuplicateEndpointError struct {
	Endpoint Endpoint
}

func (e *DuplicateEndpointError) Error() string {
	return fmt.Sprintf("relay: %s already registered", e.Endpoint)
}

func (e *DuplicateEndpointError) Is(target error) bool {
	return target == ErrDuplicateEndpoint
}

// ErrSessionNotActive is returned when a caller registers an endpoint that
// is not yet present on a session that has already reached a terminal
// state. RegisterClientError on a terminal session returns nil instead.
var ErrSessionNotActive = errors.New("relay: session is not active")

// ClientError represents a synchronous, caller-observed failure (for
// example a malformed upstream request) reported before or during
// streaming. It carries enough to answer an HTTP-shaped caller directly.
type ClientError struct {
	HTTPStatus int
	Name       string
	Message    string
}

func (e ClientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Name
}
