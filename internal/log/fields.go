package log

// Canonical field name constants for structured logging, kept here so
// callers never hand-spell a key and risk drifting from what the tests
// and dashboards expect.
const (
	FieldSessionID     = "session_id"
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"

	FieldEvent     = "event"
	FieldComponent = "component"

	FieldStateFrom = "state_from"
	FieldStateTo   = "state_to"
	FieldReason    = "reason"

	FieldBytesTransferred = "bytes_transferred"
)
