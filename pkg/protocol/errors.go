package protocol

// Error codes attached to ERROR payloads.
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrAgentTimeout      = "AGENT_TIMEOUT"
	ErrUnavailable       = "UNAVAILABLE"
	ErrInternal          = "INTERNAL"
)
