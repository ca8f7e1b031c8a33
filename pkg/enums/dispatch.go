package enums

import "fmt"

// DispatchStatus maps to the dispatch_status enum in Postgres.
type DispatchStatus string

const (
	DispatchQueued         DispatchStatus = "QUEUED"
	DispatchClaimed        DispatchStatus = "CLAIMED"
	DispatchSucceeded      DispatchStatus = "SUCCEEDED"
	DispatchFailedTerminal DispatchStatus = "FAILED_TERMINAL"
	DispatchExpired        DispatchStatus = "EXPIRED"
)

var validDispatchStatuses = []DispatchStatus{
	DispatchQueued,
	DispatchClaimed,
	DispatchSucceeded,
	DispatchFailedTerminal,
	DispatchExpired,
}

// IsValid reports whether the value matches the canonical dispatch_status enum.
func (s DispatchStatus) IsValid() bool {
	for _, candidate := range validDispatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s DispatchStatus) IsTerminal() bool {
	return s == DispatchSucceeded || s == DispatchFailedTerminal || s == DispatchExpired
}

// ParseDispatchStatus converts raw input into DispatchStatus.
func ParseDispatchStatus(value string) (DispatchStatus, error) {
	for _, candidate := range validDispatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispatch status %q", value)
}

// DispatchMode controls ordering behavior within a message group.
type DispatchMode string

const (
	ModeImmediate    DispatchMode = "IMMEDIATE"
	ModeBlockOnError DispatchMode = "BLOCK_ON_ERROR"
)

// IsValid reports whether the value matches the canonical dispatch_mode enum.
func (m DispatchMode) IsValid() bool {
	return m == ModeImmediate || m == ModeBlockOnError
}

// ParseDispatchMode converts raw input into DispatchMode.
func ParseDispatchMode(value string) (DispatchMode, error) {
	switch DispatchMode(value) {
	case ModeImmediate:
		return ModeImmediate, nil
	case ModeBlockOnError:
		return ModeBlockOnError, nil
	}
	return "", fmt.Errorf("invalid dispatch mode %q", value)
}

// DispatchProtocol identifies the delivery transport for a job.
type DispatchProtocol string

const (
	ProtocolHTTPWebhook DispatchProtocol = "HTTP_WEBHOOK"
)

// AttemptErrorType classifies a failed delivery attempt.
type AttemptErrorType string

const (
	AttemptErrorTimeout AttemptErrorType = "TIMEOUT"
	AttemptErrorNetwork AttemptErrorType = "NETWORK"
	AttemptErrorHTTP4xx AttemptErrorType = "HTTP_4XX"
	AttemptErrorHTTP5xx AttemptErrorType = "HTTP_5XX"
)

// AttemptStatus maps to the attempt_status enum in Postgres.
type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "SUCCEEDED"
	AttemptFailed    AttemptStatus = "FAILED"
)

// RetryStrategy names the backoff curve applied between attempts.
type RetryStrategy string

const (
	RetryExponential RetryStrategy = "exponential"
)
