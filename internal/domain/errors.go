package domain

import "fmt"

// EngineError is the unified error type for the engine.
// Each error has a numeric code, the stage that produced it (if any),
// a human-readable message and an optional cause.
type EngineError struct {
	Code    int
	Stage   Stage
	Message string
	Err     error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("engine error %d [%s]: %s", e.Code, e.Stage, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an EngineError with the same code, so that
// errors.Is(err, ErrPersistence) matches any persistence failure.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: msg, Err: cause}
}

// StageError builds an error of the sentinel's kind attributed to a stage.
func StageError(kind *EngineError, stage Stage, cause error) *EngineError {
	return &EngineError{Code: kind.Code, Stage: stage, Message: kind.Message, Err: cause}
}

// ---- Workflow errors (-32200 to -32229) ----

var (
	ErrClassification    = &EngineError{Code: -32200, Message: "classifier returned an unknown category"}
	ErrCollaborator      = &EngineError{Code: -32201, Message: "collaborator failed"}
	ErrPersistence       = &EngineError{Code: -32202, Message: "escalation record could not be persisted"}
	ErrInvalidTransition = &EngineError{Code: -32203, Message: "invalid stage transition"}
	ErrInvalidTicket     = &EngineError{Code: -32204, Message: "ticket has neither subject nor description"}
	ErrRunCancelled      = &EngineError{Code: -32205, Message: "run cancelled"}
	ErrRunNotFound       = &EngineError{Code: -32206, Message: "run not found"}
)

// ---- Intake errors (-32300 to -32319) ----

var (
	ErrRateLimitExceeded = &EngineError{Code: -32300, Message: "rate limit exceeded"}
	ErrTicketTooLarge    = &EngineError{Code: -32301, Message: "ticket exceeds size limit"}
)

// ---- Store / Config errors (-32130 to -32159) ----

var (
	ErrStoreInit      = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery     = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite     = &EngineError{Code: -32132, Message: "store write failed"}
	ErrConfigInvalid  = &EngineError{Code: -32136, Message: "invalid configuration"}
	ErrDuplicateEvent = &EngineError{Code: -32137, Message: "duplicate event sequence number"}
)
