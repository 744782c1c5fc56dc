// Package forgeerr defines the orchestrator's error taxonomy: a small set of
// kinds that every component classifies its failures into, so the
// coordinator can decide whether to retry, record, or abort without string
// matching on error messages.
package forgeerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure for the coordinator's propagation policy.
type Kind string

const (
	// TransientExternal is an LLM timeout or HTTP failure, recoverable
	// locally with bounded retry and backoff.
	TransientExternal Kind = "transient_external"

	// ToolFailure is a handler returning failure; recorded on the task's
	// error list, the phase may try an alternative tool call next turn.
	ToolFailure Kind = "tool_failure"

	// StateCorruption means the state document failed schema validation.
	// Fatal: the pipeline aborts.
	StateCorruption Kind = "state_corruption"

	// InvariantViolation is e.g. a disallowed task status transition.
	// The offending operation is rejected; the phase reports success=false.
	InvariantViolation Kind = "invariant_violation"

	// Timeout is any blocking call exceeding its budget.
	Timeout Kind = "timeout"

	// Cancellation is cooperative and not treated as an error by callers.
	Cancellation Kind = "cancellation"
)

// Fatal reports whether a kind should halt the coordinator loop outright.
// Only StateCorruption does; everything else is recorded and the pipeline
// continues.
func (k Kind) Fatal() bool {
	return k == StateCorruption
}

// Classified wraps an underlying error with a Kind and an optional
// human-readable remediation hint, matching the {kind, message, remediation}
// shape tool handlers must return across their boundary.
type Classified struct {
	Kind        Kind
	Remediation string
	Err         error
}

func (c *Classified) Error() string {
	if c.Remediation != "" {
		return fmt.Sprintf("%s: %v (remediation: %s)", c.Kind, c.Err, c.Remediation)
	}
	return fmt.Sprintf("%s: %v", c.Kind, c.Err)
}

func (c *Classified) Unwrap() error {
	return c.Err
}

// Classify wraps err with a Kind. A nil err yields a nil *Classified; since
// that is a typed nil pointer, returning it through an `error` result gives
// a non-nil error, so callers check err for nil before calling Classify.
func Classify(kind Kind, remediation string, err error) *Classified {
	if err == nil {
		return nil
	}
	return &Classified{Kind: kind, Remediation: remediation, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *Classified, otherwise returns ToolFailure as the conservative default.
func KindOf(err error) Kind {
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind
	}
	return ToolFailure
}

// RemediationOf extracts the Remediation hint of err if it (or something it
// wraps) is a *Classified, otherwise returns "".
func RemediationOf(err error) string {
	var c *Classified
	if errors.As(err, &c) {
		return c.Remediation
	}
	return ""
}

// Sentinel errors for conditions with no useful remediation text, following
// the teacher's sentinel-error style for conditions checked with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidState   = errors.New("invalid state")
	ErrQueueFull      = errors.New("queue full")
	ErrResponseTimeout = errors.New("response timeout")
)
