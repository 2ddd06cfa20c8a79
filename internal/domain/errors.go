package domain

import (
	"errors"
	"strconv"
)

// Domain errors.
var (
	// ErrExecutableNotFound is returned when the external tool cannot be located.
	ErrExecutableNotFound = errors.New("executable not found")

	// ErrSpawn is returned when the OS refuses to start the external process.
	ErrSpawn = errors.New("failed to spawn process")

	// ErrStreamRead is returned when reading the child's output fails.
	ErrStreamRead = errors.New("failed to read process output")

	// ErrRetryable marks a transient attempt failure.
	ErrRetryable = errors.New("retryable failure")

	// ErrFatal marks a permanent failure that must not be retried.
	ErrFatal = errors.New("fatal failure")

	// ErrGaveUp is returned when retryable failures exhausted the attempt ceiling.
	ErrGaveUp = errors.New("gave up after retries")

	// ErrCancelled is returned when the caller cancelled the invocation.
	ErrCancelled = errors.New("invocation cancelled")

	// ErrInvalidRequest is returned when a download request is malformed.
	ErrInvalidRequest = errors.New("invalid download request")

	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrJobFinished is returned when cancelling a job that already reached a terminal state.
	ErrJobFinished = errors.New("job already finished")
)

// ErrorKind classifies invocation errors.
type ErrorKind string

const (
	KindLocatorNotFound ErrorKind = "locator_not_found"
	KindSpawn           ErrorKind = "spawn_error"
	KindStreamRead      ErrorKind = "stream_read_error"
	KindRetryable       ErrorKind = "retryable_failure"
	KindFatal           ErrorKind = "fatal_failure"
	KindGaveUp          ErrorKind = "gave_up"
	KindCancelled       ErrorKind = "cancelled"
)

// Sentinel returns the sentinel error matching the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindLocatorNotFound:
		return ErrExecutableNotFound
	case KindSpawn:
		return ErrSpawn
	case KindStreamRead:
		return ErrStreamRead
	case KindRetryable:
		return ErrRetryable
	case KindGaveUp:
		return ErrGaveUp
	case KindCancelled:
		return ErrCancelled
	default:
		return ErrFatal
	}
}

// IsConfigError reports whether the kind is a non-retryable setup problem
// rather than a failure of the download itself.
func (k ErrorKind) IsConfigError() bool {
	return k == KindLocatorNotFound || k == KindSpawn
}

// InvocationError wraps an error with invocation context.
type InvocationError struct {
	Kind    ErrorKind
	Op      string
	URL     string
	Attempt int
	Err     error
}

func (e *InvocationError) Error() string {
	msg := e.Op
	if e.URL != "" {
		msg += " [" + e.URL + "]"
	}
	if e.Attempt > 0 {
		msg += " attempt " + strconv.Itoa(e.Attempt)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + ": " + e.Kind.Sentinel().Error()
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind, so callers can use
// errors.Is(err, domain.ErrGaveUp) regardless of the wrapped cause.
func (e *InvocationError) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

// NewInvocationError creates a new InvocationError.
func NewInvocationError(kind ErrorKind, op string, err error) *InvocationError {
	return &InvocationError{
		Kind: kind,
		Op:   op,
		Err:  err,
	}
}

// KindOf extracts the ErrorKind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var ie *InvocationError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}
