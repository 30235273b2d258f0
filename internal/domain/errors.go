package domain

import "errors"

var (
	// ErrNoDataFound is returned when no tick exists anywhere in the search
	// horizon. The ticker is routed to bad_contract.
	ErrNoDataFound = errors.New("no data found")

	// ErrInvalidTickKind is a configuration error and halts the worker.
	ErrInvalidTickKind = errors.New("invalid tick kind")

	// ErrUpstreamUnavailable marks a transient failure of the tick source.
	// The same window is retried; the cursor never advances past it.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrWriteFailure is returned when a warehouse append fails. The batch
	// stays in memory and is retried at the next flush.
	ErrWriteFailure = errors.New("warehouse write failed")

	// ErrAmbiguousSecurity is returned when a ticker resolves to zero or to
	// more than one security.
	ErrAmbiguousSecurity = errors.New("ambiguous security")
)

// RetriableError is implemented by errors that may succeed when retried.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable reports whether any error in err's chain is retriable.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// UpstreamError wraps a failed call to the tick source.
type UpstreamError struct {
	Op  string
	Err error
}

// NewUpstreamError wraps err as an upstream failure of op.
func NewUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err}
}

func (e *UpstreamError) Error() string {
	return e.Op + ": " + ErrUpstreamUnavailable.Error() + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstreamUnavailable) hold for every UpstreamError.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

func (e *UpstreamError) IsRetriable() bool { return true }
