package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the pipeline wraps exactly one of these.
var (
	// ErrIngest indicates a source that is unreachable, unparsable or empty.
	ErrIngest = errors.New("ingest failed")

	// ErrConfig indicates invalid configuration or parameters.
	ErrConfig = errors.New("invalid configuration")

	// ErrEmbedding indicates the embedding provider failed or answered malformed data.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStore indicates a vector store connection, create, add or query failure.
	ErrStore = errors.New("vector store failed")

	// ErrQuotaExceeded indicates a collection would grow beyond its quota.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrGeneration indicates the language model call failed.
	ErrGeneration = errors.New("generation failed")

	// ErrTimeout indicates a bounded wait on an external call expired.
	// Unlike the other kinds it is retryable.
	ErrTimeout = errors.New("timeout")
)

// Error ties a failure to its kind and the operation that produced it.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns an *Error of the given kind. A nil err yields a bare kind error.
func Wrap(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is Wrap with a formatted cause.
func Errorf(kind error, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Classify wraps err with kind, unless err is a deadline expiry, which becomes ErrTimeout.
// Errors that already carry a kind are returned unchanged.
func Classify(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrTimeout, op, err)
	}
	return Wrap(kind, op, err)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}
