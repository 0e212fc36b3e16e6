package table

import (
	"errors"
	"fmt"
)

// ErrorKind classifies analysis failures for the caller. The analyzer never
// partially succeeds: any failure during log reading or reconciliation aborts
// the whole run with exactly one of these kinds.
type ErrorKind int

const (
	// KindInvalidInput marks malformed paths or configuration, raised
	// before any network access.
	KindInvalidInput ErrorKind = iota
	// KindNotFound marks an absent table root, object, or snapshot.
	KindNotFound
	// KindAccessDenied marks credential or permission failures from the store.
	KindAccessDenied
	// KindMissingLog marks a table root with no transaction log or metadata.
	KindMissingLog
	// KindCorrupt marks a log, checkpoint, or manifest that fails to parse
	// or is structurally inconsistent.
	KindCorrupt
	// KindTransient marks network/store errors eligible for caller-level
	// retry. The analyzer does not retry internally.
	KindTransient
	// KindCancelled marks a run aborted by the caller's context.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindNotFound:
		return "not found"
	case KindAccessDenied:
		return "access denied"
	case KindMissingLog:
		return "missing log"
	case KindCorrupt:
		return "corrupt"
	case KindTransient:
		return "transient"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a typed analysis failure carrying enough context to diagnose
// without re-running: the object key involved and the underlying cause.
type Error struct {
	Kind ErrorKind
	Key  string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Key != "" {
		s = fmt.Sprintf("%s (object %q)", s, e.Key)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed failure with a formatted message.
func NewError(kind ErrorKind, key, format string, args ...any) *Error {
	return &Error{Kind: kind, Key: key, Msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and object key to an underlying cause.
func WrapError(kind ErrorKind, key string, err error) *Error {
	return &Error{Kind: kind, Key: key, Err: err}
}

// IsKind reports whether err is (or wraps) an analysis Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == kind
}
