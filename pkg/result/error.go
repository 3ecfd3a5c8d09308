package result

// Error is the error form of a failed Result. Handlers and converters return
// it to pick the kind the dispatcher reports.
type Error struct {
	Kind   Kind   // Machine-readable kind
	Reason string // Human readable reason
	Cause  error  // Wrapped underlying error
}

// NewError creates an Error with a kind and reason.
func NewError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Reason {
		return e.Kind.String() + ": " + e.Reason + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Reason
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}
