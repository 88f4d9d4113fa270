package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConstruct Phase = "construct" // proxy construction and upcast
	PhaseAccess    Phase = "access"    // field get/set through a proxy
	PhaseRelease   Phase = "release"   // teardown
	PhaseCast      Phase = "cast"      // dynamic cast
	PhaseContainer Phase = "container" // contained lists
	PhaseHeap      Phase = "heap"      // native record heap
	PhaseSchema    Phase = "schema"    // class registration
	PhaseLoad      Phase = "load"      // guest module loading
)

// Kind categorizes the error
type Kind string

const (
	KindUseAfterRelease Kind = "use_after_release"
	KindNullHandle      Kind = "null_handle"
	KindStaleHandle     Kind = "stale_handle"
	KindTypeMismatch    Kind = "type_mismatch"
	KindFieldUnknown    Kind = "field_unknown"
	KindListUnknown     Kind = "list_unknown"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindAllocation      Kind = "allocation"
	KindInvalidInput    Kind = "invalid_input"
	KindNotOwner        Kind = "not_owner"
	KindClosed          Kind = "closed"
	KindUnsupported     Kind = "unsupported"
	KindInvalidData     Kind = "invalid_data"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Class  string
	Field  string
	Detail string
	Handle uint32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Class != "" {
		b.WriteString(" at ")
		b.WriteString(e.Class)
		if e.Field != "" {
			b.WriteByte('.')
			b.WriteString(e.Field)
		}
	} else if e.Field != "" {
		b.WriteString(" at ")
		b.WriteString(e.Field)
	}

	if e.Handle != 0 {
		fmt.Fprintf(&b, " (handle %#x)", e.Handle)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase == "" {
			return e.Kind == t.Kind
		}
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Class sets the native class name
func (b *Builder) Class(c string) *Builder {
	b.err.Class = c
	return b
}

// Field sets the field or list name
func (b *Builder) Field(f string) *Builder {
	b.err.Field = f
	return b
}

// Handle sets the offending native handle
func (b *Builder) Handle(h uint32) *Builder {
	b.err.Handle = h
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinel matchers for errors.Is. They carry no Phase, so they match any
// phase with the same Kind.
var (
	ErrUseAfterRelease = &Error{Kind: KindUseAfterRelease}
	ErrNullHandle      = &Error{Kind: KindNullHandle}
	ErrStaleHandle     = &Error{Kind: KindStaleHandle}
	ErrTypeMismatch    = &Error{Kind: KindTypeMismatch}
	ErrClosed          = &Error{Kind: KindClosed}
)

// Convenience constructors for common error patterns

// UseAfterRelease creates an error for an operation on a released or null proxy
func UseAfterRelease(class, op string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindUseAfterRelease,
		Class:  class,
		Field:  op,
		Detail: "native handle is null or already released",
	}
}

// NullHandle creates an error for a native call issued with handle 0
func NullHandle(phase Phase, class string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNullHandle,
		Class:  class,
		Detail: "null native handle",
	}
}

// StaleHandle creates an error for a handle whose record no longer exists
func StaleHandle(phase Phase, class string, handle uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStaleHandle,
		Class:  class,
		Handle: handle,
		Detail: "native record was freed",
	}
}

// TypeMismatch creates an error for a handle used as a class it is not
func TypeMismatch(phase Phase, handle uint32, actual, expected string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Class:  expected,
		Handle: handle,
		Detail: fmt.Sprintf("record is %s, not %s", actual, expected),
	}
}

// FieldUnknown creates an unknown field error
func FieldUnknown(phase Phase, class, field string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldUnknown,
		Class:  class,
		Field:  field,
		Detail: fmt.Sprintf("class %s has no field %q", class, field),
	}
}

// ListUnknown creates an unknown contained-list error
func ListUnknown(phase Phase, class, list string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindListUnknown,
		Class:  class,
		Field:  list,
		Detail: fmt.Sprintf("class %s has no list %q", class, list),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, class, list string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Class:  class,
		Field:  list,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// NotOwner creates an error for an ownership transfer from a proxy that does not own its record
func NotOwner(phase Phase, class string, handle uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotOwner,
		Class:  class,
		Handle: handle,
		Detail: "proxy does not own the native record",
	}
}

// Closed creates an error for an operation on a closed heap
func Closed(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: "native heap closed",
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a guest module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
