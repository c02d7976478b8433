// Package apperror defines the typed failures returned by the schema, graph
// and tool layers.
//
// Every failure carries a Kind (a stable, machine-readable code), a human
// readable message and optional details such as the offending reference or
// the conflicting matches. Callers branch on the kind with errors.Is against
// the sentinels below or with KindOf:
//
//	if errors.Is(err, apperror.ErrNotFound) {
//		// ...
//	}
package apperror

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind string

const (
	KindUnknownLabel        Kind = "unknown_label"
	KindUnknownEdgeLabel    Kind = "unknown_edge_label"
	KindUnknownProperty     Kind = "unknown_property"
	KindMissingProperty     Kind = "missing_property"
	KindInvalidPropertyType Kind = "invalid_property_type"
	KindInvalidReference    Kind = "invalid_reference"
	KindNotFound            Kind = "not_found"
	KindAmbiguous           Kind = "ambiguous"
	KindAlreadyExists       Kind = "already_exists"
	KindInvalidArgument     Kind = "invalid_argument"
	KindStoreFailure        Kind = "store_failure"
)

// Error is a typed failure.
type Error struct {
	Kind     Kind
	Message  string
	Details  map[string]any
	Internal error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// Is reports whether target is an *Error of the same kind. This lets the
// package-level sentinels match any error of their kind regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithDetails returns a copy of the error with details attached
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		Kind:     e.Kind,
		Message:  e.Message,
		Details:  details,
		Internal: e.Internal,
	}
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	return &Error{
		Kind:     e.Kind,
		Message:  e.Message,
		Details:  e.Details,
		Internal: err,
	}
}

// New creates an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap classifies an arbitrary error as a store failure unless it already
// carries a kind.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{
		Kind:     KindStoreFailure,
		Message:  fmt.Sprintf(format, args...),
		Internal: err,
	}
}

// KindOf returns the kind of err, or an empty kind if err is not typed.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Sentinels for errors.Is.
var (
	ErrUnknownLabel        = &Error{Kind: KindUnknownLabel, Message: "unknown label"}
	ErrUnknownEdgeLabel    = &Error{Kind: KindUnknownEdgeLabel, Message: "unknown edge label"}
	ErrUnknownProperty     = &Error{Kind: KindUnknownProperty, Message: "unknown property"}
	ErrMissingProperty     = &Error{Kind: KindMissingProperty, Message: "missing property"}
	ErrInvalidPropertyType = &Error{Kind: KindInvalidPropertyType, Message: "invalid property type"}
	ErrInvalidReference    = &Error{Kind: KindInvalidReference, Message: "invalid reference"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAmbiguous           = &Error{Kind: KindAmbiguous, Message: "ambiguous reference"}
	ErrAlreadyExists       = &Error{Kind: KindAlreadyExists, Message: "already exists"}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrStoreFailure        = &Error{Kind: KindStoreFailure, Message: "store failure"}
)

// ToResponse converts an error to the body returned to tool callers. Untyped
// errors are reported as internal failures without leaking their text.
func ToResponse(err error) map[string]any {
	var appErr *Error
	if errors.As(err, &appErr) {
		body := map[string]any{
			"kind":    string(appErr.Kind),
			"message": appErr.Message,
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		return map[string]any{"error": body}
	}
	return map[string]any{
		"error": map[string]any{
			"kind":    "internal_error",
			"message": "an internal error occurred",
		},
	}
}
