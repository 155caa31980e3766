package services

import "errors"

// Kind buckets service failures for transport mapping.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUnavailable
)

// Error is a service failure carrying a stable machine-readable code
// alongside the human message. Validation failures additionally carry a
// field-level breakdown.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// AsError unwraps err into a service *Error if it is one.
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

func badRequest(code, message string) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Message: message}
}

func validationFailed(fields map[string]string) *Error {
	return &Error{
		Kind:    KindBadRequest,
		Code:    "validation_failed",
		Message: "validation failed",
		Fields:  fields,
	}
}

func unauthorized(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

func forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

func notFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func unavailable(err error) *Error {
	return &Error{
		Kind:    KindUnavailable,
		Code:    "service_unavailable",
		Message: "service temporarily unavailable",
		Err:     err,
	}
}
