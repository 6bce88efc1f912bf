package router

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable machine-readable code of a routing failure.
type ErrorCode string

const (
	DestinationOutOfRange ErrorCode = "DESTINATION_OUT_OF_RANGE"
	NoRouteFound          ErrorCode = "NO_ROUTE_FOUND"
	NoNearbyRoad          ErrorCode = "NO_NEARBY_ROAD"
	GraphEmpty            ErrorCode = "GRAPH_EMPTY"
	InvalidCoordinates    ErrorCode = "INVALID_COORDINATES"
	StaleRequest          ErrorCode = "STALE_REQUEST"
	InternalError         ErrorCode = "internal_error"
)

// Error carries a code and a message that is safe to show to end users.
// The cause is kept for logs only.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	cause   error
}

func newError(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, router.ErrGraphEmpty).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrDestinationOutOfRange = &Error{Code: DestinationOutOfRange, Message: "destination is too far to walk"}
	ErrNoRouteFound          = &Error{Code: NoRouteFound, Message: "no walking route found"}
	ErrNoNearbyRoad          = &Error{Code: NoNearbyRoad, Message: "no walkable road near the given point"}
	ErrGraphEmpty            = &Error{Code: GraphEmpty, Message: "no walkable streets in the area"}
	ErrInvalidCoordinates    = &Error{Code: InvalidCoordinates, Message: "invalid coordinates"}
	ErrStaleRequest          = &Error{Code: StaleRequest, Message: "request superseded by a newer one"}
	ErrInternal              = &Error{Code: InternalError, Message: "internal error"}
)

// CodeOf returns the code of err, internal_error for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InternalError
}
