package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"asc-manager/core/jsonapi"
)

// Class is the failure taxonomy shown to operators.
type Class string

const (
	// ClassValidation is a local rule violation; fix the configuration.
	ClassValidation Class = "validation"
	// ClassConflict is a remote state or entity conflict; not retried.
	ClassConflict Class = "conflict"
	// ClassRejected is any other client error (NOT_FOUND, forbidden, ...).
	ClassRejected Class = "rejected"
	// ClassTransient is throttling or a server error that survived all retries.
	ClassTransient Class = "transient"
	// ClassTransport is a connection or decoding failure that survived all retries.
	ClassTransport Class = "transport"
	// ClassCancelled is a write interrupted by cancellation.
	ClassCancelled Class = "cancelled"
	// ClassInternal is an unexpected local failure.
	ClassInternal Class = "internal"
)

// Local error codes.
const (
	CodeSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	CodePeriodImmutable      = "PERIOD_IMMUTABLE"
	CodePeriodRequired       = "MISSING_METADATA"
	CodeIncompatibleDuration = "INCOMPATIBLE_DURATION"
	CodePricePointRequired   = "PRICE_POINT_REQUIRED"
	CodeUnresolvedTerritory  = "UNRESOLVED_TERRITORY"
	CodeTerritoryUnavailable = "TERRITORY_UNAVAILABLE"
)

// LocalError is a failure decided without contacting the remote system.
type LocalError struct {
	Class   Class
	Code    string
	Message string
}

func (e *LocalError) Error() string {
	return e.Code + ": " + e.Message
}

// Invalid returns a validation-class local error.
func Invalid(code, format string, args ...any) *LocalError {
	return &LocalError{Class: ClassValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a conflict-class local error, used when current state
// already shows the remote system would refuse the write.
func Conflict(code, format string, args ...any) *LocalError {
	return &LocalError{Class: ClassConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Classify maps an error to its class and error code.
func Classify(err error) (Class, string) {
	if err == nil {
		return "", ""
	}

	var local *LocalError
	if errors.As(err, &local) {
		return local.Class, local.Code
	}

	var apiErr *jsonapi.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Code()
		switch {
		case apiErr.Throttled() || apiErr.Temporary():
			return ClassTransient, code
		case apiErr.StatusCode == http.StatusConflict,
			apiErr.HasCode(jsonapi.CodeStateError),
			apiErr.HasCode(jsonapi.CodeEntityError):
			return ClassConflict, code
		default:
			return ClassRejected, code
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCancelled, ""
	}

	var transport *jsonapi.TransportError
	if errors.As(err, &transport) {
		return ClassTransport, ""
	}

	return ClassInternal, ""
}

// Failed builds a failed result for err.
func Failed(kind Kind, target Target, err error) OperationResult {
	class, code := Classify(err)
	return OperationResult{
		Kind:    kind,
		Target:  target,
		Outcome: OutcomeFailed,
		Class:   class,
		Code:    code,
		Detail:  err.Error(),
		Err:     err,
	}
}
