// Package apperr defines the typed failures returned by the service layer.
// Handlers map them to HTTP status codes and stable machine-readable codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation             Kind = "VALIDATION_ERROR"
	KindAuthenticationRequired Kind = "AUTHENTICATION_REQUIRED"
	KindUnauthorizedAccess     Kind = "UNAUTHORIZED_ACCESS"
	KindNotFound               Kind = "NOT_FOUND"
	KindInvalidStateTransition Kind = "INVALID_STATE_TRANSITION"
	KindDuplicateApplication   Kind = "DUPLICATE_APPLICATION"
	KindDuplicateRequest       Kind = "DUPLICATE_REQUEST"
	KindInsufficientCredits    Kind = "INSUFFICIENT_CREDITS"
	KindQuoteExpired           Kind = "QUOTE_EXPIRED"
	KindPaymentFailed          Kind = "PAYMENT_FAILED"
	KindJobUnavailable         Kind = "JOB_UNAVAILABLE"
	KindWithdrawalNotAllowed   Kind = "WITHDRAWAL_NOT_ALLOWED"
	KindRateLimitExceeded      Kind = "RATE_LIMIT_EXCEEDED"
	KindTimeout                Kind = "TIMEOUT"
	KindInternal               Kind = "INTERNAL_ERROR"
)

var statusByKind = map[Kind]int{
	KindValidation:             http.StatusBadRequest,
	KindAuthenticationRequired: http.StatusUnauthorized,
	KindUnauthorizedAccess:     http.StatusForbidden,
	KindNotFound:               http.StatusNotFound,
	KindInvalidStateTransition: http.StatusConflict,
	KindDuplicateApplication:   http.StatusConflict,
	KindDuplicateRequest:       http.StatusConflict,
	KindInsufficientCredits:    http.StatusPaymentRequired,
	KindQuoteExpired:           http.StatusConflict,
	KindPaymentFailed:          http.StatusPaymentRequired,
	KindJobUnavailable:         http.StatusConflict,
	KindWithdrawalNotAllowed:   http.StatusConflict,
	KindRateLimitExceeded:      http.StatusTooManyRequests,
	KindTimeout:                http.StatusGatewayTimeout,
	KindInternal:               http.StatusInternalServerError,
}

// Error is a business or infrastructure failure with a stable code.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field validation problems.
	Fields  map[string]string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code associated with the error kind.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Is matches errors by kind so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired}
	ErrUnauthorizedAccess     = &Error{Kind: KindUnauthorizedAccess}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrDuplicateApplication   = &Error{Kind: KindDuplicateApplication}
	ErrDuplicateRequest       = &Error{Kind: KindDuplicateRequest}
	ErrInsufficientCredits    = &Error{Kind: KindInsufficientCredits}
	ErrQuoteExpired           = &Error{Kind: KindQuoteExpired}
	ErrPaymentFailed          = &Error{Kind: KindPaymentFailed}
	ErrJobUnavailable         = &Error{Kind: KindJobUnavailable}
	ErrWithdrawalNotAllowed   = &Error{Kind: KindWithdrawalNotAllowed}
	ErrRateLimitExceeded      = &Error{Kind: KindRateLimitExceeded}
	ErrTimeout                = &Error{Kind: KindTimeout}
	ErrInternal               = &Error{Kind: KindInternal}
)

func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// ValidationField is shorthand for a single-field validation failure.
func ValidationField(field, problem string) *Error {
	return Validation(problem, map[string]string{field: problem})
}

func AuthenticationRequired(message string) *Error {
	return &Error{Kind: KindAuthenticationRequired, Message: message}
}

func UnauthorizedAccess(message string) *Error {
	return &Error{Kind: KindUnauthorizedAccess, Message: message}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

// InvalidStateTransition names both the current and the requested state.
func InvalidStateTransition(entity, current, requested string) *Error {
	return &Error{
		Kind:    KindInvalidStateTransition,
		Message: fmt.Sprintf("cannot transition %s from %s to %s", entity, current, requested),
		Details: map[string]interface{}{
			"current_status":   current,
			"requested_status": requested,
		},
	}
}

// StateConflict reports an operation the entity's current status does not allow.
func StateConflict(message, current string) *Error {
	return &Error{
		Kind:    KindInvalidStateTransition,
		Message: message,
		Details: map[string]interface{}{"current_status": current},
	}
}

func DuplicateApplication() *Error {
	return &Error{Kind: KindDuplicateApplication, Message: "you have already applied to this job"}
}

// DuplicateRequest is returned while another request with the same id is
// still in flight or has already completed.
func DuplicateRequest(requestID string) *Error {
	return &Error{
		Kind:    KindDuplicateRequest,
		Message: "request " + requestID + " is already being processed",
		Details: map[string]interface{}{"request_id": requestID},
	}
}

func InsufficientCredits(required, balance int) *Error {
	return &Error{
		Kind:    KindInsufficientCredits,
		Message: fmt.Sprintf("insufficient credits: %d required, %d available", required, balance),
		Details: map[string]interface{}{
			"required_credits": required,
			"current_balance":  balance,
		},
	}
}

func QuoteExpired(quoteNumber string) *Error {
	return &Error{Kind: KindQuoteExpired, Message: fmt.Sprintf("quote %s has expired", quoteNumber)}
}

// PaymentFailed carries the gateway-provided reason.
func PaymentFailed(reason string, err error) *Error {
	return &Error{
		Kind:    KindPaymentFailed,
		Message: "payment failed: " + reason,
		Details: map[string]interface{}{"gateway_reason": reason},
		Err:     err,
	}
}

func JobUnavailable(reason string) *Error {
	return &Error{Kind: KindJobUnavailable, Message: reason}
}

func WithdrawalNotAllowed(reason string) *Error {
	return &Error{Kind: KindWithdrawalNotAllowed, Message: reason}
}

func RateLimitExceeded(limit int, window string) *Error {
	return &Error{
		Kind:    KindRateLimitExceeded,
		Message: fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window),
	}
}

func Timeout(operation string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: operation + " timed out", Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// From converts any error into an *Error, wrapping unknown causes as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal server error", err)
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	return From(err).Kind
}
