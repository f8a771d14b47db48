// Package apperr holds the error taxonomy shared by the cart, order, ticket and auth services.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalidState
	KindValidation
	KindExternal
	KindUnauthorized
	KindForbidden
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindValidation:
		return "validation"
	case KindExternal:
		return "external_service_failure"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is the concrete error returned by the services. Two errors are the
// same for errors.Is when their codes match.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newSentinel(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrProductNotFound        = newSentinel(KindNotFound, "product_not_found", "product or variant not found")
	ErrOrderNotFound          = newSentinel(KindNotFound, "order_not_found", "order not found")
	ErrTicketNotFound         = newSentinel(KindNotFound, "ticket_not_found", "ticket not found")
	ErrUserNotFound           = newSentinel(KindNotFound, "user_not_found", "user not found")
	ErrCartLineNotFound       = newSentinel(KindNotFound, "cart_line_not_found", "cart line not found")
	ErrOutOfStock             = newSentinel(KindConflict, "out_of_stock", "insufficient stock")
	ErrStockReservationFailed = newSentinel(KindConflict, "stock_reservation_failed", "stock reservation failed")
	ErrVersionConflict        = newSentinel(KindConflict, "version_conflict", "document was modified concurrently")
	ErrDuplicateID            = newSentinel(KindConflict, "duplicate_id", "identifier already in use")
	ErrEmptyCart              = newSentinel(KindValidation, "empty_cart", "cart has no orderable lines")
	ErrInvalidCoupon          = newSentinel(KindValidation, "invalid_coupon", "coupon cannot be applied")
	ErrValidation             = newSentinel(KindValidation, "validation_error", "invalid request")
	ErrInvalidTransition      = newSentinel(KindInvalidState, "invalid_transition", "status transition not allowed")
	ErrCannotCancel           = newSentinel(KindInvalidState, "cannot_cancel", "order can no longer be cancelled")
	ErrPaymentVerification    = newSentinel(KindExternal, "payment_verification_failed", "payment could not be verified")
	ErrExternalService        = newSentinel(KindExternal, "external_service_failure", "external service unavailable")
	ErrInvalidOTP             = newSentinel(KindUnauthorized, "invalid_otp", "invalid or expired code")
	ErrUnauthorized           = newSentinel(KindUnauthorized, "unauthorized", "authentication required")
	ErrForbidden              = newSentinel(KindForbidden, "forbidden", "not allowed")
	ErrRateLimited            = newSentinel(KindRateLimited, "rate_limited", "too many requests")
)

// New builds an error carrying the code of sentinel with a specific message.
func New(sentinel *Error, msg string, details map[string]any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: msg, Details: details}
}

// Wrap attaches cause to a copy of sentinel.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: cause}
}

// Validation reports a malformed request field.
func Validation(field, msg string) *Error {
	return New(ErrValidation, msg, map[string]any{"field": field})
}

// OutOfStock names the offending line.
func OutOfStock(line string, available, requested int) *Error {
	return New(ErrOutOfStock, fmt.Sprintf("insufficient stock for %s", line), map[string]any{
		"line":      line,
		"available": available,
		"requested": requested,
	})
}

func InvalidTransition(from, to string) *Error {
	return New(ErrInvalidTransition, fmt.Sprintf("cannot move from %s to %s", from, to), map[string]any{
		"from": from,
		"to":   to,
	})
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code the handlers answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidState:
		return http.StatusUnprocessableEntity
	case KindValidation:
		return http.StatusBadRequest
	case KindExternal:
		return http.StatusBadGateway
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
