// Package errors is the typed error model shared by services and HTTP handlers.
// A Code picks the HTTP status and public message; a Kind narrows the reason for
// clients that branch on it (empty_cart, merchant_not_payable, ...).
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

type Kind string

const (
	KindEmptyCart                 Kind = "empty_cart"
	KindMultiCurrencyNotSupported Kind = "multi_currency_not_supported"
	KindZeroOrNegativeTotal       Kind = "zero_or_negative_total"
	KindMerchantNotPayable        Kind = "merchant_not_payable"
	KindSessionCreationFailed     Kind = "session_creation_failed"
	KindOrderCodeExhausted        Kind = "order_code_exhausted"
	KindItemUnavailable           Kind = "item_unavailable"
	KindShippingCountryNotAllowed Kind = "shipping_country_not_allowed"
	KindOrderNotFound             Kind = "order_not_found"
	KindInvalidTransition         Kind = "invalid_transition"
	KindPricePrecision            Kind = "price_precision_not_supported"
	KindSessionExpireFailed       Kind = "session_expire_failed"
)

// Metadata is how a Code is presented over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// EchoMessage lets the error's own message replace PublicMessage.
	EchoMessage bool
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	switch code {
	case CodeValidation:
		return Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true, EchoMessage: true}
	case CodeUnauthorized:
		return Metadata{HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", EchoMessage: true}
	case CodeForbidden:
		return Metadata{HTTPStatus: http.StatusForbidden, PublicMessage: "access denied", EchoMessage: true}
	case CodeNotFound:
		return Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", EchoMessage: true}
	case CodeConflict:
		return Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", EchoMessage: true}
	case CodeStateConflict:
		return Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true, EchoMessage: true}
	case CodeIdempotency:
		return Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true, EchoMessage: true}
	case CodeRateLimit:
		return Metadata{HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", EchoMessage: true}
	case CodeDependency:
		return Metadata{HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true}
	default:
		return Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"}
	}
}

type Error struct {
	code    Code
	kind    Kind
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a Kind attached.
func Newf(code Code, kind Kind, format string, args ...any) *Error {
	return &Error{code: code, kind: kind, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) WithKind(kind Kind) *Error {
	if e != nil {
		e.kind = kind
	}
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Kind() Kind {
	if e == nil {
		return ""
	}
	return e.kind
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// PublicMessage is what a client may see. Internal and dependency errors only
// expose their own message once a Kind marks them as deliberate.
func (e *Error) PublicMessage() string {
	meta := MetadataFor(e.Code())
	msg := e.Message()
	if msg == "" || !(meta.EchoMessage || e.Kind() != "") {
		return meta.PublicMessage
	}
	return msg
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	head := string(e.code)
	if e.kind != "" {
		head += "(" + string(e.kind) + ")"
	}
	return head + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsKind reports whether any *Error in err's chain carries kind.
func IsKind(err error, kind Kind) bool {
	for typed := As(err); typed != nil; typed = As(typed.cause) {
		if typed.kind == kind {
			return true
		}
	}
	return false
}
