package services

import (
	"errors"
	"net/http"
)

// Error kinds surfaced to clients.
const (
	ErrMissingField      = "MISSING_FIELD"
	ErrValidation        = "VALIDATION"
	ErrDataNotFound      = "DATA_NOT_FOUND"
	ErrCaptchaValidation = "CAPTCHA_VALIDATION"
)

// DomainError is an expected failure whose message is safe to show to the caller.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// MissingField reports an absent required input.
func MissingField(msg string) error {
	return &DomainError{Code: ErrMissingField, Message: msg}
}

// Invalid reports malformed input, an out-of-range value, a state conflict or a denied action.
func Invalid(msg string) error {
	return &DomainError{Code: ErrValidation, Message: msg}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(msg string) error {
	return &DomainError{Code: ErrDataNotFound, Message: msg}
}

// CaptchaFailed reports a failed bot check.
func CaptchaFailed(msg string) error {
	return &DomainError{Code: ErrCaptchaValidation, Message: msg}
}

// AsDomainError unwraps err into a *DomainError when possible.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsErrorCode checks whether err is a domain error of the given code.
func IsErrorCode(err error, code string) bool {
	de, ok := AsDomainError(err)
	return ok && de.Code == code
}

// HTTPStatus maps a domain error code to an HTTP status.
func HTTPStatus(code string) int {
	switch code {
	case ErrDataNotFound:
		return http.StatusNotFound
	case ErrMissingField, ErrValidation, ErrCaptchaValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
