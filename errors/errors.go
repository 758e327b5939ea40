package errors

import (
	"errors"
	"net/http"
	"strings"
)

type ErrCode string

const (
	ErrCodeNotFound         ErrCode = "NotFound"
	ErrCodeExpired          ErrCode = "Expired"
	ErrCodeServiceFailure   ErrCode = "ServiceFailure"
	ErrCodeDecryptionFailed ErrCode = "DecryptionFailed"
	ErrCodeBadInput         ErrCode = "BadInput"
	ErrCodeUnauthorized     ErrCode = "Unauthorized"
	ErrCodeForbidden        ErrCode = "Forbidden"
	ErrCodeExisted          ErrCode = "Existed"
	ErrCodeOversized        ErrCode = "Oversized"
	ErrCodeConfig           ErrCode = "Config"
)

// Err is the error type shared by all healx components. Code tells the caller which variant
// of failure happened; msg is safe to surface to clients while cause is kept for logging.
type Err struct {
	Code  ErrCode
	msg   string
	cause error
}

func (e *Err) Error() string {
	return e.msg
}

// Trace returns the chain of messages from e down to its root cause
func (e *Err) Trace() string {
	b := &strings.Builder{}
	b.WriteString(e.msg)
	indent := "\n"
	err := errors.Unwrap(e)
	for err != nil {
		indent += "\t"
		b.WriteString(indent)
		b.WriteString("Caused by: ")
		b.WriteString(err.Error())
		err = errors.Unwrap(err)
	}
	return b.String()
}

func (e *Err) Unwrap() error {
	return e.cause
}

func (e *Err) WithCause(c error) *Err {
	e.cause = c
	return e
}

// constructors take the client facing message only; attach causes with WithCause
func NewServiceFailure(m string) *Err {
	return &Err{Code: ErrCodeServiceFailure, msg: m}
}

func NewNotFound(m string) *Err {
	return &Err{Code: ErrCodeNotFound, msg: m}
}

func NewExpired(m string) *Err {
	return &Err{Code: ErrCodeExpired, msg: m}
}

func NewDecryptionFailed(m string) *Err {
	return &Err{Code: ErrCodeDecryptionFailed, msg: m}
}

func NewBadInput(m string) *Err {
	return &Err{Code: ErrCodeBadInput, msg: m}
}

func NewUnauthorized(m string) *Err {
	return &Err{Code: ErrCodeUnauthorized, msg: m}
}

func NewForbidden(m string) *Err {
	return &Err{Code: ErrCodeForbidden, msg: m}
}

func NewExisted(m string) *Err {
	return &Err{Code: ErrCodeExisted, msg: m}
}

func NewOversized(m string) *Err {
	return &Err{Code: ErrCodeOversized, msg: m}
}

func NewConfig(m string) *Err {
	return &Err{Code: ErrCodeConfig, msg: m}
}

// Is reports whether err is an *Err of given code anywhere in its chain
func Is(err error, code ErrCode) bool {
	var e *Err
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// StatusCode returns the http response status code associated with the Err value
func (e *Err) StatusCode() int {
	switch e.Code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeExpired:
		return http.StatusGone
	case ErrCodeBadInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeExisted:
		return http.StatusConflict
	case ErrCodeOversized:
		return http.StatusRequestEntityTooLarge
	case ErrCodeDecryptionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
