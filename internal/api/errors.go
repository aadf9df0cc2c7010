package api

import (
	"fmt"
	"net/http"
	"strings"
)

type ApiError struct {
	StatusCode int               `json:"status_code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	Err        error             `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(code int) *ApiError {
	return &ApiError{
		StatusCode: code,
		Message:    lower(http.StatusText(code)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound)
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError)
	e.Err = err
	return e
}

// NewUnauthorizedError optionally carries a message shown inline on the
// login form.
func NewUnauthorizedError(msg ...string) *ApiError {
	e := newApiError(http.StatusUnauthorized)
	if len(msg) > 0 {
		e.Message = msg[0]
	}
	return e
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden)
}

func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict)
}

func NewUnprocessableError(msg string) *ApiError {
	e := newApiError(http.StatusUnprocessableEntity)
	if msg != "" {
		e.Message = msg
	}
	return e
}

func NewValidationError(fields map[string]string) *ApiError {
	e := newApiError(http.StatusUnprocessableEntity)
	e.Message = "validation failed"
	e.Fields = fields
	return e
}

func NewServiceUnavailableError(err error) *ApiError {
	e := newApiError(http.StatusServiceUnavailable)
	e.Err = err
	return e
}
