package httpclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	gobreaker "github.com/sony/gobreaker/v2"
)

// FieldError is one field-level error reported by the server.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// StatusError is returned when the server answers with a non-2xx status,
// including a retryable status that persisted through every retry.
type StatusError struct {
	StatusCode int
	Message    string
	Errors     []FieldError
}

func (e *StatusError) Error() string {
	var b strings.Builder
	b.WriteString("httpclient: server returned ")
	b.WriteString(strconv.Itoa(e.StatusCode))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, fe := range e.Errors {
		fmt.Fprintf(&b, " (%s: %s)", fe.Field, fe.Message)
	}
	return b.String()
}

// ErrUnexpectedResponse is returned when a response body cannot be decoded
// or does not match the request.
var ErrUnexpectedResponse = errors.New("httpclient: unexpected response")

// errorType classifies a transport error for the error.type attribute.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case isNetworkError(err):
		return "network"
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return strconv.Itoa(statusErr.StatusCode)
	}
	return "unknown"
}
