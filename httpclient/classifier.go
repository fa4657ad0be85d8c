package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
)

// RetryClassifier determines if a request should be retried.
// Return true to retry, false to stop immediately.
type RetryClassifier func(resp *http.Response, err error) bool

// DefaultClassifier applies production-safe retry rules.
//
// Retries on:
//   - Network errors (timeout, connection refused, connection reset)
//   - 429 Too Many Requests
//   - 502 Bad Gateway, 503 Service Unavailable, 504 Gateway Timeout
//
// Does NOT retry on:
//   - 500 Internal Server Error
//   - 4xx Client errors
//   - Context cancellation
//   - TLS certificate errors and unknown hosts
func DefaultClassifier(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		if isPermanentError(err) {
			return false
		}
		return true
	}

	if resp != nil {
		return isRetryableStatusCode(resp.StatusCode)
	}
	return false
}

func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isNetworkError reports whether err happened below HTTP: timeouts,
// refused or reset connections and truncated reads.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	return errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// isPermanentError returns true for errors that will not succeed on retry.
func isPermanentError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	return errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EHOSTDOWN)
}
