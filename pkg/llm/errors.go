package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a failure at the model service boundary.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindNetwork   ErrorKind = "network"
	KindTimeout   ErrorKind = "timeout"
	KindCanceled  ErrorKind = "canceled"
	KindService   ErrorKind = "service"
)

// ServiceError is a transport, authentication, or rate-limit failure from the
// model service. It is never retried by this package.
type ServiceError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Temporary reports whether re-invoking the whole extraction later may succeed.
func (e *ServiceError) Temporary() bool {
	switch e.Kind {
	case KindRateLimit, KindNetwork, KindTimeout:
		return true
	case KindService:
		return e.StatusCode >= 500
	}
	return false
}

// NewServiceError classifies err using the HTTP status code when one is known.
func NewServiceError(provider string, statusCode int, err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}

	return &ServiceError{
		Provider:   provider,
		Kind:       classify(statusCode, err),
		StatusCode: statusCode,
		Err:        err,
	}
}

func classify(statusCode int, err error) ErrorKind {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return KindAuth
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimit
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return KindTimeout
	case statusCode != 0:
		return KindService
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// IsServiceError reports whether err is (or wraps) a *ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
