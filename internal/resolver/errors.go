package resolver

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a pipeline failure for response shaping.
type Kind string

// Failure kinds surfaced to callers.
const (
	KindInvalidInput        Kind = "invalid_input"
	KindUnsupportedPlatform Kind = "unsupported_platform"
	KindPlatformDisabled    Kind = "platform_disabled"
	KindMaintenance         Kind = "maintenance_active"
	KindRateLimited         Kind = "rate_limited"
	KindCredentialRequired  Kind = "credential_required"
	KindCredentialExpired   Kind = "credential_expired"
	KindScrapeFailed        Kind = "scrape_failed"
	KindTimeout             Kind = "timeout"
	KindUnknown             Kind = "unknown"
)

// ErrCacheMiss is returned by ResultCache.Get when no live entry exists.
// A miss is indistinguishable from "never cached" vs "expired".
var ErrCacheMiss = errors.New("cache miss")

// ErrNoCredential is returned by CredentialPool.Select when no eligible
// credential exists in either tier.
var ErrNoCredential = errors.New("no eligible credential")

// ErrKeyInvalid is returned by KeyStore.Validate for unknown or disabled keys.
var ErrKeyInvalid = errors.New("invalid api key")

// Error is a classified pipeline failure. Messages are caller-safe: they
// never carry credential material or internal keys.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	cause      error
}

// E builds a classified error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the failure kind, defaulting to KindUnknown.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// MessageOf extracts the caller-safe message for a failure.
func MessageOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Message
	}
	return "internal error"
}

// RetryAfterOf extracts the retry hint, zero when absent.
func RetryAfterOf(err error) time.Duration {
	var re *Error
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}

// HTTPStatus maps a failure kind to the transport status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput, KindUnsupportedPlatform:
		return http.StatusBadRequest
	case KindCredentialRequired:
		return http.StatusUnauthorized
	case KindCredentialExpired:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindMaintenance, KindPlatformDisabled:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
