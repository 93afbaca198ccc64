// errors.go defines the gateway's error taxonomy.
//
// The retry loop in client.go branches on one question: is this failure
// transient (network trouble, 5xx, rate limiting — worth retrying with
// backoff) or terminal (the venue rejected the request on a business
// rule — retrying would produce the same answer)? APIError carries that
// classification; plain transport errors from resty count as transient.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a venue API failure.
type ErrorKind string

const (
	KindTransport     ErrorKind = "TRANSPORT"      // network, 5xx, auth lapses
	KindRateLimited   ErrorKind = "RATE_LIMITED"   // 429 from the venue
	KindInvalidOdds   ErrorKind = "INVALID_ODDS"   // odds off the ladder
	KindOrderRejected ErrorKind = "ORDER_REJECTED" // any other venue business rule
)

// APIError is a classified failure from the venue API.
type APIError struct {
	Kind    ErrorKind
	Status  int    // HTTP status, 0 if the request never completed
	Message string // venue-provided detail, may be empty
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("venue api: %s (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("venue api: %s (status %d): %s", e.Kind, e.Status, e.Message)
}

// Transient reports whether the failure is worth retrying.
func (e *APIError) Transient() bool {
	return e.Kind == KindTransport || e.Kind == KindRateLimited
}

// IsTransient reports whether err should be retried with backoff.
// Unclassified errors (raw network failures) are treated as transient;
// context cancellation is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}

// classifyResponse maps an HTTP status and venue error message onto the
// taxonomy. The venue reports ladder violations with a recognizable
// message rather than a dedicated status code.
func classifyResponse(status int, message string) *APIError {
	switch {
	case status == http.StatusTooManyRequests:
		return &APIError{Kind: KindRateLimited, Status: status, Message: message}
	case status >= 500:
		return &APIError{Kind: KindTransport, Status: status, Message: message}
	case strings.Contains(strings.ToLower(message), "odds"):
		return &APIError{Kind: KindInvalidOdds, Status: status, Message: message}
	default:
		return &APIError{Kind: KindOrderRejected, Status: status, Message: message}
	}
}
