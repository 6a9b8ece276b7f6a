package querytool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
)

// FaultKind classifies a provider fault.
type FaultKind string

const (
	// FaultTransientNetwork covers connectivity faults, timeouts and 5xx replies.
	FaultTransientNetwork FaultKind = "TransientNetwork"
	// FaultProtocolChanged means the provider reply no longer has the expected shape.
	FaultProtocolChanged FaultKind = "ProviderProtocolChanged"
	// FaultRateLimited means the provider throttled the request.
	FaultRateLimited FaultKind = "RateLimited"
	// FaultUnclassified is any other fault.
	FaultUnclassified FaultKind = "Unclassified"
	// FaultInvalidInput means required data is structurally absent.
	FaultInvalidInput FaultKind = "InvalidInput"
	// FaultCanceled means the caller's context ended the invocation.
	FaultCanceled FaultKind = "Canceled"
)

// StatusError is returned by providers for non-success HTTP replies.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s http %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, e.Body)
}

// ProtocolError is returned when a provider reply cannot be interpreted.
type ProtocolError struct {
	Provider string
	Detail   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected response shape: %s", e.Provider, e.Detail)
}

// InputError reports structurally absent input data. It is never retried.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

// Classify maps a provider fault onto the fault taxonomy.
func Classify(err error) FaultKind {
	if err == nil {
		return FaultUnclassified
	}
	if errors.Is(err, context.Canceled) {
		return FaultCanceled
	}

	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return FaultInvalidInput
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return FaultProtocolChanged
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return FaultRateLimited
		case statusErr.StatusCode == http.StatusRequestTimeout, statusErr.StatusCode >= 500:
			return FaultTransientNetwork
		default:
			return FaultUnclassified
		}
	}

	// Every *url.Error is a net.Error; what matters is the failure it wraps.
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		if urlErr.Timeout() {
			return FaultTransientNetwork
		}
		return Classify(urlErr.Err)
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return FaultTransientNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FaultTransientNetwork
	}
	// A TLS alert from the peer also arrives as an OpError.
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op != "remote error" {
		return FaultTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FaultTransientNetwork
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return FaultRateLimited
	}
	return FaultUnclassified
}

// faultTypeName names the concrete type of err for diagnostics, looking
// through fmt.Errorf wrappers.
func faultTypeName(err error) string {
	for {
		name := fmt.Sprintf("%T", err)
		if name != "*fmt.wrapError" {
			return strings.TrimPrefix(name, "*")
		}
		next := errors.Unwrap(err)
		if next == nil {
			return strings.TrimPrefix(name, "*")
		}
		err = next
	}
}
