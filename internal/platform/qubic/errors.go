package qubic

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAddress is returned before any request when an address is not 60
// alphanumeric characters.
var ErrInvalidAddress = errors.New("qubic: invalid wallet address format")

// NetworkKind distinguishes transport failures.
type NetworkKind int

const (
	NetworkKindGeneric NetworkKind = iota
	NetworkKindCORS
)

func (k NetworkKind) String() string {
	if k == NetworkKindCORS {
		return "cors"
	}
	return "network"
}

// HTTPError is a non-2xx response from the RPC API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qubic: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("qubic: HTTP %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying may help.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// NetworkError is a transport failure talking to the RPC API.
type NetworkError struct {
	Kind    NetworkKind
	BaseURL string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Kind == NetworkKindCORS {
		return fmt.Sprintf("CORS error: the Qubic RPC API (%s) is blocking cross-origin requests: %v", e.BaseURL, e.Err)
	}
	return fmt.Sprintf("network error: failed to connect to %s: %v", e.BaseURL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// classifyTransport wraps err as a NetworkError, flagging cross-origin
// rejections reported by proxies in front of the API.
func classifyTransport(baseURL string, err error) *NetworkError {
	msg := strings.ToLower(err.Error())
	kind := NetworkKindGeneric
	if strings.Contains(msg, "cors") || strings.Contains(msg, "cross-origin") {
		kind = NetworkKindCORS
	}
	return &NetworkError{Kind: kind, BaseURL: baseURL, Err: err}
}

// retryable reports whether a single retry is worth attempting.
func retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Kind == NetworkKindGeneric
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	return false
}
