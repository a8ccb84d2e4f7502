package llm

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Errors surfaced by Stream. Each ends the request with one Error message.
var (
	// ErrConfiguration means the endpoint is missing or unusable; no request is sent.
	ErrConfiguration = errors.New("llm configuration error")
	// ErrNetworkTimeout means the provider did not answer within the request timeout.
	ErrNetworkTimeout = errors.New("llm request timed out")
	// ErrEmptyMessage means there was nothing to send.
	ErrEmptyMessage = errors.New("no user message content to send")
)

// maxErrorDetail bounds the error detail shown to the user, in runes.
const maxErrorDetail = 150

// NetworkError is a connection failure or a non-2xx HTTP status.
type NetworkError struct {
	StatusCode int // 0 for connection failures
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("HTTP error %d", e.StatusCode)
	}
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// userMessage turns a stream failure into the text of the Error message.
func userMessage(err error, timeout time.Duration) string {
	var netErr *NetworkError
	var urlErr *url.Error
	var opErr *net.OpError

	switch {
	case errors.Is(err, ErrConfiguration):
		detail := strings.TrimPrefix(err.Error(), ErrConfiguration.Error()+": ")
		return "LLM configuration error: " + truncate(detail, maxErrorDetail)
	case errors.Is(err, ErrNetworkTimeout):
		return fmt.Sprintf("LLM request timed out (%ds).", int(timeout/time.Second))
	case errors.As(err, &netErr), errors.As(err, &urlErr), errors.As(err, &opErr):
		return "LLM connection error: " + truncate(err.Error(), maxErrorDetail)
	default:
		return "Unexpected LLM error: " + truncate(err.Error(), maxErrorDetail)
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
