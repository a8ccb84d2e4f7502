package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"lmbuddy/internal/logger"
)

// DebugTransport records the last HTTP exchange of the client for
// troubleshooting. Credentials in headers are masked and image data URLs in
// the request body are replaced by their size. Response bodies are streams
// and are never read here.
type DebugTransport struct {
	base http.RoundTripper

	mu   sync.RWMutex
	last string
}

// NewDebugTransport wraps base. A nil base uses http.DefaultTransport.
func NewDebugTransport(base http.RoundTripper) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base}
}

// LastExchange returns the last recorded exchange as JSON, or "" if there was none.
func (d *DebugTransport) LastExchange() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// RoundTrip implements http.RoundTripper.
func (d *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	request, err := captureRequest(req)
	if err != nil {
		logger.Error("Failed to capture request", "error", err)
	}

	resp, err := d.base.RoundTrip(req)
	end := time.Now()

	exchange := map[string]any{
		"http_request": request,
		"timing": map[string]any{
			"request_time": start.Format(time.RFC3339),
			"duration_ms":  end.Sub(start).Milliseconds(),
		},
	}
	if err != nil {
		exchange["http_response"] = map[string]any{"error": err.Error()}
	} else {
		exchange["http_response"] = map[string]any{
			"status_code": resp.StatusCode,
			"status":      resp.Status,
			"headers":     sanitizeHeaders(resp.Header),
		}
	}
	d.store(exchange)
	return resp, err
}

func (d *DebugTransport) store(exchange map[string]any) {
	data, err := json.Marshal(exchange)
	if err != nil {
		logger.Error("Failed to marshal debug data", "error", err)
		return
	}
	d.mu.Lock()
	d.last = string(data)
	d.mu.Unlock()
	logger.Debug("HTTP exchange captured", "data_length", len(data))
}

func captureRequest(req *http.Request) (map[string]any, error) {
	request := map[string]any{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": sanitizeHeaders(req.Header),
	}
	if req.Body == nil {
		return request, nil
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return request, fmt.Errorf("failed to read request body: %w", err)
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(body))

	if len(body) > 0 {
		elided := elideDataURLs(string(body))
		if json.Valid([]byte(elided)) {
			request["body"] = json.RawMessage(elided)
		} else {
			request["body"] = elided
		}
	}
	return request, nil
}

var dataURLPattern = regexp.MustCompile(`data:image/[a-zA-Z+.-]+;base64,[A-Za-z0-9+/=]+`)

func elideDataURLs(body string) string {
	return dataURLPattern.ReplaceAllStringFunc(body, func(url string) string {
		head, payload, _ := strings.Cut(url, ",")
		return fmt.Sprintf("%s,[%d bytes]", head, len(payload))
	})
}

// sanitizeHeaders masks credentials.
func sanitizeHeaders(headers http.Header) map[string][]string {
	sanitized := make(map[string][]string, len(headers))
	for name, values := range headers {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "authorization") || strings.Contains(lower, "api-key") || strings.Contains(lower, "token") {
			if len(values) > 0 && len(values[0]) > 10 {
				sanitized[name] = []string{values[0][:10] + "***[MASKED]***"}
			} else {
				sanitized[name] = []string{"***[MASKED]***"}
			}
			continue
		}
		sanitized[name] = values
	}
	return sanitized
}
