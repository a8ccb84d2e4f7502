// Package llm implements the streaming client for OpenAI-compatible chat
// completion endpoints: request assembly, token accounting, image encoding and
// server-sent event decoding. All results are reported as messages.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"

	"lmbuddy/internal/config"
	"lmbuddy/internal/logger"
	"lmbuddy/internal/messaging"
	"lmbuddy/pkg/buddytypes"
)

// CancelledText is the Info text posted when a stream is cancelled.
const CancelledText = "LLM stream was cancelled."

// ConfigProvider returns the active configuration.
type ConfigProvider interface {
	Current() config.Config
}

// History is the conversation store the client reads from and appends to.
// AppendPair must add both turns in one critical section.
type History interface {
	Snapshot() []buddytypes.Turn
	AppendPair(user, assistant buddytypes.Turn)
}

// StopSignal is the process-wide cancellation flag.
type StopSignal interface {
	IsSet() bool
	Done() <-chan struct{}
}

// StreamRequest describes one streamed request.
type StreamRequest struct {
	RequestID      string
	History        History
	Parts          []buddytypes.Part
	Sink           buddytypes.MessageSink
	Stop           StopSignal
	Image          image.Image
	ActionKey      string
	TargetLanguage string
	DirectQuestion bool
}

// Client streams chat completions.
type Client struct {
	cfg        ConfigProvider
	counter    buddytypes.TokenCounter
	httpClient *http.Client
	debug      *DebugTransport
	log        *log.Logger
}

// NewClient creates a client. A nil counter selects the heuristic counter.
func NewClient(cfg ConfigProvider, counter buddytypes.TokenCounter) *Client {
	if counter == nil {
		counter = NewHeuristicCounter()
	}
	debug := NewDebugTransport(&http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout: 30 * time.Second,
	})
	return &Client{
		cfg:        cfg,
		counter:    counter,
		httpClient: &http.Client{Transport: debug},
		debug:      debug,
		log:        logger.NewStyledLogger("LLM"),
	}
}

// SetHTTPClient replaces the HTTP client. Exchanges are only recorded when its
// transport is a *DebugTransport.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
	c.debug, _ = hc.Transport.(*DebugTransport)
}

// LastExchange returns the last recorded HTTP exchange as JSON.
func (c *Client) LastExchange() string {
	if c.debug == nil {
		return ""
	}
	return c.debug.LastExchange()
}

// Counter returns the token counter.
func (c *Client) Counter() buddytypes.TokenCounter {
	return c.counter
}

// Stream sends the request and reports progress on req.Sink. It blocks until
// the stream ends and always finishes the sequence with exactly one Sentinel.
func (c *Client) Stream(ctx context.Context, req StreamRequest) {
	seq := messaging.NewSequence(req.Sink, req.RequestID)
	cfg := c.cfg.Current()
	promptTokens := 0

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Stream worker panicked", "request", seq.ID(), "error", r)
			seq.Error("Unexpected LLM error: " + truncate(fmt.Sprint(r), maxErrorDetail))
			seq.FinalCounts(promptTokens, 0, promptTokens)
		}
		seq.Close()
	}()

	if cancelled(ctx, req.Stop) {
		c.log.Info("Stream cancelled before sending", "request", seq.ID())
		seq.Info(CancelledText)
		return
	}

	if len(req.Parts) == 0 {
		c.log.Error("Stream called without user message content", "request", seq.ID())
		seq.Error("Internal error: " + ErrEmptyMessage.Error() + ".")
		return
	}

	history := req.History.Snapshot()
	messages := buildMessages(cfg.SystemPrompt(), history, req.Parts)
	promptTokens = countPromptTokens(c.counter, messages)
	seq.PromptTokens(promptTokens)
	c.log.Debug("Request assembled", "request", seq.ID(), "messages", len(messages), "tokens", promptTokens,
		"action", req.ActionKey, "direct", req.DirectQuestion)

	text, completion, providerTotal, err := c.send(ctx, cfg, req.Stop, messages, seq)
	if err != nil {
		if errors.Is(err, errStreamCancelled) {
			c.log.Info("Stream cancelled", "request", seq.ID(), "received", len(text))
			seq.Info(CancelledText)
			return
		}
		c.log.Error("Stream failed", "request", seq.ID(), "error", err)
		seq.Error(userMessage(err, cfg.RequestTimeoutDuration()))
		seq.FinalCounts(promptTokens, 0, promptTokens)
		return
	}

	if strings.TrimSpace(text) == "" {
		c.log.Warn("Stream finished without any text", "request", seq.ID())
	}

	req.History.AppendPair(buddytypes.UserTurn(req.Parts, req.Image), buddytypes.AssistantTurn(text))

	total := promptTokens + completion
	if providerTotal > total {
		total = providerTotal
	}
	c.log.Info("Stream finished", "request", seq.ID(), "prompt", promptTokens, "completion", completion,
		"provider_total", providerTotal, "tokens", total)
	seq.FinalCounts(promptTokens, completion, total)
	seq.FullResponse(text)
}

var errStreamCancelled = errors.New("stream cancelled")

// send performs the HTTP exchange and reads the event stream. It returns the
// accumulated text, the live completion count and the largest provider total.
func (c *Client) send(parent context.Context, cfg config.Config, stop StopSignal, messages []chatMessage, seq *messaging.Sequence) (string, int, int, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return "", 0, 0, fmt.Errorf("%w: endpoint URL is not configured for provider '%s'", ErrConfiguration, cfg.Provider)
	}

	body, err := json.Marshal(chatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	// The timeout bounds connecting and every silence between two lines.
	timeout := cfg.RequestTimeoutDuration()
	idle := time.AfterFunc(timeout, func() { cancel(ErrNetworkTimeout) })
	defer idle.Stop()

	var stopWatch sync.WaitGroup
	watchDone := make(chan struct{})
	defer func() {
		close(watchDone)
		stopWatch.Wait()
	}()
	if stop != nil {
		stopWatch.Add(1)
		go func() {
			defer stopWatch.Done()
			select {
			case <-stop.Done():
				cancel(errStreamCancelled)
			case <-watchDone:
			}
		}()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: invalid endpoint %q: %v", ErrConfiguration, endpoint, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if cfg.UsesBearerAuth() {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	c.log.Info("Sending request", "request", seq.ID(), "endpoint", endpoint, "model", cfg.Model)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, 0, classify(ctx, parent, stop, &NetworkError{Err: err})
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, 0, &NetworkError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var (
		text          strings.Builder
		completion    int
		providerTotal int
	)

	reader := bufio.NewReader(resp.Body)
	for {
		if cancelled(parent, stop) {
			return text.String(), completion, providerTotal, errStreamCancelled
		}

		line, readErr := reader.ReadString('\n')
		idle.Reset(timeout)

		if cancelled(parent, stop) {
			return text.String(), completion, providerTotal, errStreamCancelled
		}

		done, delta, usage := c.processLine(line, seq)
		if delta != "" {
			text.WriteString(delta)
			completion += c.counter.Count(delta)
			seq.Chunk(delta, completion)
		}
		if usage > providerTotal {
			providerTotal = usage
		}
		if done {
			break
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return text.String(), completion, providerTotal, classify(ctx, parent, stop, &NetworkError{Err: readErr})
		}
	}

	return text.String(), completion, providerTotal, nil
}

// processLine handles one line of the event stream. It reports whether the end
// marker was seen, the text delta and the provider total, if any.
func (c *Client) processLine(line string, seq *messaging.Sequence) (done bool, delta string, total int) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return false, "", 0
	}

	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return false, "", 0
	}
	data = strings.TrimSpace(data)
	if data == "[DONE]" {
		return true, "", 0
	}

	delta, total, err := decodePayload(data)
	if err != nil {
		c.log.Warn("Skipping undecodable stream payload", "request", seq.ID(), "data", truncate(data, 200), "error", err)
		return false, "", 0
	}
	return false, delta, total
}

// decodePayload extracts the first choice's delta text and the usage total.
func decodePayload(data string) (string, int, error) {
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", 0, fmt.Errorf("decode stream chunk: %w", err)
	}

	var delta string
	if len(chunk.Choices) > 0 {
		delta = chunk.Choices[0].Delta.Content
	}
	return delta, int(chunk.Usage.TotalTokens), nil
}

// classify maps a transport error to cancellation or timeout when the request
// context ended for one of those reasons.
func classify(ctx, parent context.Context, stop StopSignal, err error) error {
	if cancelled(parent, stop) {
		return errStreamCancelled
	}
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, ErrNetworkTimeout):
		return fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
	case errors.Is(cause, errStreamCancelled):
		return errStreamCancelled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
	}
	return err
}

func cancelled(ctx context.Context, stop StopSignal) bool {
	if stop != nil && stop.IsSet() {
		return true
	}
	return ctx.Err() != nil
}
