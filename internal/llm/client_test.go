package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmbuddy/internal/config"
	"lmbuddy/pkg/buddytypes"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []buddytypes.Message
}

func (s *recordingSink) Post(m buddytypes.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

func (s *recordingSink) all() []buddytypes.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]buddytypes.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *recordingSink) kinds() []string {
	var out []string
	for _, m := range s.all() {
		out = append(out, buddytypes.KindOf(m))
	}
	return out
}

func (s *recordingSink) count(kind string) int {
	n := 0
	for _, k := range s.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type memoryHistory struct {
	mu    sync.Mutex
	turns []buddytypes.Turn
}

func (h *memoryHistory) Snapshot() []buddytypes.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]buddytypes.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *memoryHistory) AppendPair(user, assistant buddytypes.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, user, assistant)
}

type testStop struct {
	once sync.Once
	ch   chan struct{}
}

func newTestStop() *testStop { return &testStop{ch: make(chan struct{})} }

func (s *testStop) Set() { s.once.Do(func() { close(s.ch) }) }

func (s *testStop) IsSet() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

func (s *testStop) Done() <-chan struct{} { return s.ch }

func testConfig(endpoint string) *config.Config {
	cfg := config.Defaults()
	cfg.Endpoint = endpoint
	cfg.Model = "test-model"
	cfg.RequestTimeout = 5
	return cfg
}

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			_, _ = fmt.Fprintf(w, "%s\n\n", line)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func deltaLine(text string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": text}}},
	})
	return "data: " + string(payload)
}

func streamOnce(t *testing.T, cfg *config.Config, history *memoryHistory, stop *testStop, parts ...buddytypes.Part) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	client := NewClient(config.NewStaticStore(cfg), NewHeuristicCounter())
	client.Stream(context.Background(), StreamRequest{
		History:        history,
		Parts:          parts,
		Sink:           sink,
		Stop:           stop,
		DirectQuestion: true,
	})
	return sink
}

func assertSingleTrailingSentinel(t *testing.T, sink *recordingSink) {
	t.Helper()
	kinds := sink.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, 1, sink.count("sentinel"), "kinds: %v", kinds)
	assert.Equal(t, "sentinel", kinds[len(kinds)-1])
}

func TestStream_ParisScenario(t *testing.T) {
	server := sseServer(t, deltaLine("Paris"), "data: [DONE]")
	cfg := testConfig(server.URL)
	history := &memoryHistory{}

	sink := streamOnce(t, cfg, history, newTestStop(), buddytypes.TextPart("What is the capital of France?"))

	assert.Equal(t, []string{"prompt_tokens", "chunk", "final_tokens", "full_response", "sentinel"}, sink.kinds())

	msgs := sink.all()
	prompt := msgs[0].(buddytypes.PromptTokensUpdate)
	chunk := msgs[1].(buddytypes.Chunk)
	final := msgs[2].(buddytypes.FinalTokenCounts)
	full := msgs[3].(buddytypes.FullResponse)

	counter := NewHeuristicCounter()
	expectedPrompt := counter.Count(cfg.SystemPrompt()) + counter.Count("What is the capital of France?")
	assert.Equal(t, expectedPrompt, prompt.Count)
	assert.Equal(t, "Paris", chunk.Text)
	assert.Equal(t, counter.Count("Paris"), chunk.LiveCompletionTokens)
	assert.Equal(t, prompt.Count, final.Prompt)
	assert.Equal(t, counter.Count("Paris"), final.Completion)
	assert.Equal(t, prompt.Count+counter.Count("Paris"), final.Total)
	assert.Equal(t, "Paris", full.Text)

	// every message of the sequence shares one request ID
	for _, m := range msgs {
		assert.Equal(t, msgs[0].Request(), m.Request())
	}

	turns := history.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, buddytypes.RoleUser, turns[0].Role)
	assert.Equal(t, "What is the capital of France?", turns[0].PlainText())
	assert.Equal(t, buddytypes.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Paris", turns[1].Text)
}

func TestStream_RequestBody(t *testing.T) {
	var (
		mu       sync.Mutex
		captured chatRequestCapture
		header   http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(body, &captured)
		header = r.Header.Clone()
		mu.Unlock()
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.APIKey = "secret"
	cfg.Provider = "openai"
	cfg.Temperature = 0.5
	cfg.MaxTokens = 99

	streamOnce(t, cfg, &memoryHistory{}, newTestStop(),
		buddytypes.ImagePart("data:image/jpeg;base64,AAAA"), buddytypes.TextPart("describe"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "test-model", captured.Model)
	assert.True(t, captured.Stream)
	assert.Equal(t, 0.5, captured.Temperature)
	assert.Equal(t, 99, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)

	var parts []contentPart
	require.NoError(t, json.Unmarshal(captured.Messages[1].Content, &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[0].Type)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", parts[0].ImageURL.URL)
	assert.Equal(t, "text", parts[1].Type)
	assert.Equal(t, "describe", parts[1].Text)

	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", header.Get("Accept"))
	assert.Equal(t, "Bearer secret", header.Get("Authorization"))
}

type chatRequestCapture struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Stream      bool    `json:"stream"`
}

func TestStream_NoAuthorizationWithoutKey(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	streamOnce(t, testConfig(server.URL), &memoryHistory{}, newTestStop(), buddytypes.TextPart("hi"))
	assert.Empty(t, got)
}

func TestStream_UsageTotalKeepsMaximum(t *testing.T) {
	server := sseServer(t,
		`data: {"choices":[{"delta":{"content":"Hello"}}],"usage":{"total_tokens":500}}`,
		`data: {"choices":[{"delta":{"content":" world"}}],"usage":{"total_tokens":120}}`,
		"data: [DONE]",
	)

	sink := streamOnce(t, testConfig(server.URL), &memoryHistory{}, newTestStop(), buddytypes.TextPart("hi"))

	var final buddytypes.FinalTokenCounts
	for _, m := range sink.all() {
		if f, ok := m.(buddytypes.FinalTokenCounts); ok {
			final = f
		}
	}
	assert.Equal(t, 500, final.Total)
	assert.Equal(t, EstimateTokens("Hello")+EstimateTokens("world"), final.Completion)
}

func TestStream_MalformedPayloadIsSkipped(t *testing.T) {
	server := sseServer(t,
		": keep-alive comment",
		deltaLine("Hel"),
		"data: {not json",
		"event: ignored",
		deltaLine("lo"),
		"data: [DONE]",
		deltaLine("after done"),
	)
	history := &memoryHistory{}

	sink := streamOnce(t, testConfig(server.URL), history, newTestStop(), buddytypes.TextPart("hi"))

	assert.Equal(t, []string{"prompt_tokens", "chunk", "chunk", "final_tokens", "full_response", "sentinel"}, sink.kinds())
	turns := history.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, "Hello", turns[1].Text)
}

func TestStream_StreamWithoutDoneMarker(t *testing.T) {
	server := sseServer(t, deltaLine("partial"))
	history := &memoryHistory{}

	sink := streamOnce(t, testConfig(server.URL), history, newTestStop(), buddytypes.TextPart("hi"))

	assertSingleTrailingSentinel(t, sink)
	assert.Len(t, history.Snapshot(), 2)
}

func TestStream_ErrorPathsEmitSingleSentinel(t *testing.T) {
	closed := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer failing.Close()

	tests := []struct {
		name     string
		endpoint string
		prefix   string
	}{
		{name: "missing endpoint", endpoint: "", prefix: "LLM configuration error"},
		{name: "invalid endpoint", endpoint: "http://[::1", prefix: "LLM configuration error"},
		{name: "connection refused", endpoint: closedURL, prefix: "LLM connection error"},
		{name: "http 500", endpoint: failing.URL, prefix: "LLM connection error: HTTP error 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := &memoryHistory{}
			sink := streamOnce(t, testConfig(tt.endpoint), history, newTestStop(), buddytypes.TextPart("hi"))

			assert.Equal(t, []string{"prompt_tokens", "error", "final_tokens", "sentinel"}, sink.kinds())
			msgs := sink.all()
			errMsg := msgs[1].(buddytypes.Error)
			assert.True(t, strings.HasPrefix(errMsg.Text, tt.prefix), errMsg.Text)

			prompt := msgs[0].(buddytypes.PromptTokensUpdate).Count
			final := msgs[2].(buddytypes.FinalTokenCounts)
			assert.Equal(t, buddytypes.FinalTokenCounts{Envelope: final.Envelope, Prompt: prompt, Completion: 0, Total: prompt}, final)
			assert.Empty(t, history.Snapshot())
		})
	}
}

func TestStream_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig(server.URL)
	cfg.RequestTimeout = 1
	history := &memoryHistory{}

	sink := streamOnce(t, cfg, history, newTestStop(), buddytypes.TextPart("hi"))

	assert.Equal(t, []string{"prompt_tokens", "error", "final_tokens", "sentinel"}, sink.kinds())
	assert.Equal(t, "LLM request timed out (1s).", sink.all()[1].(buddytypes.Error).Text)
	assert.Empty(t, history.Snapshot())
}

func TestStream_StopBeforeStart(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	stop := newTestStop()
	stop.Set()
	history := &memoryHistory{}

	sink := streamOnce(t, testConfig(server.URL), history, stop, buddytypes.TextPart("hi"))

	assert.Equal(t, []string{"info", "sentinel"}, sink.kinds())
	assert.Equal(t, CancelledText, sink.all()[0].(buddytypes.Info).Text)
	assert.Empty(t, history.Snapshot())
	assert.Equal(t, 0, hits)
}

func TestStream_StopDuringStream(t *testing.T) {
	sent := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "%s\n\n", deltaLine("first"))
		w.(http.Flusher).Flush()
		close(sent)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = fmt.Fprintf(w, "%s\n\n", deltaLine("second"))
	}))
	defer server.Close()
	defer close(release)

	stop := newTestStop()
	history := &memoryHistory{}
	sink := &recordingSink{}
	client := NewClient(config.NewStaticStore(testConfig(server.URL)), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Stream(context.Background(), StreamRequest{
			History: history,
			Parts:   []buddytypes.Part{buddytypes.TextPart("hi")},
			Sink:    sink,
			Stop:    stop,
		})
	}()

	<-sent
	require.Eventually(t, func() bool { return sink.count("chunk") == 1 }, 2*time.Second, time.Millisecond)
	stop.Set()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not observe the stop signal")
	}

	assert.Equal(t, []string{"prompt_tokens", "chunk", "info", "sentinel"}, sink.kinds())
	assert.Empty(t, history.Snapshot())
}

func TestStream_ContextCancelled(t *testing.T) {
	server := sseServer(t, deltaLine("never"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	client := NewClient(config.NewStaticStore(testConfig(server.URL)), nil)
	client.Stream(ctx, StreamRequest{
		History: &memoryHistory{},
		Parts:   []buddytypes.Part{buddytypes.TextPart("hi")},
		Sink:    sink,
	})

	assert.Equal(t, []string{"info", "sentinel"}, sink.kinds())
}

func TestStream_EmptyParts(t *testing.T) {
	sink := streamOnce(t, testConfig("http://127.0.0.1:1"), &memoryHistory{}, newTestStop())
	assert.Equal(t, []string{"error", "sentinel"}, sink.kinds())
}

type panickingHistory struct{ memoryHistory }

func (p *panickingHistory) AppendPair(buddytypes.Turn, buddytypes.Turn) { panic("disk full") }

func TestStream_PanicStillSendsSentinel(t *testing.T) {
	server := sseServer(t, deltaLine("ok"), "data: [DONE]")
	sink := &recordingSink{}
	client := NewClient(config.NewStaticStore(testConfig(server.URL)), nil)

	client.Stream(context.Background(), StreamRequest{
		History: &panickingHistory{},
		Parts:   []buddytypes.Part{buddytypes.TextPart("hi")},
		Sink:    sink,
	})

	assertSingleTrailingSentinel(t, sink)
	assert.Equal(t, 1, sink.count("error"))
}

func TestStream_HistoryAccumulates(t *testing.T) {
	server := sseServer(t, deltaLine("answer"), "data: [DONE]")
	history := &memoryHistory{}
	const requests = 4

	for i := 0; i < requests; i++ {
		sink := streamOnce(t, testConfig(server.URL), history, newTestStop(), buddytypes.TextPart(fmt.Sprintf("q%d", i)))
		assertSingleTrailingSentinel(t, sink)
	}
	assert.Len(t, history.Snapshot(), 2*requests)
}

func TestStream_ConcurrentAppendsArePaired(t *testing.T) {
	server := sseServer(t, deltaLine("answer"), "data: [DONE]")
	history := &memoryHistory{}
	client := NewClient(config.NewStaticStore(testConfig(server.URL)), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client.Stream(context.Background(), StreamRequest{
				History: history,
				Parts:   []buddytypes.Part{buddytypes.TextPart(fmt.Sprintf("q%d", i))},
				Sink:    &recordingSink{},
			})
		}(i)
	}
	wg.Wait()

	turns := history.Snapshot()
	require.Len(t, turns, 16)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, buddytypes.RoleUser, turns[i].Role)
		assert.Equal(t, buddytypes.RoleAssistant, turns[i+1].Role)
	}
}

func TestStream_StoresImageWithUserTurn(t *testing.T) {
	server := sseServer(t, deltaLine("a cat"), "data: [DONE]")
	history := &memoryHistory{}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	client := NewClient(config.NewStaticStore(testConfig(server.URL)), nil)
	client.Stream(context.Background(), StreamRequest{
		History: history,
		Parts:   []buddytypes.Part{buddytypes.TextPart("what is this")},
		Sink:    &recordingSink{},
		Image:   img,
	})

	turns := history.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, img, turns[0].Image)
	assert.Nil(t, turns[1].Image)
}
