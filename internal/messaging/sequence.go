package messaging

import "lmbuddy/pkg/buddytypes"

// Sequence posts the messages of one request sequence under a shared request
// ID and guarantees that exactly one Sentinel closes it.
type Sequence struct {
	sink   buddytypes.MessageSink
	id     string
	closed bool
}

// NewSequence starts a request sequence on sink. An empty id gets a fresh one.
func NewSequence(sink buddytypes.MessageSink, id string) *Sequence {
	if id == "" {
		id = buddytypes.NewRequestID()
	}
	return &Sequence{sink: sink, id: id}
}

// ID returns the request identifier stamped on every message of the sequence.
func (s *Sequence) ID() string {
	return s.id
}

// Envelope returns the envelope for messages of this sequence.
func (s *Sequence) Envelope() buddytypes.Envelope {
	return buddytypes.Envelope{RequestID: s.id}
}

// Info posts a status notice.
func (s *Sequence) Info(text string) {
	s.post(buddytypes.Info{Envelope: s.Envelope(), Text: text})
}

// Error posts a failure notice.
func (s *Sequence) Error(text string) {
	s.post(buddytypes.Error{Envelope: s.Envelope(), Text: text})
}

// Chunk posts one streamed delta.
func (s *Sequence) Chunk(text string, liveTokens int) {
	s.post(buddytypes.Chunk{Envelope: s.Envelope(), Text: text, LiveCompletionTokens: liveTokens})
}

// PromptTokens posts the client-side prompt token count.
func (s *Sequence) PromptTokens(count int) {
	s.post(buddytypes.PromptTokensUpdate{Envelope: s.Envelope(), Count: count})
}

// FinalCounts posts the final token accounting.
func (s *Sequence) FinalCounts(prompt, completion, total int) {
	s.post(buddytypes.FinalTokenCounts{Envelope: s.Envelope(), Prompt: prompt, Completion: completion, Total: total})
}

// FullResponse posts the accumulated response text.
func (s *Sequence) FullResponse(text string) {
	s.post(buddytypes.FullResponse{Envelope: s.Envelope(), Text: text})
}

// Post forwards a message built by the caller, typically with s.Envelope().
func (s *Sequence) Post(msg buddytypes.Message) {
	s.post(msg)
}

// Close posts the Sentinel. Calls after the first are no-ops.
func (s *Sequence) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.sink.Post(buddytypes.Sentinel{Envelope: s.Envelope()})
}

// Closed reports whether the Sentinel has been posted.
func (s *Sequence) Closed() bool {
	return s.closed
}

func (s *Sequence) post(msg buddytypes.Message) {
	if s.closed {
		return
	}
	s.sink.Post(msg)
}
