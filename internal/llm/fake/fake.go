// Package fake provides a deterministic, in-process ModelHandle used by
// tests and by offline runs of the orchestration engine. It never makes a
// network call.
package fake

import (
	"context"
	"sync"

	"codenerd/internal/llm"
)

// Handle is a scriptable ModelHandle: each call to Respond consumes the
// next entry from Responses (repeating the last entry once exhausted). When
// RespondFunc is set it is used instead; with neither, the reply is empty.
type Handle struct {
	mu sync.Mutex

	id        string
	Responses []string
	next      int

	// RespondFunc, if set, overrides the canned Responses list entirely.
	RespondFunc func(messages []llm.Message) (string, error)

	Calls []CallRecord
}

// CallRecord captures one invocation for test assertions.
type CallRecord struct {
	Messages []llm.Message
}

// New builds a fake handle for modelID that returns each of responses in
// turn, then repeats the final one.
func New(modelID string, responses ...string) *Handle {
	return &Handle{id: modelID, Responses: responses}
}

func (h *Handle) ModelID() string { return h.id }

// Respond returns the next scripted response and a Usage proportional to
// message/response length: chars/4 (rounded down) + 1 tokens for the input
// and for the output. This is not the same count as the tokencost
// heuristic, which rounds chars/4 up.
func (h *Handle) Respond(_ context.Context, messages []llm.Message) (llm.Message, llm.Usage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Calls = append(h.Calls, CallRecord{Messages: messages})

	var text string
	var err error
	if h.RespondFunc != nil {
		text, err = h.RespondFunc(messages)
	} else if len(h.Responses) > 0 {
		idx := h.next
		if idx >= len(h.Responses) {
			idx = len(h.Responses) - 1
		} else {
			h.next++
		}
		text = h.Responses[idx]
	}
	if err != nil {
		return llm.Message{}, llm.Usage{}, err
	}

	var inputChars int
	for _, m := range messages {
		inputChars += len(m.Content)
	}

	usage := llm.Usage{
		InputTokens:  int64(inputChars/4 + 1),
		OutputTokens: int64(len(text)/4 + 1),
	}

	return llm.Message{Role: "assistant", Content: text}, usage, nil
}

// CallCount returns the number of times Respond was invoked.
func (h *Handle) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Calls)
}
