// Package genai adapts Google's Gemini API (google.golang.org/genai) to the
// llm.ModelHandle contract. This is the reference "real" provider adapter;
// the core never imports it directly, only through llm.ModelHandle.
package genai

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"codenerd/internal/llm"
	"codenerd/internal/logging"
)

var log = logging.L("llm.genai")

// Handle wraps a Gemini model behind the llm.ModelHandle interface.
type Handle struct {
	client  *genai.Client
	modelID string
}

// New creates a Handle for modelID ("gemini-2.5-pro", "gemini-2.5-flash", …).
func New(ctx context.Context, apiKey, modelID string) (*Handle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	return &Handle{client: client, modelID: modelID}, nil
}

func (h *Handle) ModelID() string { return h.modelID }

// Respond sends the message history to Gemini and returns its reply.
// Every chat-role message is translated into a genai.Content turn; the
// text of all parts of the response's first candidate, joined, is returned
// as the assistant reply. Every GenerateContent error is wrapped as an
// llm.TransientError, so the retry policy retries it; permanent (4xx)
// errors are not told apart here.
func (h *Handle) Respond(ctx context.Context, messages []llm.Message) (llm.Message, llm.Usage, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	log.Debugw("genai request", "model", h.modelID, "turns", len(contents))

	result, err := h.client.Models.GenerateContent(ctx, h.modelID, contents, nil)
	if err != nil {
		return llm.Message{}, llm.Usage{}, &llm.TransientError{Err: fmt.Errorf("genai: generate content: %w", err)}
	}

	text := ""
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			text += part.Text
		}
	}

	usage := llm.Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
	}

	return llm.Message{Role: "assistant", Content: text}, usage, nil
}
