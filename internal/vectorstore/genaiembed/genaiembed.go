// Package genaiembed adapts Google's Gemini embedding API to the
// vectorstore.Embedder contract.
package genaiembed

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"codenerd/internal/logging"
)

var log = logging.L("vectorstore.genaiembed")

const defaultModel = "gemini-embedding-001"
const dimensions = 3072

func int32Ptr(i int32) *int32 { return &i }

// Embedder generates embeddings via the Gemini API.
type Embedder struct {
	client *genai.Client
	model  string
}

// New builds a genaiembed.Embedder. model defaults to "gemini-embedding-001"
// when empty.
func New(ctx context.Context, apiKey, model string) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genaiembed: API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("genaiembed: create client: %w", err)
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) Dimensions() int { return dimensions }

// Embed generates a single embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: int32Ptr(int32(dimensions)),
	})
	if err != nil {
		log.Warnw("embed request failed", "model", e.model, "err", err)
		return nil, fmt.Errorf("genaiembed: embed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("genaiembed: no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}
