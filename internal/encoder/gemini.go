package encoder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultEmbedModel = "text-embedding-004"

// Keep embedding inputs below the model's token ceiling.
const maxEmbedInputBytes = 40000

// Gemini produces embeddings through the Gemini embeddings API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates an embeddings encoder backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultEmbedModel
	}

	return &Gemini{client: client, model: model}, nil
}

// Encode returns the embedding vector for the given text.
func (g *Gemini) Encode(ctx context.Context, text string) ([]float32, error) {
	if len(text) > maxEmbedInputBytes {
		text = text[:maxEmbedInputBytes]
	}

	result, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini api returned empty embedding")
	}

	return result.Embeddings[0].Values, nil
}

// Version identifies the provider and model that produced the vectors.
func (g *Gemini) Version() string {
	return "gemini/" + g.model
}
