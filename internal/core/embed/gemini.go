package embed

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiEncoder calls the Gemini embedding API for batches of texts.
type GeminiEncoder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

func NewGeminiEncoder(ctx context.Context, apiKey, model string) (*GeminiEncoder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("embed: create gemini client: %w", err)
	}
	return &GeminiEncoder{
		client: client,
		model:  client.EmbeddingModel(model),
	}, nil
}

func (g *GeminiEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	batch := g.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := g.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("embed: batch embed: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: got %d embeddings for %d texts", len(res.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (g *GeminiEncoder) Close() error {
	return g.client.Close()
}
