package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"
)

// EmbeddingDimension is the vector width stored by the memory schema.
// Gemini embedding models support truncation to this width via
// OutputDimensionality; OpenAI text-embedding-3 models via Dimensions.
const EmbeddingDimension = 768

// openaiEmbedder produces embeddings via the OpenAI embeddings API.
type openaiEmbedder struct {
	client openai.Client
	model  string
}

func newOpenAIEmbedder(apiKey, model string) (*openaiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrMissingCredential)
	}
	return &openaiEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (e *openaiEmbedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: openai.Int(EmbeddingDimension),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// googleEmbedder produces embeddings via the Gemini API.
type googleEmbedder struct {
	client *genai.Client
	model  string
}

func newGoogleEmbedder(ctx context.Context, apiKey, model string) (*googleEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY is not set", ErrMissingCredential)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &googleEmbedder{client: client, model: model}, nil
}

func (e *googleEmbedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(inputs))
	for i, text := range inputs {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := int32(EmbeddingDimension)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d inputs", len(resp.Embeddings), len(inputs))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
