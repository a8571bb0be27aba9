package llm

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const (
	defaultGenAIModel     = "gemini-2.0-flash"
	defaultGenAIEmbedding = "text-embedding-004"
)

// GenAIClient uses the Google GenAI SDK, against the Gemini API when an API key is set
// and against Vertex AI otherwise.
type GenAIClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

func NewGenAIClient(ctx context.Context, opts Options) (*GenAIClient, error) {
	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: opts.Timeout},
	}
	if opts.APIKey == "" {
		cc.Backend = genai.BackendVertexAI
		cc.Project = opts.Project
		cc.Location = opts.Location
	}
	if opts.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	g := &GenAIClient{client: client, model: opts.Model, embeddingModel: opts.EmbeddingModel}
	if g.model == "" {
		g.model = defaultGenAIModel
	}
	if g.embeddingModel == "" {
		g.embeddingModel = defaultGenAIEmbedding
	}
	return g, nil
}

func (g *GenAIClient) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = g.model
	}
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(opts.Temperature)}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrProvider)
	}
	return text, nil
}

func (g *GenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProvider, len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, 0, len(texts))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}
