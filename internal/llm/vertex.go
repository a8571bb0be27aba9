package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultVertexModel     = "text-bison"
	defaultVertexEmbedding = "textembedding-gecko"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// VertexClient talks to a Vertex AI style predict endpoint:
// POST {endpoint}/{model}:predict with {instances, parameters}.
type VertexClient struct {
	endpoint       string
	model          string
	embeddingModel string
	client         HTTPClient
}

// NewVertexClient authenticates with opts.APIKey as a static bearer token.
func NewVertexClient(ctx context.Context, opts Options) *VertexClient {
	var hc *http.Client
	if opts.APIKey != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey, TokenType: "Bearer"}))
	} else {
		hc = &http.Client{}
	}
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	} else {
		hc.Timeout = 60 * time.Second
	}
	return newVertexClient(opts, hc)
}

func newVertexClient(opts Options, client HTTPClient) *VertexClient {
	c := &VertexClient{
		endpoint:       strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/"),
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		client:         client,
	}
	if c.endpoint == "" {
		project, location := opts.Project, opts.Location
		if location == "" {
			location = "us-central1"
		}
		c.endpoint = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models", location, project, location)
	}
	if c.model == "" {
		c.model = defaultVertexModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = defaultVertexEmbedding
	}
	return c
}

type vertexInstance struct {
	Content string `json:"content"`
}

type vertexRequest struct {
	Instances  []vertexInstance `json:"instances"`
	Parameters map[string]any   `json:"parameters,omitempty"`
}

func (c *VertexClient) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	content := prompt
	if opts.System != "" {
		content = opts.System + "\n\n" + prompt
	}
	params := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		params["maxOutputTokens"] = opts.MaxTokens
	}
	var out struct {
		Predictions []struct {
			Content string `json:"content"`
		} `json:"predictions"`
	}
	if err := c.predict(ctx, model, vertexRequest{Instances: []vertexInstance{{Content: content}}, Parameters: params}, &out); err != nil {
		return "", err
	}
	if len(out.Predictions) == 0 {
		return "", fmt.Errorf("%w: no predictions", ErrProvider)
	}
	return out.Predictions[0].Content, nil
}

func (c *VertexClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := vertexRequest{Instances: make([]vertexInstance, 0, len(texts))}
	for _, t := range texts {
		req.Instances = append(req.Instances, vertexInstance{Content: t})
	}
	var out struct {
		Predictions []struct {
			Embeddings struct {
				Values []float32 `json:"values"`
			} `json:"embeddings"`
		} `json:"predictions"`
	}
	if err := c.predict(ctx, c.embeddingModel, req, &out); err != nil {
		return nil, err
	}
	if len(out.Predictions) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProvider, len(out.Predictions), len(texts))
	}
	vecs := make([][]float32, 0, len(texts))
	for _, p := range out.Predictions {
		vecs = append(vecs, p.Embeddings.Values)
	}
	return vecs, nil
}

func (c *VertexClient) predict(ctx context.Context, model string, body vertexRequest, out any) error {
	pb, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+model+":predict", bytes.NewReader(pb))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrProvider, err)
	}
	return nil
}
