package services

import (
	"context"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/deliblab/deliblab/internal/experiment"
	"github.com/deliblab/deliblab/internal/llm"
)

// LLMService exposes the language model to experimenters, gated by the LLM settings.
// Failures are returned as llm.Result values.
type LLMService struct {
	store    AIConfigStore
	client   llm.Client
	embedder llm.Embedder
	parallel int
}

type Recommendation struct {
	Item  experiment.Item `json:"item"`
	Score float64         `json:"score"`
}

// NewLLMService wraps client; embedder may add caching in front of client.
func NewLLMService(store AIConfigStore, client llm.Client, embedder llm.Embedder) *LLMService {
	if embedder == nil {
		embedder = client
	}
	return &LLMService{store: store, client: client, embedder: embedder, parallel: 4}
}

func (s *LLMService) allowed(ctx context.Context) (LLMSettings, error) {
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return LLMSettings{}, err
	}
	if !st.LLM.AllowExternal || s.client == nil {
		return st.LLM, NewInvalidError("external AI disabled")
	}
	return st.LLM, nil
}

func (s *LLMService) Complete(ctx context.Context, prompt string) llm.Result[string] {
	if strings.TrimSpace(prompt) == "" {
		return llm.Fail[string](NewInvalidError("prompt required"))
	}
	cfg, err := s.allowed(ctx)
	if err != nil {
		return llm.Fail[string](err)
	}
	text, err := s.client.Complete(ctx, prompt, llm.CompleteOptions{Model: cfg.Model, Temperature: 0.7})
	if err != nil {
		return llm.Fail[string](NewBadGatewayError(err.Error()))
	}
	return llm.Ok(text)
}

func (s *LLMService) Embed(ctx context.Context, texts []string) llm.Result[[][]float32] {
	if len(texts) == 0 {
		return llm.Fail[[][]float32](NewInvalidError("texts required"))
	}
	if _, err := s.allowed(ctx); err != nil {
		return llm.Fail[[][]float32](err)
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return llm.Fail[[][]float32](NewBadGatewayError(err.Error()))
	}
	return llm.Ok(vecs)
}

// Recommend ranks the item catalogue by similarity to query and returns the best k.
func (s *LLMService) Recommend(ctx context.Context, query string, k int) llm.Result[[]Recommendation] {
	if strings.TrimSpace(query) == "" {
		return llm.Fail[[]Recommendation](NewInvalidError("query required"))
	}
	if _, err := s.allowed(ctx); err != nil {
		return llm.Fail[[]Recommendation](err)
	}
	ids := experiment.ItemIDs()
	vecs := make([][]float32, len(ids)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	texts := append([]string{query}, itemTexts(ids)...)
	for i, text := range texts {
		g.Go(func() error {
			v, err := s.embedder.Embed(gctx, []string{text})
			if err != nil {
				return err
			}
			if len(v) != 1 {
				return llm.ErrProvider
			}
			vecs[i] = v[0]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return llm.Fail[[]Recommendation](NewBadGatewayError(err.Error()))
	}

	out := make([]Recommendation, 0, len(ids))
	for i, id := range ids {
		out = append(out, Recommendation{Item: experiment.Items[id], Score: cosine(vecs[0], vecs[i+1])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return llm.Ok(out)
}

func itemTexts(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, experiment.Items[id].Name)
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
