package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Completer generates text for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)
}

// Embedder maps texts to embedding vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Client is a provider that can do both.
type Client interface {
	Completer
	Embedder
}

type CompleteOptions struct {
	Model       string
	System      string
	Temperature float32
	MaxTokens   int
}

// Result is the value handed back to HTTP callers: either Value or a non-empty Err.
type Result[T any] struct {
	Value T      `json:"value"`
	Err   string `json:"error,omitempty"`
}

func (r Result[T]) IsError() bool { return r.Err != "" }

func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

func Fail[T any](err error) Result[T] {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result[T]{Err: msg}
}

// ErrProvider wraps failures reported by the model provider.
var ErrProvider = errors.New("llm provider error")

type Options struct {
	Provider       string
	Endpoint       string
	Model          string
	EmbeddingModel string
	APIKey         string
	Project        string
	Location       string
	Timeout        time.Duration
}

// New builds the client selected by opts.Provider.
func New(ctx context.Context, opts Options) (Client, error) {
	switch strings.ToLower(opts.Provider) {
	case "", "vertex":
		return NewVertexClient(ctx, opts), nil
	case "genai":
		return NewGenAIClient(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}
