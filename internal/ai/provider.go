package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type ChatRequest struct {
	System      string
	Prompt      string
	// nil leaves the sampling temperature to the backend
	Temperature *float32
	MaxTokens   int
}

type IAIProvider interface {
	Name() string
	Chat(ctx context.Context, model string, req ChatRequest) (string, error)
}

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, texts []string, opts EmbedOptions) ([][]float32, error)
}

type EmbedOptions struct {
	TaskType  string
	Dimension int
}

// IEmbedder maps texts to vectors, one per input and in input order.
type IEmbedder interface {
	Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error)
	ModelName() string
	Dimension() int
}

type embedder struct {
	provider  IEmbedProvider
	model     string
	dimension int
}

func NewEmbedder(p IEmbedProvider, model string, dimension int) IEmbedder {
	return &embedder{provider: p, model: model, dimension: dimension}
}

func (e *embedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out, err := e.provider.Embed(ctx, e.model, texts, EmbedOptions{TaskType: taskType, Dimension: e.dimension})
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", e.provider.Name(), len(out), len(texts))
	}
	for i, vec := range out {
		if e.dimension > 0 && len(vec) != e.dimension {
			return nil, fmt.Errorf("%s embedding %d has dimension %d, want %d", e.provider.Name(), i, len(vec), e.dimension)
		}
	}
	return out, nil
}

func (e *embedder) ModelName() string {
	return e.provider.Name() + ":" + e.model
}

func (e *embedder) Dimension() int {
	return e.dimension
}

type ProviderFactory func(args interface{}) (IAIProvider, error)

type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)

var (
	registry      = map[string]ProviderFactory{}
	embedRegistry = map[string]EmbedProviderFactory{}
)

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func NewProvider(name string, args interface{}) (IAIProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("llm provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported llm provider: %s", name)
	}
	return factory(args)
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("embedding provider is required")
	}
	factory := embedRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embedding provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
