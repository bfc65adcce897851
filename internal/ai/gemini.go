package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiClient struct {
	apiKey string

	once   sync.Once
	client *genai.Client
	err    error
}

// get builds the SDK client on first use and shares it afterwards.
func (c *geminiClient) get(ctx context.Context) (*genai.Client, error) {
	if c.apiKey == "" {
		return nil, ErrUnavailable
	}
	c.once.Do(func() {
		c.client, c.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return c.client, c.err
}

type geminiProvider struct {
	client *geminiClient
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) Chat(ctx context.Context, model string, req ChatRequest) (string, error) {
	client, err := p.client.get(ctx)
	if err != nil {
		return "", err
	}
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

type geminiEmbedProvider struct {
	client *geminiClient
}

func (p *geminiEmbedProvider) Name() string {
	return "gemini"
}

func (p *geminiEmbedProvider) Embed(ctx context.Context, model string, texts []string, opts EmbedOptions) ([][]float32, error) {
	client, err := p.client.get(ctx)
	if err != nil {
		return nil, err
	}
	config := &genai.EmbedContentConfig{TaskType: opts.TaskType}
	if opts.Dimension > 0 {
		dim := int32(opts.Dimension)
		config.OutputDimensionality = &dim
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	resp, err := client.Models.EmbedContent(ctx, model, contents, config)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, item := range resp.Embeddings {
		out = append(out, item.Values)
	}
	return out, nil
}

func newGeminiClient(args interface{}) (*geminiClient, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiClient{apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func createGeminiFactory(args interface{}) (IAIProvider, error) {
	client, err := newGeminiClient(args)
	if err != nil {
		return nil, err
	}
	return &geminiProvider{client: client}, nil
}

func createGeminiEmbedFactory(args interface{}) (IEmbedProvider, error) {
	client, err := newGeminiClient(args)
	if err != nil {
		return nil, err
	}
	return &geminiEmbedProvider{client: client}, nil
}

func init() {
	Register("gemini", createGeminiFactory)
	RegisterEmbed("gemini", createGeminiEmbedFactory)
}
