package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultHTTPTimeout   = 60 * time.Second
)

type openAIConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type openAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	// keyless providers such as a local Ollama accept requests without a key
	requireKey bool
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIChatMsg `json:"messages"`
	Temperature *float32        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Chat(ctx context.Context, model string, req ChatRequest) (string, error) {
	if p.requireKey && p.apiKey == "" {
		return "", ErrUnavailable
	}
	msgs := make([]openAIChatMsg, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openAIChatMsg{Role: "system", Content: req.System})
	}
	msgs = append(msgs, openAIChatMsg{Role: "user", Content: req.Prompt})
	body := openAIChatRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
		Stream:    false,
	}
	if req.Temperature != nil {
		t := *req.Temperature
		body.Temperature = &t
	}
	var out openAIChatResponse
	if err := p.post(ctx, "/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

type openAIEmbedProvider struct {
	openAIProvider
}

func (p *openAIEmbedProvider) Embed(ctx context.Context, model string, texts []string, opts EmbedOptions) ([][]float32, error) {
	if p.requireKey && p.apiKey == "" {
		return nil, ErrUnavailable
	}
	body := openAIEmbedRequest{
		Model: model,
		Input: texts,
	}
	if strings.HasPrefix(model, "text-embedding-3") {
		body.Dimensions = opts.Dimension
	}
	var out openAIEmbedResponse
	if err := p.post(ctx, "/embeddings", body, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai response has %d embeddings for %d inputs", len(out.Data), len(texts))
	}
	sort.SliceStable(out.Data, func(i, j int) bool {
		return out.Data[i].Index < out.Data[j].Index
	})
	res := make([][]float32, 0, len(out.Data))
	for _, item := range out.Data {
		res = append(res, item.Embedding)
	}
	return res, nil
}

func (p *openAIProvider) post(ctx context.Context, path string, in interface{}, out interface{}) error {
	endpoint := strings.TrimRight(p.baseURL, "/") + path
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("openai request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newOpenAIProvider(args interface{}) (*openAIProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &openAIProvider{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		requireKey: baseURL == defaultOpenAIBaseURL,
	}, nil
}

func createOpenAIFactory(args interface{}) (IAIProvider, error) {
	return newOpenAIProvider(args)
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	p, err := newOpenAIProvider(args)
	if err != nil {
		return nil, err
	}
	return &openAIEmbedProvider{openAIProvider: *p}, nil
}

func init() {
	Register("openai", createOpenAIFactory)
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}
