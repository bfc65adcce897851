package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	MsgNoContext             = "I couldn't find any relevant information in your documents to answer this question."
	MsgOpenAINotConfigured   = "OpenAI API key not configured. Please set llm.openai.api_key in the config file."
	MsgGeminiNotConfigured   = "Gemini API key not configured. Please set llm.gemini.api_key in the config file."
	MsgRateLimited           = "The Gemini API rate limit was reached on every available model. Please wait a minute and try again, or configure an OpenAI API key as a fallback."
	msgGenerationErrorPrefix = "Sorry, I encountered an error while generating the response: "
	systemPrompt             = "You are a helpful assistant that answers questions based on provided context from documents. Be accurate and cite the source documents when possible."
	defaultGenerationTimeout = 60 * time.Second
	defaultOpenAIMaxTokens   = 500
	defaultOpenAITemperature = float32(0.7)
	defaultOpenAIChatModel   = "gpt-4"
)

var defaultGeminiModels = []string{"gemini-1.5-flash", "gemini-1.5-flash-8b", "gemini-1.5-pro"}

var ErrNoContext = errors.New("no context chunks")

type NotConfiguredError struct {
	Provider string
}

func (e *NotConfiguredError) Error() string {
	return e.Provider + " api key not configured"
}

// RateLimitError means every candidate was throttled and no fallback backend
// exists.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return "rate limited: " + e.Err.Error()
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

type GeneratorConfig struct {
	Provider     string
	Timeout      time.Duration
	OpenAIModel  string
	Temperature  *float32
	MaxTokens    int
	GeminiModels []string
}

// Generator turns retrieved chunks into an answer. A nil provider means
// that backend has no credentials.
type Generator struct {
	cfg    GeneratorConfig
	openai ai.IAIProvider
	gemini ai.IAIProvider
}

func NewGenerator(cfg GeneratorConfig, openai ai.IAIProvider, gemini ai.IAIProvider) *Generator {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGenerationTimeout
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = defaultOpenAIChatModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultOpenAIMaxTokens
	}
	if cfg.Temperature == nil {
		t := defaultOpenAITemperature
		cfg.Temperature = &t
	}
	if len(cfg.GeminiModels) == 0 {
		cfg.GeminiModels = defaultGeminiModels
	}
	return &Generator{cfg: cfg, openai: openai, gemini: gemini}
}

// Generate always yields displayable text. Failures become a message.
func (g *Generator) Generate(ctx context.Context, query string, chunks []model.SearchResult) string {
	answer, err := g.Answer(ctx, query, chunks)
	if err == nil {
		return answer
	}
	if !errors.Is(err, ErrNoContext) {
		logutil.GetLogger(ctx).Error("answer generation failed",
			zap.String("provider", g.cfg.Provider),
			zap.Error(err),
		)
	}
	return Message(err)
}

// Message maps an Answer error to the text shown to the user.
func Message(err error) string {
	var notConfigured *NotConfiguredError
	var rateLimited *RateLimitError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoContext):
		return MsgNoContext
	case errors.As(err, &notConfigured):
		if notConfigured.Provider == ProviderGemini {
			return MsgGeminiNotConfigured
		}
		return MsgOpenAINotConfigured
	case errors.As(err, &rateLimited):
		return MsgRateLimited
	default:
		return msgGenerationErrorPrefix + err.Error()
	}
}

func (g *Generator) Answer(ctx context.Context, query string, chunks []model.SearchResult) (string, error) {
	if len(chunks) == 0 {
		return "", ErrNoContext
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	prompt := BuildPrompt(query, chunks)
	if g.cfg.Provider == ProviderGemini {
		return g.answerGemini(ctx, prompt)
	}
	return g.answerOpenAI(ctx, prompt)
}

func (g *Generator) answerOpenAI(ctx context.Context, prompt string) (string, error) {
	if g.openai == nil {
		return "", &NotConfiguredError{Provider: ProviderOpenAI}
	}
	res, err := g.openai.Chat(ctx, g.cfg.OpenAIModel, ai.ChatRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return "", &NotConfiguredError{Provider: ProviderOpenAI}
		}
		return "", &BackendError{Err: err}
	}
	return res, nil
}

// answerGemini walks the candidate models in order. The first throttled
// candidate triggers one attempt on the openai backend, if it is configured.
func (g *Generator) answerGemini(ctx context.Context, prompt string) (string, error) {
	if g.gemini == nil {
		return "", &NotConfiguredError{Provider: ProviderGemini}
	}
	logger := logutil.GetLogger(ctx)
	var lastErr error
	rateLimited := false
	fallbackTried := false
	for _, name := range g.cfg.GeminiModels {
		res, err := g.gemini.Chat(ctx, name, ai.ChatRequest{Prompt: prompt})
		if err == nil {
			return res, nil
		}
		if errors.Is(err, ai.ErrUnavailable) {
			return "", &NotConfiguredError{Provider: ProviderGemini}
		}
		lastErr = err
		logger.Warn("gemini candidate failed", zap.String("model", name), zap.Error(err))
		if ai.IsRateLimit(err) {
			rateLimited = true
			if g.openai != nil && !fallbackTried {
				fallbackTried = true
				res, ferr := g.answerOpenAI(ctx, prompt)
				if ferr == nil {
					logger.Info("answered by openai fallback", zap.String("throttled_model", name))
					return res, nil
				}
				lastErr = ferr
				logger.Warn("openai fallback failed", zap.Error(ferr))
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no gemini models configured")
	}
	if rateLimited && g.openai == nil {
		return "", &RateLimitError{Err: lastErr}
	}
	var backendErr *BackendError
	if errors.As(lastErr, &backendErr) {
		return "", backendErr
	}
	return "", &BackendError{Err: lastErr}
}
