package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/embedcache"
)

// buildEmbedder chains the configured providers in order, then puts the
// process LRU in front of the optional database cache.
func buildEmbedder(cfg config.EmbeddingConfig, cache embedcache.CacheStore) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.Providers))
	for _, item := range cfg.Providers {
		p, err := ai.NewEmbedProvider(item.Name, item.Data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     item.Name,
			Embedder: ai.NewEmbedder(p, item.Model, cfg.Dimension),
		})
	}
	embedder, err := ai.NewGroupEmbedder(entries)
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Database && cache != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cache)
	}
	return embedcache.WrapLruCacheToEmbedder(embedder, cfg.Cache.LRUSize, time.Duration(cfg.Cache.LRUTTLSecs)*time.Second), nil
}

// buildChatProviders returns nil for a backend without credentials. An
// openai backend with a custom base_url counts as configured, since local
// compatible servers accept requests without a key.
func buildChatProviders(cfg config.LLMConfig) (openai ai.IAIProvider, gemini ai.IAIProvider, err error) {
	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" || strings.TrimSpace(cfg.OpenAI.BaseURL) != "" {
		openai, err = ai.NewProvider("openai", map[string]interface{}{
			"api_key":         cfg.OpenAI.APIKey,
			"base_url":        cfg.OpenAI.BaseURL,
			"timeout_seconds": cfg.TimeoutSeconds,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openai: %w", err)
		}
	}
	if strings.TrimSpace(cfg.Gemini.APIKey) != "" {
		gemini, err = ai.NewProvider("gemini", map[string]interface{}{"api_key": cfg.Gemini.APIKey})
		if err != nil {
			return nil, nil, fmt.Errorf("gemini: %w", err)
		}
	}
	if cfg.Guard.Enabled {
		guard := ai.GuardConfig{
			RequestsPerMinute: cfg.Guard.RequestsPerMinute,
			Burst:             cfg.Guard.Burst,
			MinRequests:       cfg.Guard.MinRequests,
			FailureRatio:      cfg.Guard.FailureRatio,
			OpenTimeout:       time.Duration(cfg.Guard.OpenTimeoutSeconds) * time.Second,
		}
		openai = ai.WithGuard(openai, guard)
		gemini = ai.WithGuard(gemini, guard)
	}
	return openai, gemini, nil
}
