package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

type groupEmbedder struct {
	items     []EmbedderEntry
	dimension int
}

// NewGroupEmbedder tries each embedder in order until one succeeds. All
// members must produce vectors of the same dimension.
func NewGroupEmbedder(items []EmbedderEntry) (IEmbedder, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("embedder not configured")
	}
	if len(items) == 1 {
		return items[0].Embedder, nil
	}
	dim := items[0].Embedder.Dimension()
	for _, item := range items[1:] {
		if item.Embedder.Dimension() != dim {
			return nil, fmt.Errorf("embedder %s has dimension %d, want %d", item.Name, item.Embedder.Dimension(), dim)
		}
	}
	return &groupEmbedder{items: items, dimension: dim}, nil
}

func (g *groupEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, texts, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return nil, lastErr
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name == "" {
			continue
		}
		names = append(names, item.Name)
	}
	return strings.Join(names, "|")
}

func (g *groupEmbedder) Dimension() int {
	return g.dimension
}
