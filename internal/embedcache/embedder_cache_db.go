package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
	"go.uber.org/zap"
)

// CacheStore is the persistent side of the embedding cache, implemented by
// repo.EmbeddingCacheRepo.
type CacheStore interface {
	Lookup(ctx context.Context, modelName, taskType string, hashes []string) (map[string][]float32, error)
	SaveBatch(ctx context.Context, items []*model.CachedEmbedding) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, store CacheStore) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store CacheStore
}

// Embed asks the store once per call and embeds each missing text once,
// however often it repeats in texts.
func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if d == nil || d.next == nil {
		return nil, nil
	}
	hashes := make([]string, len(texts))
	var modelName string
	for i, text := range texts {
		_, hashes[i], modelName = buildCacheKey(d.next.ModelName(), taskType, text)
	}
	found, err := d.store.Lookup(ctx, modelName, taskType, hashes)
	if err != nil {
		return nil, err
	}
	dim := d.next.Dimension()
	out := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var missTexts []string
	var missHashes []string
	for i, hash := range hashes {
		if vec, ok := found[hash]; ok && len(vec) == dim {
			out[i] = vec
			continue
		}
		if _, ok := pending[hash]; !ok {
			missTexts = append(missTexts, texts[i])
			missHashes = append(missHashes, hash)
		}
		pending[hash] = append(pending[hash], i)
	}
	if len(missTexts) == 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.String("task_type", taskType), zap.Int("count", len(texts)))
		return out, nil
	}
	res, err := d.next.Embed(ctx, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	items := make([]*model.CachedEmbedding, 0, len(missHashes))
	for j, hash := range missHashes {
		for _, idx := range pending[hash] {
			out[idx] = res[j]
		}
		items = append(items, &model.CachedEmbedding{
			EmbeddingKey: model.EmbeddingKey{Model: modelName, TaskType: taskType, Hash: hash},
			Vector:       res[j],
			Ctime:        now,
		})
	}
	if err := d.store.SaveBatch(ctx, items); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embeddings", zap.Int("count", len(items)), zap.Error(err))
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	if d == nil || d.next == nil {
		return ""
	}
	return d.next.ModelName()
}

func (d *dbEmbedder) Dimension() int {
	if d == nil || d.next == nil {
		return 0
	}
	return d.next.Dimension()
}

func buildCacheKey(modelName, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + taskType + ":" + contentHash, contentHash, modelName
}
