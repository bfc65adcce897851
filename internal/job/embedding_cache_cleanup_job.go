package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultEmbedCacheMaxAge = 30 * 24 * time.Hour

type CacheTrimmer interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

type EmbeddingCacheCleanupJob struct {
	cache  CacheTrimmer
	maxAge time.Duration
	now    func() time.Time
}

func NewEmbeddingCacheCleanupJob(cache CacheTrimmer, maxAge time.Duration) *EmbeddingCacheCleanupJob {
	if maxAge <= 0 {
		maxAge = defaultEmbedCacheMaxAge
	}
	return &EmbeddingCacheCleanupJob{cache: cache, maxAge: maxAge, now: time.Now}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	if j.cache == nil {
		return nil
	}
	cutoff := j.now().Add(-j.maxAge).Unix()
	removed, err := j.cache.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("embedding cache trimmed", zap.Int64("removed", removed))
	return nil
}
