package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/vecindex"
)

const defaultReconcilePageSize = 200

type DocumentPager interface {
	ListPage(ctx context.Context, afterID int64, limit uint) ([]*model.Document, error)
	UpdateChunkCount(ctx context.Context, userID, docID int64, count int) error
}

type ChunkStats interface {
	Stats(ctx context.Context, userID int64) (map[int64]int, error)
}

// ChunkCountReconcileJob rewrites documents.chunk_count from the metadata
// records each user's index holds. Users with corrupted indexes are skipped.
type ChunkCountReconcileJob struct {
	docs     DocumentPager
	index    ChunkStats
	pageSize uint
}

func NewChunkCountReconcileJob(docs DocumentPager, index ChunkStats) *ChunkCountReconcileJob {
	return &ChunkCountReconcileJob{docs: docs, index: index, pageSize: defaultReconcilePageSize}
}

func (j *ChunkCountReconcileJob) Name() string {
	return "chunk_count_reconcile"
}

func (j *ChunkCountReconcileJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	stats := make(map[int64]map[int64]int)
	corrupted := make(map[int64]bool)
	var afterID int64
	updated := 0
	for {
		docs, err := j.docs.ListPage(ctx, afterID, j.pageSize)
		if err != nil {
			return fmt.Errorf("list documents after %d: %w", afterID, err)
		}
		for _, doc := range docs {
			afterID = doc.ID
			if corrupted[doc.UserID] {
				continue
			}
			counts, ok := stats[doc.UserID]
			if !ok {
				counts, err = j.index.Stats(ctx, doc.UserID)
				if err != nil {
					if errors.Is(err, vecindex.ErrCorrupted) {
						logger.Error("skip corrupted index", zap.Int64("user_id", doc.UserID), zap.Error(err))
						corrupted[doc.UserID] = true
						continue
					}
					return fmt.Errorf("index stats for user %d: %w", doc.UserID, err)
				}
				stats[doc.UserID] = counts
			}
			actual := counts[doc.ID]
			if actual == doc.ChunkCount {
				continue
			}
			if err := j.docs.UpdateChunkCount(ctx, doc.UserID, doc.ID, actual); err != nil {
				return fmt.Errorf("update chunk count for document %d: %w", doc.ID, err)
			}
			logger.Info("chunk count corrected",
				zap.Int64("document_id", doc.ID),
				zap.Int("stored", doc.ChunkCount),
				zap.Int("indexed", actual),
			)
			updated++
		}
		if uint(len(docs)) < j.pageSize {
			break
		}
	}
	logger.Info("chunk count reconcile done", zap.Int("updated", updated), zap.Int("corrupted_users", len(corrupted)))
	return nil
}
