package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
)

const embeddingCacheTable = "embedding_cache"

const upsertEmbeddingSuffix = ` ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
	embedding = EXCLUDED.embedding,
	ctime = EXCLUDED.ctime`

// EmbeddingCacheRepo is the postgres side of the embedding cache.
type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

// Lookup returns the cached vectors among hashes, keyed by hash.
func (r *EmbeddingCacheRepo) Lookup(ctx context.Context, modelName, taskType string, hashes []string) (map[string][]float32, error) {
	found := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return found, nil
	}
	where := map[string]interface{}{
		"model_name":      modelName,
		"task_type":       taskType,
		"content_hash in": hashes,
	}
	sqlStr, args, err := builder.BuildSelect(embeddingCacheTable, where, []string{"content_hash", "embedding"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var hash string
		var vec pgvector.Vector
		if err := rows.Scan(&hash, &vec); err != nil {
			return nil, err
		}
		found[hash] = vec.Slice()
	}
	return found, rows.Err()
}

// SaveBatch upserts items in one statement. A key repeated in items keeps
// its last vector.
func (r *EmbeddingCacheRepo) SaveBatch(ctx context.Context, items []*model.CachedEmbedding) error {
	seen := make(map[model.EmbeddingKey]int, len(items))
	data := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		row := map[string]interface{}{
			"model_name":   item.Model,
			"task_type":    item.TaskType,
			"content_hash": item.Hash,
			"embedding":    pgvector.NewVector(item.Vector),
			"ctime":        item.Ctime,
		}
		// postgres refuses to upsert the same key twice in one statement
		if i, ok := seen[item.EmbeddingKey]; ok {
			data[i] = row
			continue
		}
		seen[item.EmbeddingKey] = len(data)
		data = append(data, row)
	}
	if len(data) == 0 {
		return nil
	}
	sqlStr, args, err := builder.BuildInsert(embeddingCacheTable, data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+upsertEmbeddingSuffix, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// DeleteBefore drops entries written before cutoff (unix seconds).
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete(embeddingCacheTable, map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
