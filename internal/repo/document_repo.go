package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

var documentColumns = []string{"id", "user_id", "filename", "original_name", "file_type", "chunk_count", "ctime"}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Create inserts doc and stores the generated id back into it.
func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"user_id":       doc.UserID,
		"filename":      doc.Filename,
		"original_name": doc.OriginalName,
		"file_type":     doc.FileType,
		"chunk_count":   doc.ChunkCount,
		"ctime":         doc.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Returning(sqlStr, args, "id")
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&doc.ID); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, userID, docID int64) (*model.Document, error) {
	where := map[string]interface{}{
		"id":      docID,
		"user_id": userID,
	}
	docs, err := r.query(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return docs[0], nil
}

// ListByUser returns the user's documents, newest first.
func (r *DocumentRepo) ListByUser(ctx context.Context, userID int64) ([]*model.Document, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "ctime desc, id desc",
	}
	return r.query(ctx, where)
}

// ListPage walks all documents by ascending id for background jobs.
func (r *DocumentRepo) ListPage(ctx context.Context, afterID int64, limit uint) ([]*model.Document, error) {
	where := map[string]interface{}{
		"id >":     afterID,
		"_orderby": "id asc",
		"_limit":   []uint{0, limit},
	}
	return r.query(ctx, where)
}

func (r *DocumentRepo) UpdateChunkCount(ctx context.Context, userID, docID int64, count int) error {
	where := map[string]interface{}{
		"id":      docID,
		"user_id": userID,
	}
	update := map[string]interface{}{
		"chunk_count": count,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.execAffected(ctx, sqlStr, args)
}

func (r *DocumentRepo) Delete(ctx context.Context, userID, docID int64) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{"id": docID, "user_id": userID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.execAffected(ctx, sqlStr, args)
}

func (r *DocumentRepo) execAffected(ctx context.Context, sqlStr string, args []interface{}) error {
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) query(ctx context.Context, where map[string]interface{}) ([]*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.OriginalName, &doc.FileType, &doc.ChunkCount, &doc.Ctime); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}
