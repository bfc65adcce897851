package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/chunker"
	"github.com/xxxsen/docqa/internal/extract"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, userID, docID int64) (*model.Document, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.Document, error)
	UpdateChunkCount(ctx context.Context, userID, docID int64, count int) error
	Delete(ctx context.Context, userID, docID int64) error
}

type ChunkIndex interface {
	Add(ctx context.Context, userID int64, chunks []string, documentID int64, filename string) (int, error)
	Remove(ctx context.Context, userID int64, documentID int64) (int, error)
}

type DocumentService struct {
	docs      DocumentStore
	index     ChunkIndex
	uploadDir string
	chunkSize int
	overlap   int
}

func NewDocumentService(docs DocumentStore, index ChunkIndex, uploadDir string, chunkSize, overlap int) *DocumentService {
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultChunkSize
		overlap = chunker.DefaultOverlap
	}
	return &DocumentService{docs: docs, index: index, uploadDir: uploadDir, chunkSize: chunkSize, overlap: overlap}
}

// Upload is a file already written to the upload directory.
type Upload struct {
	UserID       int64
	StoredName   string
	OriginalName string
	FileType     string
}

// PrepareUpload picks a stored name for originalName and returns it with the
// absolute path the caller should write the bytes to.
func (s *DocumentService) PrepareUpload(originalName string) (storedName string, path string, err error) {
	fileType := extract.NormalizeType(filepath.Ext(originalName))
	if !extract.Supported(fileType) {
		return "", "", appErr.ErrUnsupported
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", "", err
	}
	storedName = newStoredName(fileType)
	return storedName, s.FilePath(storedName), nil
}

func (s *DocumentService) FilePath(storedName string) string {
	return filepath.Join(s.uploadDir, filepath.Base(storedName))
}

// Ingest extracts, chunks and indexes a saved upload. On any failure the
// stored file, the document row and indexed chunks are rolled back.
func (s *DocumentService) Ingest(ctx context.Context, up Upload) (*model.Document, error) {
	logger := logutil.GetLogger(ctx).With(zap.Int64("user_id", up.UserID), zap.String("file", up.OriginalName))
	path := s.FilePath(up.StoredName)
	fileType := extract.NormalizeType(up.FileType)
	if !extract.Supported(fileType) {
		s.removeFile(ctx, path)
		return nil, appErr.ErrUnsupported
	}
	text := extract.Extract(ctx, path, fileType)
	if strings.TrimSpace(text) == "" {
		logger.Error("text extraction returned empty content")
		s.removeFile(ctx, path)
		return nil, appErr.ErrNoText
	}

	doc := &model.Document{
		UserID:       up.UserID,
		Filename:     up.StoredName,
		OriginalName: up.OriginalName,
		FileType:     fileType,
		Ctime:        time.Now().Unix(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.removeFile(ctx, path)
		return nil, fmt.Errorf("create document: %w", err)
	}
	logger = logger.With(zap.Int64("document_id", doc.ID))

	chunks, err := chunker.Chunk(text, s.chunkSize, s.overlap)
	if err != nil {
		s.rollback(ctx, doc, path, false)
		return nil, err
	}
	added, err := s.index.Add(ctx, up.UserID, chunks, doc.ID, up.OriginalName)
	if err != nil {
		logger.Error("index document failed", zap.Error(err))
		s.rollback(ctx, doc, path, false)
		return nil, fmt.Errorf("index document: %w", err)
	}
	if err := s.docs.UpdateChunkCount(ctx, up.UserID, doc.ID, added); err != nil {
		logger.Error("update chunk count failed", zap.Error(err))
		s.rollback(ctx, doc, path, true)
		return nil, fmt.Errorf("update chunk count: %w", err)
	}
	doc.ChunkCount = added
	logger.Info("document ingested", zap.Int("chunks", added))
	return doc, nil
}

func (s *DocumentService) rollback(ctx context.Context, doc *model.Document, path string, indexed bool) {
	logger := logutil.GetLogger(ctx).With(zap.Int64("document_id", doc.ID))
	if indexed {
		if _, err := s.index.Remove(ctx, doc.UserID, doc.ID); err != nil {
			logger.Error("rollback index failed", zap.Error(err))
		}
	}
	if err := s.docs.Delete(ctx, doc.UserID, doc.ID); err != nil {
		logger.Error("rollback document row failed", zap.Error(err))
	}
	s.removeFile(ctx, path)
}

func (s *DocumentService) List(ctx context.Context, userID int64) ([]*model.Document, error) {
	return s.docs.ListByUser(ctx, userID)
}

func (s *DocumentService) Get(ctx context.Context, userID, docID int64) (*model.Document, error) {
	return s.docs.GetByID(ctx, userID, docID)
}

// Delete removes the document's chunks, its stored file and its row. A
// failed index removal is logged and does not stop the delete.
func (s *DocumentService) Delete(ctx context.Context, userID, docID int64) error {
	doc, err := s.docs.GetByID(ctx, userID, docID)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.Int64("user_id", userID), zap.Int64("document_id", docID))
	if removed, err := s.index.Remove(ctx, userID, docID); err != nil {
		logger.Error("remove document from index failed", zap.Error(err))
	} else {
		logger.Info("document removed from index", zap.Int("chunks", removed))
	}
	s.removeFile(ctx, s.FilePath(doc.Filename))
	return s.docs.Delete(ctx, userID, docID)
}

func (s *DocumentService) removeFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logutil.GetLogger(ctx).Warn("remove stored file failed", zap.String("path", path), zap.Error(err))
	}
}
