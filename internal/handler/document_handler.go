package handler

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/response"
	"github.com/xxxsen/docqa/internal/service"
)

type DocumentHandler struct {
	documents     *service.DocumentService
	maxUploadSize int64
}

func NewDocumentHandler(documents *service.DocumentService, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxUploadSize: maxUploadSize}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil || file.Filename == "" {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		response.Error(c, errcode.ErrFileTooLarge, "file too large (max "+sizeText(h.maxUploadSize)+")")
		return
	}
	stored, path, err := h.documents.PrepareUpload(file.Filename)
	if err != nil {
		handleError(c, err)
		return
	}
	if err := c.SaveUploadedFile(file, path); err != nil {
		_ = os.Remove(path)
		response.Error(c, errcode.ErrUploadFailed, "failed to save file")
		return
	}
	doc, err := h.documents.Ingest(c.Request.Context(), service.Upload{
		UserID:       getUserID(c),
		StoredName:   stored,
		OriginalName: file.Filename,
		FileType:     extOf(file.Filename),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	if docs == nil {
		docs = []*model.Document{}
	}
	response.Success(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		response.Error(c, errcode.ErrInvalid, "invalid document id")
		return
	}
	if err := h.documents.Delete(c.Request.Context(), getUserID(c), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

func (h *DocumentHandler) Download(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		response.Error(c, errcode.ErrInvalid, "invalid document id")
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), getUserID(c), id)
	if err != nil {
		handleError(c, err)
		return
	}
	path := h.documents.FilePath(doc.Filename)
	if _, err := os.Stat(path); err != nil {
		// the row outlived its upload, e.g. the upload dir was wiped
		logutil.GetLogger(c.Request.Context()).Warn("stored file missing",
			zap.Int64("document_id", doc.ID),
			zap.String("path", path),
			zap.Error(err),
		)
		response.Error(c, errcode.ErrNotFound, "file not found")
		return
	}
	c.FileAttachment(path, doc.OriginalName)
}

// sizeText renders an upload limit for error messages: whole megabytes
// when it divides evenly, otherwise one decimal, kilobytes below 1MB.
func sizeText(bytes int64) string {
	const kb, mb = 1024, 1024 * 1024
	switch {
	case bytes <= 0:
		return "0MB"
	case bytes%mb == 0:
		return fmt.Sprintf("%dMB", bytes/mb)
	case bytes >= mb:
		return fmt.Sprintf("%.1fMB", float64(bytes)/mb)
	default:
		return fmt.Sprintf("%dKB", (bytes+kb-1)/kb)
	}
}
