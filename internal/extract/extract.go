package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	TypeText     = "txt"
	TypePDF      = "pdf"
	TypeDocx     = "docx"
	TypeMarkdown = "md"
)

var ErrUnsupportedType = errors.New("unsupported file type")

// Extractor turns a saved file into plain text.
type Extractor func(ctx context.Context, path string) (string, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Extractor{}
)

func Register(fileType string, fn Extractor) {
	key := NormalizeType(fileType)
	if key == "" || fn == nil {
		return
	}
	registryMu.Lock()
	registry[key] = fn
	registryMu.Unlock()
}

func NormalizeType(fileType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fileType)), ".")
}

func Supported(fileType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[NormalizeType(fileType)]
	return ok
}

// ExtractFile returns the text of the file or the reason it could not be read.
func ExtractFile(ctx context.Context, path, fileType string) (string, error) {
	key := NormalizeType(fileType)
	registryMu.RLock()
	fn := registry[key]
	registryMu.RUnlock()
	if fn == nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}
	text, err := fn(ctx, path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", key, err)
	}
	return text, nil
}

// Extract is ExtractFile with failures logged and reported as empty text.
func Extract(ctx context.Context, path, fileType string) string {
	text, err := ExtractFile(ctx, path, fileType)
	if err != nil {
		logutil.GetLogger(ctx).Error("extract text failed",
			zap.String("path", path),
			zap.String("file_type", fileType),
			zap.Error(err),
		)
		return ""
	}
	return text
}
