package extract

import (
	"context"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

func extractPDF(ctx context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		// nil lets the page load its own fonts and their encodings
		text, err := page.GetPlainText(nil)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip unreadable pdf page", zap.String("path", path), zap.Int("page", i), zap.Error(err))
			continue
		}
		sb.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			// keep the last word of a page apart from the next page
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func init() {
	Register(TypePDF, extractPDF)
}
