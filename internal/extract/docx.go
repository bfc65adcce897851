package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	gooxml "baliance.com/gooxml/document"
	"github.com/unidoc/unioffice/v2/common/license"
	unidoc "github.com/unidoc/unioffice/v2/document"
)

var uniofficeEnabled atomic.Bool

// UseUnioffice installs a metered unioffice key and reads docx files with
// unioffice from then on. Without it docx files are read with gooxml.
func UseUnioffice(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("unioffice license key is empty")
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("set unioffice license: %w", err)
	}
	uniofficeEnabled.Store(true)
	return nil
}

func extractDocx(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if uniofficeEnabled.Load() {
		return extractDocxUnioffice(path)
	}
	return extractDocxGooxml(path)
}

// both readers emit every paragraph followed by a newline

func extractDocxUnioffice(path string) (string, error) {
	doc, err := unidoc.Open(path)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	var sb strings.Builder
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func extractDocxGooxml(path string) (string, error) {
	doc, err := gooxml.Open(path)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func init() {
	Register(TypeDocx, extractDocx)
}
