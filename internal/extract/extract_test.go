package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractPlainText(t *testing.T) {
	path := writeFile(t, "notes.txt", "hello world\nsecond line")
	require.Equal(t, "hello world\nsecond line", Extract(context.Background(), path, "txt"))
	require.Equal(t, "hello world\nsecond line", Extract(context.Background(), path, " .TXT "))
}

func TestExtractUnknownTypeIsEmpty(t *testing.T) {
	path := writeFile(t, "data.csv", "a,b,c")
	require.Equal(t, "", Extract(context.Background(), path, "csv"))

	_, err := ExtractFile(context.Background(), path, "csv")
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestExtractMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.txt")
	require.Equal(t, "", Extract(context.Background(), path, TypeText))

	_, err := ExtractFile(context.Background(), path, TypeText)
	require.Error(t, err)
}

func TestExtractCorruptPDFIsEmpty(t *testing.T) {
	path := writeFile(t, "broken.pdf", "this is not a pdf")
	require.Equal(t, "", Extract(context.Background(), path, TypePDF))
}

func TestExtractCorruptDocxIsEmpty(t *testing.T) {
	path := writeFile(t, "broken.docx", "this is not a zip archive")
	require.Equal(t, "", Extract(context.Background(), path, TypeDocx))
}

func TestExtractPDFPagesInOrder(t *testing.T) {
	path := writePDF(t, "alpha page words", "beta page words")
	out, err := ExtractFile(context.Background(), path, TypePDF)
	require.NoError(t, err)
	first := strings.Index(out, "alpha page words")
	second := strings.Index(out, "beta page words")
	require.GreaterOrEqual(t, first, 0, out)
	require.Greater(t, second, first, out)
}

func TestExtractDocxParagraphs(t *testing.T) {
	path := writeGooxmlDocx(t, "first paragraph", "second paragraph")
	out, err := ExtractFile(context.Background(), path, TypeDocx)
	require.NoError(t, err)
	require.Equal(t, "first paragraph\nsecond paragraph\n", out)
}

func TestUseUniofficeRejectsEmptyKey(t *testing.T) {
	require.Error(t, UseUnioffice("  "))
	require.False(t, uniofficeEnabled.Load())
}

func TestExtractDocxWithUnioffice(t *testing.T) {
	key := os.Getenv("UNIOFFICE_LICENSE_KEY")
	if key == "" {
		t.Skip("UNIOFFICE_LICENSE_KEY not set")
	}
	require.NoError(t, UseUnioffice(key))
	defer uniofficeEnabled.Store(false)

	path := writeUnidocDocx(t, "licensed one", "licensed two")
	out, err := ExtractFile(context.Background(), path, TypeDocx)
	require.NoError(t, err)
	require.Equal(t, "licensed one\nlicensed two\n", out)
}

func TestExtractMarkdown(t *testing.T) {
	src := "# Title\n\nSome *emphasis* and a [link](http://example.com).\n\n- first\n- second\n\n```go\nfmt.Println(1)\n```\n"
	path := writeFile(t, "readme.md", src)
	out := Extract(context.Background(), path, TypeMarkdown)
	require.Contains(t, out, "Title")
	require.Contains(t, out, "Some emphasis and a link.")
	require.Contains(t, out, "first")
	require.Contains(t, out, "second")
	require.Contains(t, out, "fmt.Println(1)")
	require.NotContains(t, out, "http://example.com")
	require.NotContains(t, out, "*")
}

func TestSupported(t *testing.T) {
	require.True(t, Supported("PDF"))
	require.True(t, Supported("docx"))
	require.True(t, Supported("markdown"))
	require.False(t, Supported("exe"))
}
