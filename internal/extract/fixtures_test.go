package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	gooxml "baliance.com/gooxml/document"
	"github.com/stretchr/testify/require"
	unidoc "github.com/unidoc/unioffice/v2/document"
)

// writePDF builds a minimal PDF with one Helvetica text line per page.
func writePDF(t *testing.T, pages ...string) string {
	t.Helper()
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // pages tree, filled in below
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	kids := ""
	for _, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
		contentID := len(objects)
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			contentID,
		))
		kids += fmt.Sprintf("%d 0 R ", len(objects))
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(t.TempDir(), "fixture.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeGooxmlDocx(t *testing.T, paragraphs ...string) string {
	t.Helper()
	doc := gooxml.New()
	for _, text := range paragraphs {
		doc.AddParagraph().AddRun().AddText(text)
	}
	path := filepath.Join(t.TempDir(), "fixture.docx")
	require.NoError(t, doc.SaveToFile(path))
	return path
}

func writeUnidocDocx(t *testing.T, paragraphs ...string) string {
	t.Helper()
	doc := unidoc.New()
	defer doc.Close()
	for _, text := range paragraphs {
		run := doc.AddParagraph().AddRun()
		run.AddText(text)
	}
	path := filepath.Join(t.TempDir(), "fixture.docx")
	require.NoError(t, doc.SaveToFile(path))
	return path
}
