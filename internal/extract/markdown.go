package extract

import (
	"context"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

func extractMarkdown(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return markdownToText(data), nil
}

// markdownToText keeps the readable text of every block on its own line and
// drops markup such as emphasis markers, link targets and fences.
func markdownToText(source []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var sb strings.Builder
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := node.(type) {
		case *ast.Text:
			if entering {
				sb.Write(n.Segment.Value(source))
				if n.SoftLineBreak() || n.HardLineBreak() {
					sb.WriteString("\n")
				}
			}
		case *ast.String:
			if entering {
				sb.Write(n.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					line := lines.At(i)
					sb.Write(line.Value(source))
				}
				sb.WriteString("\n")
				return ast.WalkSkipChildren, nil
			}
		default:
			if !entering && node.Type() == ast.TypeBlock && node.Kind() != ast.KindDocument {
				sb.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func init() {
	Register(TypeMarkdown, extractMarkdown)
	Register("markdown", extractMarkdown)
}
