package rag

import (
	"strings"

	"github.com/xxxsen/docqa/internal/model"
)

const promptPreamble = "Based on the following context from the user's documents, please answer the question. " +
	"If the context doesn't contain enough information to answer the question, please say so."

// BuildPrompt renders the ranked chunks and the question into one prompt.
// The context is not truncated.
func BuildPrompt(query string, chunks []model.SearchResult) string {
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, "From "+chunk.Filename+":\n"+chunk.Text)
	}
	var sb strings.Builder
	sb.WriteString(promptPreamble)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(strings.Join(parts, "\n\n"))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}
