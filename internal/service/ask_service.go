package service

import (
	"context"
	"strings"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/rag"
)

type ChunkRetriever interface {
	Retrieve(ctx context.Context, userID int64, query string, k int, documentID *int64) rag.Retrieval
}

type AnswerGenerator interface {
	Generate(ctx context.Context, query string, chunks []model.SearchResult) string
}

type AskService struct {
	docs      DocumentStore
	retriever ChunkRetriever
	generator AnswerGenerator
}

func NewAskService(docs DocumentStore, retriever ChunkRetriever, generator AnswerGenerator) *AskService {
	return &AskService{docs: docs, retriever: retriever, generator: generator}
}

type AskResult struct {
	Answer  string               `json:"answer"`
	Sources []model.SearchResult `json:"sources"`
	Status  rag.Status           `json:"status"`
	Total   int                  `json:"total"`
}

// Ask answers query from the user's documents, optionally only from
// documentID.
func (s *AskService) Ask(ctx context.Context, userID int64, query string, documentID *int64) (*AskResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.ErrInvalid
	}
	if documentID != nil {
		if _, err := s.docs.GetByID(ctx, userID, *documentID); err != nil {
			return nil, err
		}
	}
	found := s.retriever.Retrieve(ctx, userID, query, 0, documentID)
	sources := found.Results
	if sources == nil {
		sources = []model.SearchResult{}
	}
	return &AskResult{
		Answer:  s.generator.Generate(ctx, query, found.Results),
		Sources: sources,
		Status:  found.Status,
		Total:   found.Total,
	}, nil
}
