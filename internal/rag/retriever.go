package rag

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/vecindex"
)

type Status string

const (
	StatusFound       Status = "found"
	StatusEmptyCorpus Status = "empty_corpus"
	StatusNoMatch     Status = "no_match"
	StatusFailed      Status = "failed"
	// the stored index could not be read, so an empty result says nothing
	// about the user's documents
	StatusCorrupted Status = "corrupted"
)

type Searcher interface {
	Search(ctx context.Context, userID int64, query string, k int, documentID *int64) (*vecindex.SearchOutcome, error)
}

type Retrieval struct {
	Results []model.SearchResult
	Total   int
	Status  Status
}

type Retriever struct {
	index Searcher
	topK  int
}

func NewRetriever(index Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{index: index, topK: topK}
}

// Retrieve never fails. Search errors are logged and reported through
// StatusFailed with no results.
func (r *Retriever) Retrieve(ctx context.Context, userID int64, query string, k int, documentID *int64) Retrieval {
	if k <= 0 {
		k = r.topK
	}
	out, err := r.index.Search(ctx, userID, query, k, documentID)
	if err != nil {
		logutil.GetLogger(ctx).Error("search failed, returning no results",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return Retrieval{Status: StatusFailed}
	}
	res := Retrieval{Results: out.Results, Total: out.Total}
	if out.Corrupted {
		logutil.GetLogger(ctx).Warn("searched a damaged index",
			zap.Int64("user_id", userID),
			zap.Int("recovered", out.Total),
		)
	}
	switch {
	case len(out.Results) > 0:
		res.Status = StatusFound
	case out.Corrupted:
		res.Status = StatusCorrupted
	case out.Total == 0:
		res.Status = StatusEmptyCorpus
	default:
		res.Status = StatusNoMatch
	}
	return res
}
