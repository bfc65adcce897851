package vecindex

import (
	"context"
	"fmt"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
)

// Rebuilder produces a fresh index for the kept records after a removal.
// keep holds positions into the old index, in order.
type Rebuilder interface {
	Rebuild(ctx context.Context, old *FlatIndex, records []model.ChunkRecord, keep []int) (*FlatIndex, error)
}

// ReembedRebuilder embeds every kept text again, so the result matches what
// a fresh ingest with the current embedder would produce.
type ReembedRebuilder struct {
	embedder ai.IEmbedder
}

func NewReembedRebuilder(e ai.IEmbedder) *ReembedRebuilder {
	return &ReembedRebuilder{embedder: e}
}

func (r *ReembedRebuilder) Rebuild(ctx context.Context, old *FlatIndex, records []model.ChunkRecord, keep []int) (*FlatIndex, error) {
	idx := NewFlatIndex(r.embedder.Dimension())
	if len(keep) == 0 {
		return idx, nil
	}
	texts := make([]string, 0, len(keep))
	for _, pos := range keep {
		texts = append(texts, records[pos].Text)
	}
	vecs, err := r.embedder.Embed(ctx, texts, ai.TaskTypeDocument)
	if err != nil {
		return nil, fmt.Errorf("re-embed %d chunks: %w", len(texts), err)
	}
	for i := range vecs {
		vecs[i] = Normalize(vecs[i])
	}
	if err := idx.Add(vecs...); err != nil {
		return nil, err
	}
	return idx, nil
}

// CopyRebuilder reuses the stored vectors of the kept positions and makes no
// embedding calls.
type CopyRebuilder struct{}

func (CopyRebuilder) Rebuild(_ context.Context, old *FlatIndex, _ []model.ChunkRecord, keep []int) (*FlatIndex, error) {
	idx := NewFlatIndex(old.Dim())
	for _, pos := range keep {
		if pos < 0 || pos >= old.Len() {
			return nil, fmt.Errorf("%w: position %d outside index of %d", ErrCorrupted, pos, old.Len())
		}
		if err := idx.Add(old.Vector(pos)); err != nil {
			return nil, err
		}
	}
	return idx, nil
}
