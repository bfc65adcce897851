package vecindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/model"
)

const (
	indexArtifact    = "index.vec"
	metadataArtifact = "metadata.bin"
)

type Options struct {
	// Dimension defaults to the embedder dimension.
	Dimension int
	// MinScore drops search hits scoring below it. Zero disables the filter.
	MinScore float32
	// Rebuilder defaults to re-embedding the kept chunks.
	Rebuilder Rebuilder
}

// Manager owns the per user indexes. Every call loads the user's artifacts
// from the store, and every mutation writes both of them back before
// returning. Calls for the same user are serialized within the process.
type Manager struct {
	store     filestore.Store
	embedder  ai.IEmbedder
	dim       int
	minScore  float32
	rebuilder Rebuilder
	locks     *keyedMutex
}

type Snapshot struct {
	Index   *FlatIndex
	Records []model.ChunkRecord
	// Corrupted is set when stored artifacts could not be used. The snapshot
	// is then empty.
	Corrupted bool

	recovered []model.ChunkRecord
}

type SearchOutcome struct {
	Results   []model.SearchResult
	Total     int
	Corrupted bool
}

func NewManager(store filestore.Store, embedder ai.IEmbedder, opts Options) (*Manager, error) {
	if store == nil || embedder == nil {
		return nil, fmt.Errorf("vector index needs a store and an embedder")
	}
	dim := opts.Dimension
	if dim <= 0 {
		dim = embedder.Dimension()
	}
	if dim <= 0 {
		return nil, fmt.Errorf("vector index dimension is required")
	}
	if d := embedder.Dimension(); d > 0 && d != dim {
		return nil, fmt.Errorf("embedder dimension %d does not match index dimension %d", d, dim)
	}
	rebuilder := opts.Rebuilder
	if rebuilder == nil {
		rebuilder = NewReembedRebuilder(embedder)
	}
	return &Manager{
		store:     store,
		embedder:  embedder,
		dim:       dim,
		minScore:  opts.MinScore,
		rebuilder: rebuilder,
		locks:     newKeyedMutex(),
	}, nil
}

func (m *Manager) Dimension() int {
	return m.dim
}

func (m *Manager) LoadOrCreate(ctx context.Context, userID int64) (*Snapshot, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.load(ctx, userID)
}

// Add embeds chunks and appends them for documentID with chunk indexes
// 0..len(chunks)-1. It returns the number of chunks added.
func (m *Manager) Add(ctx context.Context, userID int64, chunks []string, documentID int64, filename string) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	unlock := m.locks.Lock(userID)
	defer unlock()
	logger := logutil.GetLogger(ctx).With(zap.Int64("user_id", userID), zap.Int64("document_id", documentID))

	snap, err := m.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	if snap.Corrupted && len(snap.recovered) > 0 {
		if err := m.recover(ctx, snap); err != nil {
			return 0, err
		}
		logger.Warn("rebuilt corrupted index from metadata", zap.Int("chunks", len(snap.Records)))
	}
	vecs, err := m.embedder.Embed(ctx, chunks, ai.TaskTypeDocument)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	for i := range vecs {
		vecs[i] = Normalize(vecs[i])
	}
	if err := snap.Index.Add(vecs...); err != nil {
		return 0, err
	}
	for i, chunk := range chunks {
		snap.Records = append(snap.Records, model.ChunkRecord{
			DocumentID: documentID,
			ChunkIndex: i,
			Text:       chunk,
			Filename:   filename,
		})
	}
	if err := m.persist(ctx, userID, snap.Index, snap.Records); err != nil {
		return 0, err
	}
	logger.Info("chunks indexed", zap.Int("added", len(chunks)), zap.Int("total", snap.Index.Len()))
	return len(chunks), nil
}

// Search ranks the whole index and only then applies the document filter, so
// a scoped search may return fewer than k results.
func (m *Manager) Search(ctx context.Context, userID int64, query string, k int, documentID *int64) (*SearchOutcome, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	snap, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &SearchOutcome{Total: snap.Index.Len(), Corrupted: snap.Corrupted}
	if out.Total == 0 || k <= 0 {
		return out, nil
	}
	vecs, err := m.embedder.Embed(ctx, []string{query}, ai.TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	for _, hit := range snap.Index.Search(Normalize(vecs[0]), k) {
		rec := snap.Records[hit.Pos]
		if documentID != nil && rec.DocumentID != *documentID {
			continue
		}
		if m.minScore > 0 && hit.Score < m.minScore {
			continue
		}
		out.Results = append(out.Results, model.SearchResult{
			Text:       rec.Text,
			Filename:   rec.Filename,
			DocumentID: rec.DocumentID,
			ChunkIndex: rec.ChunkIndex,
			Score:      hit.Score,
		})
	}
	return out, nil
}

// Remove drops every chunk of documentID and rebuilds the index from what is
// left. The stored artifacts are only replaced once the rebuild succeeded.
func (m *Manager) Remove(ctx context.Context, userID int64, documentID int64) (int, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	logger := logutil.GetLogger(ctx).With(zap.Int64("user_id", userID), zap.Int64("document_id", documentID))

	snap, err := m.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	records := snap.Records
	old := snap.Index
	rebuilder := m.rebuilder
	if snap.Corrupted {
		// stored vectors are unusable, start over from the readable metadata
		records = snap.recovered
		old = NewFlatIndex(m.dim)
		rebuilder = NewReembedRebuilder(m.embedder)
	}
	keep := make([]int, 0, len(records))
	kept := make([]model.ChunkRecord, 0, len(records))
	for pos, rec := range records {
		if rec.DocumentID == documentID {
			continue
		}
		keep = append(keep, pos)
		kept = append(kept, rec)
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	idx, err := rebuilder.Rebuild(ctx, old, records, keep)
	if err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	if err := m.persist(ctx, userID, idx, kept); err != nil {
		return 0, err
	}
	logger.Info("chunks removed", zap.Int("removed", removed), zap.Int("remaining", len(kept)))
	return removed, nil
}

// Stats counts indexed chunks per document. It returns ErrCorrupted when the
// stored artifacts are unusable.
func (m *Manager) Stats(ctx context.Context, userID int64) (map[int64]int, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	snap, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snap.Corrupted {
		return nil, fmt.Errorf("user %d: %w", userID, ErrCorrupted)
	}
	counts := make(map[int64]int)
	for _, rec := range snap.Records {
		counts[rec.DocumentID]++
	}
	return counts, nil
}

func (m *Manager) load(ctx context.Context, userID int64) (*Snapshot, error) {
	logger := logutil.GetLogger(ctx).With(zap.Int64("user_id", userID))
	empty := &Snapshot{Index: NewFlatIndex(m.dim)}

	indexData, err := m.read(ctx, artifactKey(userID, indexArtifact))
	if err != nil {
		return nil, err
	}
	metaData, err := m.read(ctx, artifactKey(userID, metadataArtifact))
	if err != nil {
		return nil, err
	}
	if indexData == nil || metaData == nil {
		if indexData != nil || metaData != nil {
			logger.Warn("index artifact without its sibling, starting empty")
		}
		return empty, nil
	}

	records, metaErr := decodeMetadata(metaData)
	idx, idxErr := decodeIndex(indexData)
	switch {
	case metaErr != nil:
		err = metaErr
	case idxErr != nil:
		err = idxErr
	case idx.Dim() != m.dim:
		err = fmt.Errorf("%w: index dimension %d, want %d", ErrCorrupted, idx.Dim(), m.dim)
	case idx.Len() != len(records):
		err = fmt.Errorf("%w: %d vectors for %d metadata records", ErrCorrupted, idx.Len(), len(records))
	}
	if err != nil {
		logger.Error("index artifacts unusable, treating as empty", zap.Error(err))
		empty.Corrupted = true
		if metaErr == nil {
			empty.recovered = records
		}
		return empty, nil
	}
	return &Snapshot{Index: idx, Records: records}, nil
}

func (m *Manager) recover(ctx context.Context, snap *Snapshot) error {
	keep := make([]int, len(snap.recovered))
	for i := range keep {
		keep[i] = i
	}
	idx, err := NewReembedRebuilder(m.embedder).Rebuild(ctx, nil, snap.recovered, keep)
	if err != nil {
		return fmt.Errorf("recover index: %w", err)
	}
	snap.Index = idx
	snap.Records = snap.recovered
	snap.Corrupted = false
	snap.recovered = nil
	return nil
}

func (m *Manager) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := m.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// persist writes the index before the metadata. A crash in between leaves a
// count mismatch that the next load reports as corrupted.
func (m *Manager) persist(ctx context.Context, userID int64, idx *FlatIndex, records []model.ChunkRecord) error {
	indexData := encodeIndex(idx)
	if err := m.store.Save(ctx, artifactKey(userID, indexArtifact), bytes.NewReader(indexData), int64(len(indexData))); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	metaData := encodeMetadata(records)
	if err := m.store.Save(ctx, artifactKey(userID, metadataArtifact), bytes.NewReader(metaData), int64(len(metaData))); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func artifactKey(userID int64, name string) string {
	return fmt.Sprintf("%d/%s", userID, name)
}
