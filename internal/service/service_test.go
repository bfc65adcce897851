package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/rag"
	"github.com/xxxsen/docqa/internal/vecindex"
)

type memDocs struct {
	mu          sync.Mutex
	next        int64
	docs        map[int64]*model.Document
	failUpdates bool
}

func newMemDocs() *memDocs {
	return &memDocs{docs: map[int64]*model.Document{}}
}

func (m *memDocs) Create(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	doc.ID = m.next
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memDocs) GetByID(_ context.Context, userID, docID int64) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok || doc.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *memDocs) ListByUser(_ context.Context, userID int64) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Document
	for _, doc := range m.docs {
		if doc.UserID == userID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memDocs) UpdateChunkCount(_ context.Context, userID, docID int64, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates {
		return errors.New("db gone")
	}
	doc, ok := m.docs[docID]
	if !ok || doc.UserID != userID {
		return appErr.ErrNotFound
	}
	doc.ChunkCount = count
	return nil
}

func (m *memDocs) Delete(_ context.Context, userID, docID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok || doc.UserID != userID {
		return appErr.ErrNotFound
	}
	delete(m.docs, docID)
	return nil
}

type countingChat struct {
	calls   int
	prompts []string
}

func (c *countingChat) Name() string { return "openai" }

func (c *countingChat) Chat(_ context.Context, _ string, req ai.ChatRequest) (string, error) {
	c.calls++
	c.prompts = append(c.prompts, req.Prompt)
	return "grounded answer", nil
}

type fixture struct {
	docs     *memDocs
	index    *vecindex.Manager
	chat     *countingChat
	svc      *DocumentService
	ask      *AskService
	indexDir string
}

func newFixture(t *testing.T, minScore float32) *fixture {
	t.Helper()
	p, err := ai.NewEmbedProvider("hash", nil)
	require.NoError(t, err)
	indexDir := t.TempDir()
	index, err := vecindex.NewManager(filestore.NewLocal(indexDir), ai.NewEmbedder(p, "fnv", 384), vecindex.Options{MinScore: minScore})
	require.NoError(t, err)
	docs := newMemDocs()
	chat := &countingChat{}
	gen := rag.NewGenerator(rag.GeneratorConfig{Provider: rag.ProviderOpenAI}, chat, nil)
	return &fixture{
		docs:     docs,
		index:    index,
		chat:     chat,
		svc:      NewDocumentService(docs, index, t.TempDir(), 500, 100),
		ask:      NewAskService(docs, rag.NewRetriever(index, 5), gen),
		indexDir: indexDir,
	}
}

func (f *fixture) upload(t *testing.T, userID int64, name, content string) (*model.Document, string, error) {
	t.Helper()
	stored, path, err := f.svc.PrepareUpload(name)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	doc, err := f.svc.Ingest(context.Background(), Upload{
		UserID:       userID,
		StoredName:   stored,
		OriginalName: name,
		FileType:     filepath.Ext(name),
	})
	return doc, path, err
}

func numberedWords(prefix string, n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return words
}

func TestIngestAndAskSecondChunk(t *testing.T) {
	f := newFixture(t, 0.3)
	words := numberedWords("w", 600)
	doc, path, err := f.upload(t, 1, "words.txt", strings.Join(words, " "))
	require.NoError(t, err)
	require.Equal(t, 2, doc.ChunkCount)
	require.FileExists(t, path)
	require.True(t, strings.HasSuffix(doc.Filename, ".txt"))

	stored, err := f.docs.GetByID(context.Background(), 1, doc.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.ChunkCount)

	res, err := f.ask.Ask(context.Background(), 1, strings.Join(words[500:], " "), nil)
	require.NoError(t, err)
	require.Equal(t, rag.StatusFound, res.Status)
	require.Len(t, res.Sources, 1)
	require.Equal(t, 1, res.Sources[0].ChunkIndex)
	require.Equal(t, "words.txt", res.Sources[0].Filename)
	require.Equal(t, "grounded answer", res.Answer)
	require.Equal(t, 1, f.chat.calls)
	require.Contains(t, f.chat.prompts[0], "From words.txt:\n")
}

func TestAskEmptyCorpusSkipsBackend(t *testing.T) {
	f := newFixture(t, 0)
	res, err := f.ask.Ask(context.Background(), 1, "anything at all", nil)
	require.NoError(t, err)
	require.Equal(t, rag.StatusEmptyCorpus, res.Status)
	require.Equal(t, rag.MsgNoContext, res.Answer)
	require.Empty(t, res.Sources)
	require.Zero(t, f.chat.calls)

	_, err = f.ask.Ask(context.Background(), 1, "   ", nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestAskScopedToForeignDocument(t *testing.T) {
	f := newFixture(t, 0)
	doc, _, err := f.upload(t, 1, "a.txt", "alpha beta gamma")
	require.NoError(t, err)
	_, err = f.ask.Ask(context.Background(), 2, "alpha", &doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestIngestEmptyTextRollsBack(t *testing.T) {
	f := newFixture(t, 0)
	_, path, err := f.upload(t, 1, "blank.txt", "   \n\t ")
	require.ErrorIs(t, err, appErr.ErrNoText)
	require.NoFileExists(t, path)
	list, err := f.svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestPrepareUploadRejectsUnknownType(t *testing.T) {
	f := newFixture(t, 0)
	_, _, err := f.svc.PrepareUpload("malware.exe")
	require.ErrorIs(t, err, appErr.ErrUnsupported)
}

func TestIngestRollsBackIndexWhenRowUpdateFails(t *testing.T) {
	f := newFixture(t, 0)
	keep, _, err := f.upload(t, 1, "keep.txt", "kept words stay here")
	require.NoError(t, err)

	f.docs.failUpdates = true
	_, path, err := f.upload(t, 1, "lost.txt", "these words vanish")
	require.Error(t, err)
	require.NoFileExists(t, path)

	stats, err := f.index.Stats(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, map[int64]int{keep.ID: 1}, stats)
	list, err := f.svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestDeleteRemovesChunksFileAndRow(t *testing.T) {
	f := newFixture(t, 0)
	a, pathA, err := f.upload(t, 1, "a.txt", strings.Join(numberedWords("a", 50), " "))
	require.NoError(t, err)
	b, _, err := f.upload(t, 1, "b.txt", strings.Join(numberedWords("b", 50), " "))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), 1, a.ID))
	require.NoFileExists(t, pathA)
	_, err = f.svc.Get(context.Background(), 1, a.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	res, err := f.ask.Ask(context.Background(), 1, "a1 a2 a3", nil)
	require.NoError(t, err)
	for _, src := range res.Sources {
		require.Equal(t, b.ID, src.DocumentID)
	}
	require.ErrorIs(t, f.svc.Delete(context.Background(), 2, b.ID), appErr.ErrNotFound)
}

func TestDeleteContinuesWhenIndexIsCorrupted(t *testing.T) {
	f := newFixture(t, 0)
	a, _, err := f.upload(t, 1, "a.txt", "some words here")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.indexDir, "1", "metadata.bin"), []byte("junk"), 0o644))

	require.NoError(t, f.svc.Delete(context.Background(), 1, a.ID))
	list, err := f.svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, list)
}
