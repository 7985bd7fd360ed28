package services

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKeywordIndexer 内存关键词索引
type fakeKeywordIndexer struct {
	matches []rag.KeywordMatch
	err     error
}

func (f *fakeKeywordIndexer) IndexChunks(ctx context.Context, documentID uint, chunks []rag.IndexedChunk) error {
	return nil
}

func (f *fakeKeywordIndexer) RemoveDocument(ctx context.Context, documentID uint) error {
	return nil
}

func (f *fakeKeywordIndexer) Search(ctx context.Context, documentID uint, query string, limit int) ([]rag.KeywordMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeKeywordIndexer) Ready() bool { return true }

func TestSearchService_EmptyQueryRejected(t *testing.T) {
	docs := newFakeDocStore()
	svc := NewSearchService(docs, &fakeKeywordIndexer{})

	_, err := svc.Search(context.Background(), 1, "  ", 10)

	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
}

func TestSearchService_NotEnabledWithoutIndexer(t *testing.T) {
	docs := newFakeDocStore()
	svc := NewSearchService(docs, nil)

	assert.False(t, svc.Enabled())

	_, err := svc.Search(context.Background(), 1, "query", 10)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
}

func TestSearchService_DocumentMustBeReady(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusIngesting, nil)
	svc := NewSearchService(docs, &fakeKeywordIndexer{})

	_, err := svc.Search(context.Background(), 1, "query", 10)

	assert.True(t, errors.IsCode(err, errors.ErrCodeDocumentNotReady))
}

func TestSearchService_ReturnsMatches(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusReady, nil)
	indexer := &fakeKeywordIndexer{matches: []rag.KeywordMatch{
		{ChunkID: 1, DocumentID: 1, ChunkIndex: 0, Content: "hello world"},
	}}
	svc := NewSearchService(docs, indexer)

	matches, err := svc.Search(context.Background(), 1, "hello", 10)
	require.NoError(t, err)

	assert.Len(t, matches, 1)
	assert.Equal(t, uint(1), matches[0].ChunkID)
}

func TestSearchService_IndexerFailureWrapped(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusReady, nil)
	svc := NewSearchService(docs, &fakeKeywordIndexer{err: stderrors.New("es down")})

	_, err := svc.Search(context.Background(), 1, "query", 10)

	assert.True(t, errors.IsCode(err, errors.ErrCodeRetrievalFailed))
}
