package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/kafka"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocStore 内存实现的文档存储，记录变更以便断言
type fakeDocStore struct {
	mu          sync.Mutex
	docs        map[uint]*models.Document
	chunks      map[uint][]models.Chunk
	files       map[uint][]byte
	removed     []uint
	filesGone   []uint
	nextChunkID uint
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		docs:   make(map[uint]*models.Document),
		chunks: make(map[uint][]models.Chunk),
		files:  make(map[uint][]byte),
	}
}

func (f *fakeDocStore) addDocument(id uint, status string, fileData []byte) *models.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := &models.Document{DocumentID: id, Title: fmt.Sprintf("doc-%d", id), Status: status}
	f.docs[id] = doc
	f.files[id] = fileData
	return doc
}

func (f *fakeDocStore) Get(ctx context.Context, id uint) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, errors.NewNotFoundError("document")
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocStore) Delete(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return errors.NewNotFoundError("document")
	}
	delete(f.docs, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDocStore) UpdateStatus(ctx context.Context, id uint, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return errors.NewNotFoundError("document")
	}
	doc.Status = status
	return nil
}

func (f *fakeDocStore) FileBytes(ctx context.Context, doc *models.Document) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[doc.DocumentID]
	if !ok {
		return nil, errors.NewSystemError(errors.ErrCodeExternalService, "file missing")
	}
	return data, nil
}

func (f *fakeDocStore) RemoveFile(ctx context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, doc.DocumentID)
	f.filesGone = append(f.filesGone, doc.DocumentID)
	return nil
}

func (f *fakeDocStore) SaveChunks(ctx context.Context, documentID uint, chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range chunks {
		f.nextChunkID++
		chunks[i].ChunkID = f.nextChunkID
	}
	f.chunks[documentID] = append(f.chunks[documentID], chunks...)
	if doc, ok := f.docs[documentID]; ok {
		doc.ChunkCount = len(f.chunks[documentID])
	}
	return nil
}

func (f *fakeDocStore) DeleteChunks(ctx context.Context, documentID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks, documentID)
	return nil
}

func (f *fakeDocStore) GetChunks(ctx context.Context, documentID uint) ([]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks[documentID], nil
}

// fakeEmbedder 确定性向量，无外部调用
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, float32(len(text)), 0.5}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{1, float32(len(text)), 0.5}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Ready() bool     { return true }

// flakyVectorStore 包装内存索引并注入可控故障
type flakyVectorStore struct {
	rag.VectorStore
	insertErr   error
	deleteErr   error
	deleteCalls int
}

func (f *flakyVectorStore) InsertBatch(ctx context.Context, chunks []rag.IndexedChunk) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.VectorStore.InsertBatch(ctx, chunks)
}

func (f *flakyVectorStore) DeleteDocument(ctx context.Context, documentID uint) error {
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.VectorStore.DeleteDocument(ctx, documentID)
}

// fakeEvents 记录发布的生命周期事件
type fakeEvents struct {
	mu     sync.Mutex
	events []kafka.DocumentEvent
}

func (f *fakeEvents) PublishDocumentEvent(event kafka.DocumentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestIngestService(docs *fakeDocStore, vectors rag.VectorStore, text string) (*IngestService, *fakeEvents) {
	events := &fakeEvents{}
	svc := NewIngestService(docs, rag.NewChunker(50, 10), &fakeEmbedder{}, vectors, nil).WithEvents(events)
	svc.extract = func(data []byte) (string, error) {
		if text == "" {
			return "", rag.ErrNoExtractableText
		}
		return text, nil
	}
	return svc, events
}

func TestIngestService_SuccessMarksReady(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusIngesting, []byte("%PDF-fake"))
	vectors := rag.NewMemoryVectorStore()
	svc, events := newTestIngestService(docs, vectors, "The quick brown fox jumps over the lazy dog. It keeps running through the forest all day long.")

	err := svc.Ingest(context.Background(), 1)
	require.NoError(t, err)

	doc, err := docs.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusReady, doc.Status)
	assert.Greater(t, doc.ChunkCount, 0)

	// chunk行数与chunk_count一致
	chunks, err := docs.GetChunks(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunkCount)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.NotZero(t, chunk.ChunkID)
	}

	// 向量索引可检索
	matches, err := vectors.Search(context.Background(), 1, []float32{1, 10, 0.5}, 4)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)

	assert.Equal(t, []string{kafka.EventDocumentIngested}, events.types())
}

func TestIngestService_NoExtractableTextFails(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusIngesting, []byte("%PDF-fake"))
	svc, events := newTestIngestService(docs, rag.NewMemoryVectorStore(), "")

	err := svc.Ingest(context.Background(), 1)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIngestionFailed))
	assert.True(t, errors.GetAppError(err).Retryable)

	doc, _ := docs.Get(context.Background(), 1)
	assert.Equal(t, models.DocumentStatusFailed, doc.Status)
	assert.Equal(t, []string{kafka.EventDocumentFailed}, events.types())
}

func TestIngestService_IndexFailurePurgesPartialState(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusIngesting, []byte("%PDF-fake"))
	vectors := &flakyVectorStore{
		VectorStore: rag.NewMemoryVectorStore(),
		insertErr:   stderrors.New("milvus unavailable"),
	}
	svc, _ := newTestIngestService(docs, vectors, "some extractable content for chunking purposes here")

	err := svc.Ingest(context.Background(), 1)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIngestionFailed))

	// 半入库状态被清除：chunk行删除、索引清空、文档标记failed
	doc, _ := docs.Get(context.Background(), 1)
	assert.Equal(t, models.DocumentStatusFailed, doc.Status)
	chunks, _ := docs.GetChunks(context.Background(), 1)
	assert.Empty(t, chunks)
	assert.Equal(t, 1, vectors.deleteCalls)
}

func TestIngestService_ReingestAfterFailure(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusFailed, []byte("%PDF-fake"))
	svc, _ := newTestIngestService(docs, rag.NewMemoryVectorStore(), "enough content to produce at least one chunk")

	err := svc.Ingest(context.Background(), 1)
	require.NoError(t, err)

	doc, _ := docs.Get(context.Background(), 1)
	assert.Equal(t, models.DocumentStatusReady, doc.Status)
}

func TestIngestService_ReadyDocumentIsNotIngestable(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusReady, []byte("%PDF-fake"))
	svc, _ := newTestIngestService(docs, rag.NewMemoryVectorStore(), "content")

	err := svc.Ingest(context.Background(), 1)

	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
}

func TestIngestService_RemoveDeletesIndexBeforeRecord(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusReady, []byte("%PDF-fake"))
	vectors := &flakyVectorStore{VectorStore: rag.NewMemoryVectorStore()}
	svc, events := newTestIngestService(docs, vectors, "content")

	err := svc.Remove(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, vectors.deleteCalls)
	assert.Equal(t, []uint{1}, docs.removed)
	assert.Equal(t, []uint{1}, docs.filesGone)
	assert.Equal(t, []string{kafka.EventDocumentDeleted}, events.types())
}

func TestIngestService_RemovePreservesRecordOnIndexFailure(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusReady, []byte("%PDF-fake"))
	vectors := &flakyVectorStore{
		VectorStore: rag.NewMemoryVectorStore(),
		deleteErr:   stderrors.New("index unreachable"),
	}
	svc, _ := newTestIngestService(docs, vectors, "content")

	err := svc.Remove(context.Background(), 1)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConsistencyGuard))

	// 索引删除失败时文档记录保留，可重试删除
	doc, getErr := docs.Get(context.Background(), 1)
	require.NoError(t, getErr)
	assert.Equal(t, models.DocumentStatusReady, doc.Status)
	assert.Empty(t, docs.removed)
}

func TestIngestService_RemoveReleasesLockEntry(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusReady, []byte("%PDF-fake"))
	locks := NewDocLocks()
	svc := NewIngestService(docs, rag.NewChunker(50, 10), &fakeEmbedder{}, rag.NewMemoryVectorStore(), locks)

	// 锁在首次操作时创建
	require.NoError(t, svc.Remove(context.Background(), 1))

	// 删除成功后注册表不再持有该文档的锁条目
	locks.mu.Lock()
	_, held := locks.locks[uint(1)]
	locks.mu.Unlock()
	assert.False(t, held)
}

func TestIngestService_RemoveMissingDocument(t *testing.T) {
	docs := newFakeDocStore()
	svc, _ := newTestIngestService(docs, rag.NewMemoryVectorStore(), "content")

	err := svc.Remove(context.Background(), 99)

	assert.True(t, errors.IsCode(err, errors.ErrCodeResourceNotFound))
}

func TestIngestService_SingleChunkDocumentRoundTrip(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusIngesting, []byte("%PDF-fake"))
	vectors := rag.NewMemoryVectorStore()
	svc, _ := newTestIngestService(docs, vectors, "Alpha. Beta. Gamma.")

	require.NoError(t, svc.Ingest(context.Background(), 1))

	doc, _ := docs.Get(context.Background(), 1)
	assert.Equal(t, 1, doc.ChunkCount)

	// 文档自身内容的向量必须检回唯一的分块
	embedder := &fakeEmbedder{}
	query, err := embedder.Embed(context.Background(), "Alpha. Beta. Gamma.")
	require.NoError(t, err)
	matches, err := vectors.Search(context.Background(), 1, query, 4)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Alpha. Beta. Gamma.", matches[0].Text)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestIngestService_ConcurrentOperationsSerialized(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusFailed, []byte("%PDF-fake"))
	vectors := rag.NewMemoryVectorStore()
	svc, _ := newTestIngestService(docs, vectors, "enough content to produce at least one chunk")

	// 同一文档的入库与删除并发执行，per-document锁保证串行
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Ingest(context.Background(), 1)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Remove(context.Background(), 1)
		}()
	}
	wg.Wait()

	// 终态一致：文档要么已删除（索引为空），要么存在且状态确定
	doc, err := docs.Get(context.Background(), 1)
	if err != nil {
		matches, searchErr := vectors.Search(context.Background(), 1, []float32{1, 10, 0.5}, 4)
		require.NoError(t, searchErr)
		assert.Empty(t, matches)
		return
	}
	assert.Contains(t, []string{models.DocumentStatusReady, models.DocumentStatusFailed}, doc.Status)
}

func TestIngestService_EmbeddingFailureMarksFailed(t *testing.T) {
	docs := newFakeDocStore()
	docs.addDocument(1, models.DocumentStatusIngesting, []byte("%PDF-fake"))
	events := &fakeEvents{}
	svc := NewIngestService(docs, rag.NewChunker(50, 10), &fakeEmbedder{err: stderrors.New("api down")}, rag.NewMemoryVectorStore(), nil).WithEvents(events)
	svc.extract = func(data []byte) (string, error) { return "some content to chunk", nil }

	err := svc.Ingest(context.Background(), 1)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIngestionFailed))
	doc, _ := docs.Get(context.Background(), 1)
	assert.Equal(t, models.DocumentStatusFailed, doc.Status)
}
