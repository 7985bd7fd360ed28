package services

import (
	"context"
	"time"

	"github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/kafka"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/metrics"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/rag"
	"go.uber.org/zap"
)

// DocumentStore 生命周期协调器依赖的文档存储操作
type DocumentStore interface {
	Get(ctx context.Context, id uint) (*models.Document, error)
	Delete(ctx context.Context, id uint) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	FileBytes(ctx context.Context, doc *models.Document) ([]byte, error)
	RemoveFile(ctx context.Context, doc *models.Document) error
	SaveChunks(ctx context.Context, documentID uint, chunks []models.Chunk) error
	DeleteChunks(ctx context.Context, documentID uint) error
	GetChunks(ctx context.Context, documentID uint) ([]models.Chunk, error)
}

// EventPublisher 文档生命周期事件发布
type EventPublisher interface {
	PublishDocumentEvent(event kafka.DocumentEvent) error
}

// IngestService 生命周期协调器：串联入库流水线与删除流程。
// 同一文档的入库/删除操作通过per-document写锁串行化，不同文档互不阻塞；
// 查询引擎共享同一个锁注册表并以读锁与此处的写锁互斥。
type IngestService struct {
	docs    DocumentStore
	chunker *rag.Chunker
	embed   rag.Embedder
	vectors rag.VectorStore
	keyword rag.KeywordIndexer // 可选，nil时跳过
	events  EventPublisher     // 可选，nil时跳过

	extract func(data []byte) (string, error)

	locks *DocLocks
}

// NewIngestService 创建生命周期协调器。
// locks为nil时创建独立注册表，需要查询隔离时应与ChatService共享同一个实例。
func NewIngestService(docs DocumentStore, chunker *rag.Chunker, embed rag.Embedder, vectors rag.VectorStore, locks *DocLocks) *IngestService {
	if locks == nil {
		locks = NewDocLocks()
	}
	return &IngestService{
		docs:    docs,
		chunker: chunker,
		embed:   embed,
		vectors: vectors,
		extract: rag.ExtractText,
		locks:   locks,
	}
}

// WithKeywordIndexer 启用可选的关键词索引
func (s *IngestService) WithKeywordIndexer(indexer rag.KeywordIndexer) *IngestService {
	s.keyword = indexer
	return s
}

// WithEvents 启用生命周期事件发布
func (s *IngestService) WithEvents(events EventPublisher) *IngestService {
	s.events = events
	return s
}

// Ingest 执行文档入库：提取→分块→向量化→建立索引。
// 任一步骤失败时文档标记failed且索引中不残留部分数据；成功后状态变为ready。
func (s *IngestService) Ingest(ctx context.Context, documentID uint) error {
	mu := s.locks.Lock(documentID)
	defer mu.Unlock()

	start := time.Now()
	err := s.ingestLocked(ctx, documentID)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IngestTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.IngestTotal.WithLabelValues("ok").Inc()
	return nil
}

func (s *IngestService) ingestLocked(ctx context.Context, documentID uint) error {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}

	switch doc.Status {
	case models.DocumentStatusIngesting:
	case models.DocumentStatusFailed:
		// 重新入库前回到ingesting状态
		if err := s.docs.UpdateStatus(ctx, documentID, models.DocumentStatusIngesting); err != nil {
			return err
		}
	default:
		return errors.NewValidationError("document is not in an ingestable state")
	}

	data, err := s.docs.FileBytes(ctx, doc)
	if err != nil {
		return s.failIngest(ctx, doc, "failed to load document bytes", err)
	}

	text, err := s.extract(data)
	if err != nil {
		// 无可提取文本是入库失败，不是空成功
		return s.failIngest(ctx, doc, "text extraction failed", err)
	}

	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return s.failIngest(ctx, doc, "document produced no chunks", rag.ErrNoExtractableText)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return s.failIngest(ctx, doc, "embedding generation failed", err)
	}

	rows := make([]models.Chunk, len(chunks))
	for i, chunk := range chunks {
		rows[i] = models.Chunk{
			DocumentID:  documentID,
			ChunkIndex:  chunk.Index,
			Content:     chunk.Text,
			StartOffset: chunk.Start,
			EndOffset:   chunk.End,
		}
	}
	if err := s.docs.SaveChunks(ctx, documentID, rows); err != nil {
		return s.failIngest(ctx, doc, "failed to persist chunks", err)
	}

	indexed := make([]rag.IndexedChunk, len(rows))
	for i := range rows {
		indexed[i] = rag.IndexedChunk{
			ChunkID:    rows[i].ChunkID,
			DocumentID: documentID,
			ChunkIndex: rows[i].ChunkIndex,
			Text:       rows[i].Content,
			Embedding:  vectors[i],
		}
	}
	if err := s.vectors.InsertBatch(ctx, indexed); err != nil {
		// 清除可能写入的部分条目，半入库的文档绝不可被查询
		if purgeErr := s.vectors.DeleteDocument(ctx, documentID); purgeErr != nil {
			logger.Error("Failed to purge partial index entries",
				zap.Uint("documentID", documentID), zap.Error(purgeErr))
		}
		if delErr := s.docs.DeleteChunks(ctx, documentID); delErr != nil {
			logger.Error("Failed to remove chunk rows after index failure",
				zap.Uint("documentID", documentID), zap.Error(delErr))
		}
		return s.failIngest(ctx, doc, "vector index insert failed", err)
	}

	// 关键词索引是补充能力，失败不阻塞入库
	if s.keyword != nil {
		if err := s.keyword.IndexChunks(ctx, documentID, indexed); err != nil {
			logger.Warn("Keyword indexing failed",
				zap.Uint("documentID", documentID), zap.Error(err))
		}
	}

	if err := s.docs.UpdateStatus(ctx, documentID, models.DocumentStatusReady); err != nil {
		return err
	}

	metrics.IngestChunks.Observe(float64(len(chunks)))
	s.publishEvent(kafka.DocumentEvent{
		Type:       kafka.EventDocumentIngested,
		DocumentID: documentID,
		Title:      doc.Title,
		ChunkCount: len(chunks),
	})
	logger.Info("Document ingested",
		zap.Uint("documentID", documentID),
		zap.Int("chunks", len(chunks)))
	return nil
}

func (s *IngestService) failIngest(ctx context.Context, doc *models.Document, message string, cause error) error {
	if err := s.docs.UpdateStatus(ctx, doc.DocumentID, models.DocumentStatusFailed); err != nil {
		logger.Error("Failed to mark document failed",
			zap.Uint("documentID", doc.DocumentID), zap.Error(err))
	}
	s.publishEvent(kafka.DocumentEvent{
		Type:       kafka.EventDocumentFailed,
		DocumentID: doc.DocumentID,
		Title:      doc.Title,
		Reason:     message,
	})
	logger.Warn("Document ingestion failed",
		zap.Uint("documentID", doc.DocumentID),
		zap.String("reason", message),
		zap.Error(cause))
	return errors.NewIngestionError(message).WithCause(cause)
}

// Remove 删除文档：先清索引，再删存储记录。
// 索引删除失败时保留文档记录并恢复原状态，避免产生无主索引条目。
func (s *IngestService) Remove(ctx context.Context, documentID uint) error {
	mu := s.locks.Lock(documentID)
	defer mu.Unlock()

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.vectors.DeleteDocument(ctx, documentID); err != nil {
		logger.Error("Vector index deletion failed, document record preserved",
			zap.Uint("documentID", documentID), zap.Error(err))
		return errors.NewConsistencyGuardError("vector index deletion failed; document preserved for retry").WithCause(err)
	}

	if s.keyword != nil {
		if err := s.keyword.RemoveDocument(ctx, documentID); err != nil {
			logger.Warn("Keyword index deletion failed",
				zap.Uint("documentID", documentID), zap.Error(err))
		}
	}

	if err := s.docs.DeleteChunks(ctx, documentID); err != nil {
		logger.Warn("Failed to delete chunk rows",
			zap.Uint("documentID", documentID), zap.Error(err))
	}
	if err := s.docs.RemoveFile(ctx, doc); err != nil {
		logger.Warn("Failed to delete stored file",
			zap.Uint("documentID", documentID), zap.Error(err))
	}

	if err := s.docs.Delete(ctx, documentID); err != nil {
		return err
	}
	s.locks.evict(documentID)

	s.publishEvent(kafka.DocumentEvent{
		Type:       kafka.EventDocumentDeleted,
		DocumentID: documentID,
		Title:      doc.Title,
	})
	logger.Info("Document removed", zap.Uint("documentID", documentID))
	return nil
}

func (s *IngestService) publishEvent(event kafka.DocumentEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishDocumentEvent(event); err != nil {
		logger.Warn("Failed to publish document event",
			zap.String("type", event.Type), zap.Error(err))
	}
}
