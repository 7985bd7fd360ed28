package services

import (
	"context"
	"strings"

	"github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/rag"
)

// SearchService 文档内关键词检索（基于Elasticsearch的补充能力）
type SearchService struct {
	docs    DocumentStore
	keyword rag.KeywordIndexer
}

// NewSearchService 创建关键词检索服务
func NewSearchService(docs DocumentStore, keyword rag.KeywordIndexer) *SearchService {
	return &SearchService{docs: docs, keyword: keyword}
}

// Enabled 关键词索引是否可用
func (s *SearchService) Enabled() bool {
	return s.keyword != nil
}

// Search 在单个文档内执行关键词检索
func (s *SearchService) Search(ctx context.Context, documentID uint, query string, limit int) ([]rag.KeywordMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidationError("query must not be empty")
	}
	if s.keyword == nil {
		return nil, errors.NewSystemError(errors.ErrCodeExternalService, "keyword search is not configured")
	}

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentStatusReady {
		return nil, errors.NewDocumentNotReadyError(doc.Status)
	}

	matches, err := s.keyword.Search(ctx, documentID, query, limit)
	if err != nil {
		return nil, errors.NewRetrievalError("keyword search failed").WithCause(err)
	}
	return matches, nil
}
