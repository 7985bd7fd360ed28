package services

import (
	"context"
	"strings"

	"github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/rag"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var validate = validator.New()

// ObjectStore 原始文档字节的持久化存储
type ObjectStore interface {
	Put(ctx context.Context, documentID uint, filename string, data []byte) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
}

// CreateDocumentRequest 上传文档请求
type CreateDocumentRequest struct {
	Title    string `validate:"required,max=255"`
	Filename string `validate:"required,max=255"`
}

// DocumentService 文档存储服务
type DocumentService struct {
	db          *gorm.DB
	storage     ObjectStore
	maxFileSize int64
}

// NewDocumentService 创建文档服务
func NewDocumentService(db *gorm.DB, storage ObjectStore, maxFileSize int64) *DocumentService {
	if maxFileSize <= 0 {
		maxFileSize = 15 << 20
	}
	return &DocumentService{
		db:          db,
		storage:     storage,
		maxFileSize: maxFileSize,
	}
}

// Create 创建文档记录并持久化原始字节。
// 返回时字节已落盘；记录保持ingesting状态直到入库完成或标记failed。
func (s *DocumentService) Create(ctx context.Context, title, filename string, data []byte) (*models.Document, error) {
	title = strings.TrimSpace(title)

	req := CreateDocumentRequest{Title: title, Filename: filename}
	if err := validate.Struct(req); err != nil {
		return nil, errors.NewValidationError("title and file are required").WithCause(err)
	}
	if int64(len(data)) > s.maxFileSize {
		return nil, errors.NewValidationError("file exceeds maximum allowed size")
	}
	// 校验内容本身，不信任扩展名
	if !rag.IsPDF(data) {
		return nil, &errors.AppError{
			Code:     errors.ErrCodeInvalidFile,
			Message:  "uploaded file is not a valid PDF",
			Type:     errors.ErrorTypeValidation,
			HTTPCode: 400,
		}
	}

	doc := &models.Document{
		Title:    title,
		Filename: filename,
		ByteSize: int64(len(data)),
		Status:   models.DocumentStatusIngesting,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, errors.NewSystemError(errors.ErrCodeDatabaseError, "failed to create document record").WithCause(err)
	}

	path, err := s.storage.Put(ctx, doc.DocumentID, filename, data)
	if err != nil {
		// 字节未落盘，记录标记failed而不是悄悄丢失
		s.db.WithContext(ctx).Model(doc).Update("status", models.DocumentStatusFailed)
		return nil, errors.NewSystemError(errors.ErrCodeExternalService, "failed to persist document bytes").WithCause(err)
	}

	if err := s.db.WithContext(ctx).Model(doc).Update("file_path", path).Error; err != nil {
		return nil, errors.NewSystemError(errors.ErrCodeDatabaseError, "failed to update document record").WithCause(err)
	}
	doc.FilePath = path

	logger.Info("Document created",
		zap.Uint("documentID", doc.DocumentID),
		zap.String("title", doc.Title),
		zap.Int64("bytes", doc.ByteSize))
	return doc, nil
}

// Get 获取单个文档
func (s *DocumentService) Get(ctx context.Context, id uint) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).First(&doc, "document_id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("document")
		}
		return nil, errors.NewSystemError(errors.ErrCodeDatabaseError, "failed to fetch document").WithCause(err)
	}
	return &doc, nil
}

// List 按上传时间倒序返回所有文档
func (s *DocumentService) List(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).Order("uploaded_at DESC").Find(&docs).Error
	if err != nil {
		return nil, errors.NewSystemError(errors.ErrCodeDatabaseError, "failed to list documents").WithCause(err)
	}
	return docs, nil
}

// Delete 删除文档记录；id不存在时返回NotFound而非失败
func (s *DocumentService) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Document{}, "document_id = ?", id)
	if result.Error != nil {
		return errors.NewSystemError(errors.ErrCodeDatabaseError, "failed to delete document").WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFoundError("document")
	}
	return nil
}

// UpdateStatus 更新文档状态
func (s *DocumentService) UpdateStatus(ctx context.Context, id uint, status string) error {
	result := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("document_id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return errors.NewSystemError(errors.ErrCodeDatabaseError, "failed to update document status").WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFoundError("document")
	}
	return nil
}

// FileBytes 读取文档原始字节
func (s *DocumentService) FileBytes(ctx context.Context, doc *models.Document) ([]byte, error) {
	data, err := s.storage.Get(ctx, doc.FilePath)
	if err != nil {
		return nil, errors.NewSystemError(errors.ErrCodeExternalService, "failed to load document bytes").WithCause(err)
	}
	return data, nil
}

// RemoveFile 删除文档原始字节
func (s *DocumentService) RemoveFile(ctx context.Context, doc *models.Document) error {
	return s.storage.Remove(ctx, doc.FilePath)
}

// SaveChunks 批量保存文档分块并更新chunk_count
func (s *DocumentService) SaveChunks(ctx context.Context, documentID uint, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&chunks).Error; err != nil {
			return err
		}
		return tx.Model(&models.Document{}).
			Where("document_id = ?", documentID).
			Update("chunk_count", len(chunks)).Error
	})
}

// DeleteChunks 删除文档的全部分块记录
func (s *DocumentService) DeleteChunks(ctx context.Context, documentID uint) error {
	return s.db.WithContext(ctx).Delete(&models.Chunk{}, "document_id = ?", documentID).Error
}

// GetChunks 按序返回文档分块
func (s *DocumentService) GetChunks(ctx context.Context, documentID uint) ([]models.Chunk, error) {
	var chunks []models.Chunk
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, errors.NewSystemError(errors.ErrCodeDatabaseError, "failed to fetch chunks").WithCause(err)
	}
	return chunks, nil
}
