package models

import "time"

// 文档状态
const (
	DocumentStatusIngesting = "ingesting"
	DocumentStatusReady     = "ready"
	DocumentStatusFailed    = "failed"
)

// Document 上传的PDF文档
type Document struct {
	DocumentID uint      `gorm:"primaryKey;column:document_id" json:"id"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	Filename   string    `gorm:"size:255;not null" json:"filename"`
	FilePath   string    `gorm:"size:500" json:"-"`
	ByteSize   int64     `gorm:"column:byte_size;default:0" json:"byte_size"`
	Status     string    `gorm:"size:20;default:ingesting;index" json:"status"`
	ChunkCount int       `gorm:"column:chunk_count;default:0" json:"chunk_count"`
	UploadedAt time.Time `gorm:"column:uploaded_at;autoCreateTime;index" json:"uploaded_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	// 关系
	Chunks []Chunk `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// Chunk 文档分块，入库后不可变。
// StartOffset/EndOffset是分块在提取文本中的字节偏移。
type Chunk struct {
	ChunkID     uint      `gorm:"primaryKey;column:chunk_id" json:"chunk_id"`
	DocumentID  uint      `gorm:"column:document_id;not null;index" json:"document_id"`
	ChunkIndex  int       `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	StartOffset int       `gorm:"column:start_offset;default:0" json:"start_offset"`
	EndOffset   int       `gorm:"column:end_offset;default:0" json:"end_offset"`
	VectorID    string    `gorm:"size:255" json:"vector_id"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Chunk) TableName() string {
	return "chunks"
}
