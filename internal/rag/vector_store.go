package rag

import "context"

// IndexedChunk 写入向量索引的分块记录
type IndexedChunk struct {
	ChunkID    uint
	DocumentID uint
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// SearchMatch 检索结果，按相似度降序
type SearchMatch struct {
	ChunkID    uint
	DocumentID uint
	ChunkIndex int
	Text       string
	Score      float64
}

// VectorStore 向量索引抽象。
// 检索严格限定在单个文档内，相似度固定为余弦相似度。
type VectorStore interface {
	// InsertBatch 批量写入一个文档的分块向量
	InsertBatch(ctx context.Context, chunks []IndexedChunk) error
	// DeleteDocument 删除文档的全部索引条目
	DeleteDocument(ctx context.Context, documentID uint) error
	// Search 返回文档内最相近的k个分块；文档无条目时返回空切片而非错误。
	// 排序：得分降序，同分时chunk_index升序。
	Search(ctx context.Context, documentID uint, queryVector []float32, k int) ([]SearchMatch, error)
	Ready() bool
}
