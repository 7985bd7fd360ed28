package rag

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// memoryVectorStore 进程内向量索引。
// 无外部依赖的部署和单元测试使用；按文档分桶天然满足检索隔离。
type memoryVectorStore struct {
	mu      sync.RWMutex
	buckets map[uint][]IndexedChunk
}

// NewMemoryVectorStore 创建内存向量存储
func NewMemoryVectorStore() VectorStore {
	return &memoryVectorStore{
		buckets: make(map[uint][]IndexedChunk),
	}
}

func (s *memoryVectorStore) InsertBatch(ctx context.Context, chunks []IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim := len(chunks[0].Embedding)
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("embedding is empty for chunk %d", chunk.ChunkID)
		}
		if len(chunk.Embedding) != dim {
			return fmt.Errorf("inconsistent embedding dimensions in batch")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		vec := make([]float32, len(chunk.Embedding))
		copy(vec, chunk.Embedding)
		chunk.Embedding = vec
		s.buckets[chunk.DocumentID] = append(s.buckets[chunk.DocumentID], chunk)
	}
	return nil
}

func (s *memoryVectorStore) DeleteDocument(ctx context.Context, documentID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, documentID)
	return nil
}

func (s *memoryVectorStore) Search(ctx context.Context, documentID uint, queryVector []float32, k int) ([]SearchMatch, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if k <= 0 {
		k = 4
	}

	s.mu.RLock()
	bucket := s.buckets[documentID]
	matches := make([]SearchMatch, 0, len(bucket))
	for _, chunk := range bucket {
		score := cosineSimilarity(queryVector, chunk.Embedding)
		matches = append(matches, SearchMatch{
			ChunkID:    chunk.ChunkID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Text:       chunk.Text,
			Score:      score,
		})
	}
	s.mu.RUnlock()

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *memoryVectorStore) Ready() bool {
	return true
}

// cosineSimilarity 余弦相似度；维度不一致或零向量时返回0
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
