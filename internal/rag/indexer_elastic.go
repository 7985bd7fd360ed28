package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// KeywordMatch 关键词检索结果
type KeywordMatch struct {
	ChunkID    uint
	DocumentID uint
	ChunkIndex int
	Content    string
	Score      float64
	Highlight  string
}

// KeywordIndexer 分块全文索引接口，关键词检索同样限定在单个文档内
type KeywordIndexer interface {
	IndexChunks(ctx context.Context, documentID uint, chunks []IndexedChunk) error
	RemoveDocument(ctx context.Context, documentID uint) error
	Search(ctx context.Context, documentID uint, query string, limit int) ([]KeywordMatch, error)
	Ready() bool
}

// ElasticsearchIndexer 基于ES的全文索引
type ElasticsearchIndexer struct {
	client *elasticsearch.Client
	index  string
	once   sync.Once
	initEr error
}

// NewElasticsearchIndexer 创建ES索引器
func NewElasticsearchIndexer(addresses []string, indexPrefix string) (*ElasticsearchIndexer, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("no elasticsearch addresses configured")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
	})
	if err != nil {
		return nil, err
	}

	if indexPrefix == "" {
		indexPrefix = "pdf_chunks"
	}

	return &ElasticsearchIndexer{
		client: client,
		index:  indexPrefix,
	}, nil
}

func (e *ElasticsearchIndexer) ensureIndex(ctx context.Context) error {
	e.once.Do(func() {
		req := esapi.IndicesExistsRequest{Index: []string{e.index}}
		resp, err := req.Do(ctx, e.client)
		if err != nil {
			e.initEr = err
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode == 200 {
			return
		}

		mapping := map[string]interface{}{
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"document_id": map[string]interface{}{"type": "keyword"},
					"chunk_id":    map[string]interface{}{"type": "keyword"},
					"chunk_index": map[string]interface{}{"type": "integer"},
					"content": map[string]interface{}{
						"type":          "text",
						"index_options": "offsets",
					},
					"created_at": map[string]interface{}{"type": "date"},
				},
			},
		}
		body, _ := json.Marshal(mapping)
		createReq := esapi.IndicesCreateRequest{
			Index: e.index,
			Body:  bytes.NewReader(body),
		}
		createResp, err := createReq.Do(ctx, e.client)
		if err != nil {
			e.initEr = err
			return
		}
		defer createResp.Body.Close()
		if createResp.IsError() {
			e.initEr = fmt.Errorf("create index error: %s", createResp.String())
		}
	})
	return e.initEr
}

func (e *ElasticsearchIndexer) IndexChunks(ctx context.Context, documentID uint, chunks []IndexedChunk) error {
	if e.client == nil {
		return nil
	}
	if err := e.ensureIndex(ctx); err != nil {
		return err
	}

	for _, chunk := range chunks {
		doc := map[string]interface{}{
			"chunk_id":    chunk.ChunkID,
			"document_id": documentID,
			"chunk_index": chunk.ChunkIndex,
			"content":     chunk.Text,
			"created_at":  time.Now(),
		}
		payload, _ := json.Marshal(doc)
		req := esapi.IndexRequest{
			Index:      e.index,
			DocumentID: fmt.Sprintf("%d", chunk.ChunkID),
			Body:       bytes.NewReader(payload),
			Refresh:    "true",
		}
		resp, err := req.Do(ctx, e.client)
		if err != nil {
			return err
		}
		if resp.IsError() {
			resp.Body.Close()
			return fmt.Errorf("index chunk error: %s", resp.String())
		}
		resp.Body.Close()
	}
	return nil
}

func (e *ElasticsearchIndexer) RemoveDocument(ctx context.Context, documentID uint) error {
	if e.client == nil {
		return nil
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"document_id": documentID,
			},
		},
	}
	body, _ := json.Marshal(query)
	req := esapi.DeleteByQueryRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.IsError() && resp.StatusCode != 404 {
		return fmt.Errorf("delete by query error: %s", resp.String())
	}
	return nil
}

func (e *ElasticsearchIndexer) Search(ctx context.Context, documentID uint, query string, limit int) ([]KeywordMatch, error) {
	if e.client == nil {
		return nil, fmt.Errorf("elasticsearch client not initialized")
	}
	if limit <= 0 {
		limit = 10
	}

	searchBody := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{
						"content": query,
					},
				},
				// 硬过滤到目标文档
				"filter": map[string]interface{}{
					"term": map[string]interface{}{
						"document_id": documentID,
					},
				},
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"content": map[string]interface{}{},
			},
		},
	}
	body, _ := json.Marshal(searchBody)

	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return []KeywordMatch{}, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search error: %s", resp.String())
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					ChunkID    uint   `json:"chunk_id"`
					DocumentID uint   `json:"document_id"`
					ChunkIndex int    `json:"chunk_index"`
					Content    string `json:"content"`
				} `json:"_source"`
				Highlight map[string][]string `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	matches := make([]KeywordMatch, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		match := KeywordMatch{
			ChunkID:    hit.Source.ChunkID,
			DocumentID: hit.Source.DocumentID,
			ChunkIndex: hit.Source.ChunkIndex,
			Content:    hit.Source.Content,
			Score:      hit.Score,
		}
		if fragments, ok := hit.Highlight["content"]; ok && len(fragments) > 0 {
			match.Highlight = fragments[0]
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (e *ElasticsearchIndexer) Ready() bool {
	if e.client == nil {
		return false
	}
	resp, err := e.client.Ping()
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return !resp.IsError()
}
