package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/metrics"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/rag"
	"go.uber.org/zap"
)

// CitedChunk 答案引用的分块（溯源信息）
type CitedChunk struct {
	ChunkID    uint    `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Excerpt    string  `json:"excerpt"`
}

// Answer 问答结果
type Answer struct {
	Text      string       `json:"answer"`
	Sources   []CitedChunk `json:"sources"`
	NoContext bool         `json:"no_context"`
}

// ChatOptions 查询引擎配置
type ChatOptions struct {
	TopK              int
	MaxTopK           int
	ContextCharBudget int
	ExcerptMaxChars   int
}

// ChatService 检索增强查询引擎。
// 只读：不修改文档存储与向量索引。
// 与生命周期协调器共享文档锁注册表，状态复核与检索在读锁内完成。
type ChatService struct {
	docs    DocumentStore
	embed   rag.Embedder
	vectors rag.VectorStore
	gen     rag.Generator
	locks   *DocLocks
	opts    ChatOptions
}

// NewChatService 创建查询引擎。
// locks应与IngestService共享同一个实例，nil时创建独立注册表。
func NewChatService(docs DocumentStore, embed rag.Embedder, vectors rag.VectorStore, gen rag.Generator, locks *DocLocks, opts ChatOptions) *ChatService {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = 16
	}
	if opts.ContextCharBudget <= 0 {
		opts.ContextCharBudget = 4000
	}
	if opts.ExcerptMaxChars <= 0 {
		opts.ExcerptMaxChars = 300
	}
	if locks == nil {
		locks = NewDocLocks()
	}
	return &ChatService{
		docs:    docs,
		embed:   embed,
		vectors: vectors,
		gen:     gen,
		locks:   locks,
		opts:    opts,
	}
}

// Ask 针对单个文档回答问题。
// k<=0时使用默认TopK，超过MaxTopK时被截断。
func (s *ChatService) Ask(ctx context.Context, documentID uint, question string, k int) (*Answer, error) {
	start := time.Now()
	answer, err := s.ask(ctx, documentID, question, k)
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueryTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.QueryTotal.WithLabelValues("ok").Inc()
	return answer, nil
}

func (s *ChatService) ask(ctx context.Context, documentID uint, question string, k int) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.NewValidationError("question must not be empty")
	}
	if k <= 0 {
		k = s.opts.TopK
	}
	if k > s.opts.MaxTopK {
		k = s.opts.MaxTopK
	}

	// 快速失败的预检，权威的状态复核在retrieve的读锁内进行
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentStatusReady {
		return nil, errors.NewDocumentNotReadyError(doc.Status)
	}

	queryVector, err := s.embed.Embed(ctx, question)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewGenerationTimeoutError().WithCause(err)
		}
		return nil, errors.NewRetrievalError("failed to embed question").WithCause(err)
	}

	matches, err := s.retrieve(ctx, documentID, queryVector, k)
	if err != nil {
		return nil, err
	}
	metrics.RetrievedChunks.Observe(float64(len(matches)))

	contextBlock, sources := s.assembleContext(matches)

	text, err := s.gen.Generate(ctx, question, contextBlock)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewGenerationTimeoutError().WithCause(err)
		}
		return nil, errors.NewRetrievalError("answer generation failed").WithCause(err)
	}

	logger.Debug("Question answered",
		zap.Uint("documentID", documentID),
		zap.Int("retrieved", len(matches)))

	return &Answer{
		Text:      text,
		Sources:   sources,
		NoContext: len(matches) == 0,
	}, nil
}

// retrieve 在文档读锁内复核状态并执行向量检索。
// 删除或重建期间协调器持有写锁，这里要么等到操作完成后看到新状态，
// 要么在操作开始前拿到完整索引，不会把删除到一半的文档当作无上下文的ready文档。
// 嵌入与生成等外部I/O都在锁外执行。
func (s *ChatService) retrieve(ctx context.Context, documentID uint, queryVector []float32, k int) ([]rag.SearchMatch, error) {
	mu := s.locks.RLock(documentID)
	defer mu.RUnlock()

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentStatusReady {
		return nil, errors.NewDocumentNotReadyError(doc.Status)
	}

	matches, err := s.vectors.Search(ctx, documentID, queryVector, k)
	if err != nil {
		return nil, errors.NewRetrievalError("vector search failed").WithCause(err)
	}
	return matches, nil
}

// assembleContext 按得分顺序拼接编号的上下文块，受字符预算约束。
// 零检索结果时返回空串，生成器将收到显式的无上下文标记。
func (s *ChatService) assembleContext(matches []rag.SearchMatch) (string, []CitedChunk) {
	if len(matches) == 0 {
		return "", nil
	}

	var builder strings.Builder
	sources := make([]CitedChunk, 0, len(matches))

	for i, match := range matches {
		excerpt := strings.TrimSpace(match.Text)
		truncated := false
		if runes := []rune(excerpt); len(runes) > s.opts.ExcerptMaxChars {
			excerpt = string(runes[:s.opts.ExcerptMaxChars])
			truncated = true
		}

		line := fmt.Sprintf("[%d] %s", i+1, excerpt)
		if truncated {
			line += "..."
		}
		if builder.Len() > 0 && builder.Len()+len(line)+1 > s.opts.ContextCharBudget {
			break
		}
		builder.WriteString(line)
		builder.WriteString("\n")

		sources = append(sources, CitedChunk{
			ChunkID:    match.ChunkID,
			ChunkIndex: match.ChunkIndex,
			Score:      match.Score,
			Excerpt:    excerpt,
		})
	}

	return builder.String(), sources
}
