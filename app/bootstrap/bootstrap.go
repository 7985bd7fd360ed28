package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/docuchat/backend-go/app/controllers"
	"github.com/docuchat/backend-go/internal/config"
	"github.com/docuchat/backend-go/internal/consul"
	"github.com/docuchat/backend-go/internal/database"
	"github.com/docuchat/backend-go/internal/kafka"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/rag"
	"github.com/docuchat/backend-go/internal/services"
	"github.com/docuchat/backend-go/internal/storage"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error
	registry     *consul.ServiceRegistry
}

// Init bootstraps configuration, logger, storage and RAG components, wires the
// service layer and injects it into the controllers.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	app := &App{}
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		logger.Sync()
		return nil
	})

	// .env变化时热加载配置（仅影响后续读取config.AppConfig的路径）
	if _, err := os.Stat(".env"); err == nil {
		watcher, err := config.NewWatcher(".env")
		if err != nil {
			logger.Warn("Failed to start config watcher", zap.Error(err))
		} else {
			watcher.Start(func(updated *config.Config) {
				logger.Info("Runtime configuration refreshed")
			})
			app.cleanupTasks = append(app.cleanupTasks, watcher.Close)
		}
	}

	// 数据库
	db, err := database.InitDB()
	if err != nil {
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, database.CloseDB)

	// Redis（可选）。缺失时嵌入缓存被禁用，不阻塞启动。
	redisClient, err := database.InitRedis()
	if err != nil {
		logger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		app.cleanupTasks = append(app.cleanupTasks, database.CloseRedis)
	}

	// 对象存储
	objectStore, err := storage.NewMinIOStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := objectStore.EnsureBucket(ctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
	}

	// 嵌入器（可选Redis缓存）
	var embedder rag.Embedder
	openaiEmbedder, err := rag.NewOpenAIEmbedder(rag.OpenAIEmbedderOptions{
		APIKey:    cfg.AI.OpenAIAPIKey,
		BaseURL:   cfg.AI.OpenAIBaseURL,
		Model:     cfg.AI.EmbeddingModel,
		BatchSize: cfg.Ingest.EmbedBatchSize,
		Timeout:   time.Duration(cfg.AI.EmbeddingTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	embedder = openaiEmbedder
	if redisClient != nil {
		ttl := time.Duration(cfg.Redis.EmbeddingCacheTTL) * time.Second
		embedder = rag.NewCachedEmbedder(openaiEmbedder, redisClient, cfg.AI.EmbeddingModel, ttl)
		logger.Info("Embedding cache enabled")
	}

	// 向量索引：Milvus启用时使用，否则退化为进程内索引
	var vectorStore rag.VectorStore
	if cfg.Milvus.Enabled {
		vectorStore, err = rag.NewMilvusVectorStore(rag.MilvusOptions{
			Address:    cfg.Milvus.Address,
			Username:   cfg.Milvus.Username,
			Password:   cfg.Milvus.Password,
			Collection: cfg.Milvus.Collection,
			Database:   cfg.Milvus.Database,
			VectorSize: embedder.Dimensions(),
			UseTLS:     cfg.Milvus.UseTLS,
			Timeout:    30 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus vector store: %w", err)
		}
		logger.Info("Milvus vector store initialized",
			zap.String("address", cfg.Milvus.Address),
			zap.String("collection", cfg.Milvus.Collection))
	} else {
		vectorStore = rag.NewMemoryVectorStore()
		logger.Warn("Milvus disabled, using in-memory vector store")
	}

	// 关键词索引（可选）
	var keywordIndexer rag.KeywordIndexer
	if cfg.Search.Enabled {
		keywordIndexer, err = rag.NewElasticsearchIndexer(cfg.Search.ElasticsearchAddresses, cfg.Search.IndexPrefix)
		if err != nil {
			logger.Warn("Failed to initialize Elasticsearch, keyword search disabled", zap.Error(err))
			keywordIndexer = nil
		}
	}

	// 答案生成器
	generator, err := rag.NewOpenAIGenerator(rag.OpenAIGeneratorOptions{
		APIKey:      cfg.AI.OpenAIAPIKey,
		BaseURL:     cfg.AI.OpenAIBaseURL,
		Model:       cfg.AI.ChatModel,
		MaxTokens:   cfg.AI.MaxAnswerTokens,
		Temperature: cfg.AI.Temperature,
		Timeout:     time.Duration(cfg.AI.GenerationTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	// 生命周期事件（可选）
	var producer *kafka.Producer
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Warn("Failed to initialize Kafka producer, events disabled", zap.Error(err))
			producer = nil
		} else {
			app.cleanupTasks = append(app.cleanupTasks, producer.Close)
		}
	}

	// 服务层
	documentService := services.NewDocumentService(db, objectStore, cfg.Ingest.MaxFileSize)
	chunker := rag.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)

	// 生命周期与查询共享同一个文档锁注册表，删除期间查询被隔离
	docLocks := services.NewDocLocks()

	ingestService := services.NewIngestService(documentService, chunker, embedder, vectorStore, docLocks)
	if keywordIndexer != nil {
		ingestService = ingestService.WithKeywordIndexer(keywordIndexer)
	}
	if producer != nil {
		ingestService = ingestService.WithEvents(producer)
	}

	chatService := services.NewChatService(documentService, embedder, vectorStore, generator, docLocks, services.ChatOptions{
		TopK:              cfg.Query.TopK,
		MaxTopK:           cfg.Query.MaxTopK,
		ContextCharBudget: cfg.Query.ContextCharBudget,
		ExcerptMaxChars:   cfg.Query.ExcerptMaxChars,
	})

	searchService := services.NewSearchService(documentService, keywordIndexer)

	controllers.InitDependencies(controllers.Dependencies{
		Documents: documentService,
		Lifecycle: ingestService,
		Chat:      chatService,
		Search:    searchService,
		Probes:    buildProbes(db, objectStore, vectorStore, embedder, keywordIndexer),
	})

	// Consul服务注册（可选）
	if cfg.Consul.Enabled {
		registry, err := consul.NewServiceRegistry(cfg.Consul)
		if err != nil {
			logger.Warn("Failed to create consul registry", zap.Error(err))
		} else if err := registry.Register(cfg.Server); err != nil {
			logger.Warn("Consul registration failed", zap.Error(err))
		} else {
			app.registry = registry
			app.cleanupTasks = append(app.cleanupTasks, registry.Deregister)
		}
	}

	logger.Info("Application bootstrap complete",
		zap.String("env", cfg.Server.Env),
		zap.Bool("milvus", cfg.Milvus.Enabled),
		zap.Bool("keyword_search", keywordIndexer != nil),
		zap.Bool("events", producer != nil))
	return app, nil
}

func buildProbes(db *gorm.DB, objectStore *storage.MinIOStore, vectors rag.VectorStore, embedder rag.Embedder, keyword rag.KeywordIndexer) map[string]controllers.ReadinessProbe {
	probes := map[string]controllers.ReadinessProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"storage": func(ctx context.Context) error {
			if !objectStore.Ready(ctx) {
				return fmt.Errorf("object storage unreachable")
			}
			return nil
		},
		"vector_index": func(ctx context.Context) error {
			if !vectors.Ready() {
				return fmt.Errorf("vector index unreachable")
			}
			return nil
		},
		"embedder": func(ctx context.Context) error {
			if !embedder.Ready() {
				return fmt.Errorf("embedder not configured")
			}
			return nil
		},
	}
	if keyword != nil {
		probes["keyword_index"] = func(ctx context.Context) error {
			if !keyword.Ready() {
				return fmt.Errorf("keyword index unreachable")
			}
			return nil
		}
	}
	return probes
}

// Shutdown closes resources in reverse initialization order.
func (a *App) Shutdown() {
	logger.Info("Shutting down application")
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			logger.Warn("Cleanup task failed", zap.Error(err))
		}
	}
}
