package main

import (
	"context"
	"fmt"
	"net/http"

	"chatpdf-go/internal/config"
	"chatpdf-go/internal/model"
	"chatpdf-go/internal/pipeline"
	"chatpdf-go/internal/repository"
	"chatpdf-go/internal/service"
	"chatpdf-go/internal/vectorindex"
	"chatpdf-go/pkg/database"
	"chatpdf-go/pkg/embedding"
	"chatpdf-go/pkg/es"
	"chatpdf-go/pkg/kafka"
	"chatpdf-go/pkg/llm"
	"chatpdf-go/pkg/log"
	"chatpdf-go/pkg/pgstore"
	"chatpdf-go/pkg/storage"
	"chatpdf-go/pkg/tika"
	"chatpdf-go/pkg/token"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// app 持有一次进程生命周期内的全部依赖。
type app struct {
	cfg *config.Config

	db  *gorm.DB
	rdb *redis.Client

	jwtManager *token.JWTManager
	docRepo    repository.DocumentRepository
	index      *vectorindex.Manager
	producer   *kafka.Producer

	chatService         service.ChatService
	conversationService service.ConversationService
	documentService     service.DocumentService

	closers []func() error
}

// loadConfig 读取配置并初始化日志记录器。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	return cfg, nil
}

// newApp 按配置装配所有组件。调用方负责 Close。
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// 1. 关系库：文件元数据（以及 mysql 后端的对话记录）
	a.db, err = database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	if err := a.db.AutoMigrate(&model.Document{}, &model.ChatMessage{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	a.closers = append(a.closers, func() error {
		sqlDB, err := a.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	// 2. Redis：redis 对话后端与 Kafka 重试计数都需要
	if cfg.Conversation.Backend == config.ConversationBackendRedis || cfg.Kafka.Enabled {
		a.rdb, err = database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.rdb.Close)
	}

	// 3. 对象存储，未配置 endpoint 时只支持 URL 登记
	var objects *storage.MinIOStore
	if cfg.MinIO.Endpoint != "" {
		objects, err = storage.NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
	}

	// 4. 向量库
	store, err := a.newVectorStore(ctx)
	if err != nil {
		return nil, err
	}

	// 5. 外部服务客户端
	httpClient := &http.Client{}
	embeddingClient := embedding.NewClient(cfg.Embedding, httpClient)
	llmClient := llm.NewClient(cfg.LLM, httpClient)
	var fallback pipeline.Extractor
	if cfg.Tika.ServerURL != "" {
		fallback = pipeline.NewTikaExtractor(tika.NewClient(cfg.Tika, httpClient))
	}

	// 6. 文档处理管道与索引管理器
	splitter, err := pipeline.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	var objectFetcher storage.Fetcher
	if objects != nil {
		objectFetcher = objects
	}
	fetcher := storage.NewRouter(objectFetcher, storage.NewHTTPFetcher(httpClient, cfg.RAG.MaxSourceBytes))
	ingestor := pipeline.NewIngestor(fetcher, pipeline.NewFormatExtractor(fallback), splitter)
	a.index = vectorindex.NewManager(store, ingestor, embeddingClient, vectorindex.Options{
		EmbedConcurrency: cfg.RAG.EmbedConcurrency,
		Timeout:          cfg.Providers.Timeout,
	})

	// 7. Repository
	a.docRepo = repository.NewDocumentRepository(a.db)
	var messages repository.ChatMessageRepository
	if cfg.Conversation.Backend == config.ConversationBackendRedis {
		messages = repository.NewRedisChatMessageRepository(a.rdb)
	} else {
		messages = repository.NewChatMessageRepository(a.db)
	}

	// 8. Service (依赖注入)
	var queue service.IndexQueue
	if cfg.Kafka.Enabled {
		a.producer = kafka.NewProducer(cfg.Kafka)
		a.closers = append(a.closers, a.producer.Close)
		queue = a.producer
	}
	var objectStore service.ObjectStore
	if objects != nil {
		objectStore = objects
	}
	a.jwtManager = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	rewriter := service.NewQueryRewriter(llmClient, cfg.LLM, cfg.Providers.Timeout)
	synthesizer := service.NewAnswerSynthesizer(llmClient, cfg.LLM, cfg.Providers.Timeout)
	a.chatService = service.NewChatService(a.docRepo, messages, a.index, rewriter, synthesizer, cfg.RAG.TopK)
	a.conversationService = service.NewConversationService(a.docRepo, messages)
	a.documentService = service.NewDocumentService(a.docRepo, objectStore, queue, a.index)
	return a, nil
}

func (a *app) newVectorStore(ctx context.Context) (vectorindex.Store, error) {
	cfg := a.cfg
	switch cfg.Vector.Backend {
	case config.VectorBackendPgvector:
		sqlDB, err := database.NewPostgres(ctx, cfg.Database.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sqlDB.Close)
		store := pgstore.NewStore(sqlDB, cfg.Vector.Dimensions)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.VectorBackendMemory:
		log.Warnf("使用内存向量库，索引在进程退出后丢失")
		return vectorindex.NewMemoryStore(), nil
	default:
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		return es.NewVectorStore(ctx, client, cfg.Elasticsearch, cfg.Vector.Dimensions)
	}
}

// newConsumer 在启用 Kafka 时创建索引任务消费者。
func (a *app) newConsumer() *kafka.Consumer {
	if !a.cfg.Kafka.Enabled {
		return nil
	}
	processor := pipeline.NewProcessor(a.docRepo, a.index)
	return kafka.NewConsumer(a.cfg.Kafka, a.rdb, processor)
}

// Close 按创建的逆序释放资源。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("释放资源失败: %v", err)
		}
	}
	a.closers = nil
}
