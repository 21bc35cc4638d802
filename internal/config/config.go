// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 环境变量前缀，例如 CHATPDF_LLM_API_KEY 覆盖 llm.api_key。
const envPrefix = "CHATPDF"

// 支持的后端名称。
const (
	VectorBackendElasticsearch = "elasticsearch"
	VectorBackendPgvector      = "pgvector"
	VectorBackendMemory        = "memory"

	ConversationBackendMySQL = "mysql"
	ConversationBackendRedis = "redis"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RAG           RAGConfig           `mapstructure:"rag"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Vector        VectorConfig        `mapstructure:"vector"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
	Seed          SeedConfig          `mapstructure:"seed"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig 存储 pgvector 所在 Postgres 的连接串。
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。为空时只支持 PDF。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses      string `mapstructure:"addresses"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	IndexName      string `mapstructure:"index_name"`
	NamespaceIndex string `mapstructure:"namespace_index"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	// RateLimit 为每秒允许的请求数，0 表示不限流。
	RateLimit float64 `mapstructure:"rate_limit"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置改写指令与回答时的 system 提示。
type LLMPromptConfig struct {
	Rewrite      string `mapstructure:"rewrite"`
	Rules        string `mapstructure:"rules"`
	NoResultText string `mapstructure:"no_result_text"`
}

// RAGConfig 存储切块与检索参数。
type RAGConfig struct {
	ChunkSize        int `mapstructure:"chunk_size"`
	ChunkOverlap     int `mapstructure:"chunk_overlap"`
	TopK             int `mapstructure:"top_k"`
	EmbedConcurrency int `mapstructure:"embed_concurrency"`
	// MaxSourceBytes 是从 URL 下载文件的字节上限。
	MaxSourceBytes int64 `mapstructure:"max_source_bytes"`
}

// ProvidersConfig 存储外部调用的超时设置。
type ProvidersConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// VectorConfig 选择向量库实现：elasticsearch | pgvector | memory。
type VectorConfig struct {
	Backend    string `mapstructure:"backend"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ConversationConfig 选择对话日志实现：mysql | redis。
type ConversationConfig struct {
	Backend string `mapstructure:"backend"`
}

// SeedConfig 配置种子目录导入，Dir 为空时关闭。
type SeedConfig struct {
	Dir   string `mapstructure:"dir"`
	Owner string `mapstructure:"owner"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("kafka.topic", "chatpdf-index")
	v.SetDefault("kafka.group_id", "chatpdf-go-consumer")
	v.SetDefault("elasticsearch.index_name", "chatwithpdf")
	v.SetDefault("elasticsearch.namespace_index", "chatwithpdf_namespaces")
	v.SetDefault("minio.bucket_name", "chatpdf")
	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.top_k", 4)
	v.SetDefault("rag.embed_concurrency", 4)
	v.SetDefault("rag.max_source_bytes", 50<<20)
	v.SetDefault("providers.timeout", 60*time.Second)
	v.SetDefault("vector.backend", VectorBackendElasticsearch)
	v.SetDefault("vector.dimensions", 1024)
	v.SetDefault("conversation.backend", ConversationBackendMySQL)
}

// Load 从指定路径读取 YAML 文件并解析为 Config。
// 同目录或工作目录下存在 .env 时会先加载，环境变量优先级高于文件。
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查彼此相关的配置项。
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size 必须大于 0, 当前为 %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) 必须满足 0 <= overlap < chunk_size (%d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k 必须大于 0, 当前为 %d", c.RAG.TopK)
	}
	switch c.Vector.Backend {
	case VectorBackendElasticsearch, VectorBackendPgvector, VectorBackendMemory:
	default:
		return fmt.Errorf("未知的 vector.backend: %q", c.Vector.Backend)
	}
	switch c.Conversation.Backend {
	case ConversationBackendMySQL, ConversationBackendRedis:
	default:
		return fmt.Errorf("未知的 conversation.backend: %q", c.Conversation.Backend)
	}
	return nil
}
