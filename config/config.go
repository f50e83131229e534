package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/fyerfyer/pdf-qa/internal/cache"
	"github.com/fyerfyer/pdf-qa/internal/database"
	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/embedding"
	"github.com/fyerfyer/pdf-qa/internal/llm"
	"github.com/fyerfyer/pdf-qa/internal/vectordb"
	"github.com/fyerfyer/pdf-qa/pkg/storage"
	"github.com/fyerfyer/pdf-qa/pkg/taskqueue"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Document DocumentConfig `mapstructure:"document"`
	Search   SearchConfig   `mapstructure:"search"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`                            // 服务器主机
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"` // 服务器端口
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // 优雅退出等待时间
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`        // 为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio"` // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`                              // 本地存储路径
	Bucket    string `mapstructure:"bucket"`                            // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`                          // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type       string `mapstructure:"type" validate:"oneof=memory chromem faiss"`
	Path       string `mapstructure:"path"`       // 持久化目录或索引文件
	Collection string `mapstructure:"collection"` // chromem 集合名
	Dim        int    `mapstructure:"dim" validate:"min=1"`
	Distance   string `mapstructure:"distance" validate:"oneof=cosine dot l2"`
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider      string        `mapstructure:"provider" validate:"oneof=gemini openai"`
	Model         string        `mapstructure:"model"`
	APIKey        string        `mapstructure:"api_key"`
	Endpoint      string        `mapstructure:"endpoint"` // OpenAI兼容接口地址
	MaxTokens     int           `mapstructure:"max_tokens" validate:"min=1"`
	Temperature   float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"min=0"`
	SummaryChunks int           `mapstructure:"summary_chunks" validate:"min=1"`
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider" validate:"oneof=gemini openai"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	BatchSize  int           `mapstructure:"batch_size" validate:"min=1"`
	Workers    int           `mapstructure:"workers" validate:"min=1"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable   bool          `mapstructure:"enable"` // 是否启用问答缓存
	Type     string        `mapstructure:"type" validate:"oneof=memory redis"`
	Address  string        `mapstructure:"address"`  // Redis地址
	Password string        `mapstructure:"password"` // Redis密码
	DB       int           `mapstructure:"db"`       // Redis数据库
	Prefix   string        `mapstructure:"prefix"`   // Redis键前缀
	Path     string        `mapstructure:"path"`     // 内存缓存快照文件
	TTL      time.Duration `mapstructure:"ttl"`      // 缓存有效期
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"` // 是否启用任务队列
	Type          string        `mapstructure:"type" validate:"oneof=redis"`
	RedisAddr     string        `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string        `mapstructure:"redis_password"` // Redis密码
	RedisDB       int           `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int           `mapstructure:"concurrency" validate:"min=1"`
	RetryLimit    int           `mapstructure:"retry_limit" validate:"min=0"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	TaskTTL       time.Duration `mapstructure:"task_ttl"` // 任务记录保留时间
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type" validate:"oneof=sqlite"` // 数据库类型
	DSN  string `mapstructure:"dsn" validate:"required"`      // 数据源名称
}

// DocumentConfig 文档处理配置
type DocumentConfig struct {
	MaxChars      int           `mapstructure:"max_chars" validate:"min=1"` // 单块最大字符数
	Overlap       int           `mapstructure:"overlap" validate:"min=0"`   // 相邻块重叠字符数
	ExtractImages bool          `mapstructure:"extract_images"`             // 是否保存页面图片
	ExtractTables bool          `mapstructure:"extract_tables"`             // 是否识别页面表格
	OCR           bool          `mapstructure:"ocr"`                        // 无文本页面是否做OCR
	Timeout       time.Duration `mapstructure:"timeout"`                    // 单个文档处理超时
}

// SearchConfig 搜索配置
type SearchConfig struct {
	Limit    int     `mapstructure:"limit" validate:"min=1"`           // 检索的文本块数量
	MinScore float32 `mapstructure:"min_score" validate:"min=0,max=1"` // 最低相似度分数
}

// Load 从文件和环境变量加载配置
// 先读取 .env，再读取配置文件，环境变量优先级最高，例如 LLM_API_KEY 覆盖 llm.api_key
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = "config.yaml"
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.Warnf("Config file not found at %s, using defaults", configPath)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.expandEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回只包含默认值的配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// expandEnv 展开密钥配置中的 ${VAR} 引用
func (c *Config) expandEnv() {
	for _, s := range []*string{
		&c.LLM.APIKey, &c.Embed.APIKey,
		&c.Storage.AccessKey, &c.Storage.SecretKey,
		&c.Cache.Password, &c.Queue.RedisPassword,
	} {
		*s = os.ExpandEnv(*s)
	}
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.SplitterParams().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewLogger 按日志配置创建logrus记录器，配置了文件时同时写入滚动日志
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.Log.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	var out io.Writer = os.Stdout
	if c.Log.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   c.Log.File,
			MaxSize:    c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAge:     c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		})
	}
	logger.SetOutput(out)
	return logger
}

// StorageParams 转换为文件存储配置
func (c *Config) StorageParams() storage.Config {
	return storage.Config{
		Type:  c.Storage.Type,
		Local: storage.LocalConfig{Path: c.Storage.Path},
		Minio: storage.MinioConfig{
			Endpoint:  c.Storage.Endpoint,
			AccessKey: c.Storage.AccessKey,
			SecretKey: c.Storage.SecretKey,
			UseSSL:    c.Storage.UseSSL,
			Bucket:    c.Storage.Bucket,
		},
	}
}

// VectorDBParams 转换为向量库配置
func (c *Config) VectorDBParams() vectordb.Config {
	return vectordb.Config{
		Type:              c.VectorDB.Type,
		Path:              c.VectorDB.Path,
		Collection:        c.VectorDB.Collection,
		Dimension:         c.VectorDB.Dim,
		DistanceType:      vectordb.DistanceType(c.VectorDB.Distance),
		CreateIfNotExists: true,
	}
}

// LLMOptions 大模型客户端选项
func (c *Config) LLMOptions() []llm.Option {
	opts := []llm.Option{
		llm.WithAPIKey(c.LLM.APIKey),
		llm.WithMaxTokens(c.LLM.MaxTokens),
		llm.WithTemperature(c.LLM.Temperature),
		llm.WithMaxRetries(c.LLM.MaxRetries),
	}
	if c.LLM.Model != "" {
		opts = append(opts, llm.WithModel(c.LLM.Model))
	}
	if c.LLM.Endpoint != "" {
		opts = append(opts, llm.WithBaseURL(c.LLM.Endpoint))
	}
	if c.LLM.Timeout > 0 {
		opts = append(opts, llm.WithTimeout(c.LLM.Timeout))
	}
	return opts
}

// EmbeddingOptions 嵌入客户端选项
func (c *Config) EmbeddingOptions() []embedding.Option {
	opts := []embedding.Option{
		embedding.WithAPIKey(c.Embed.APIKey),
		embedding.WithBatchSize(c.Embed.BatchSize),
	}
	if c.Embed.Model != "" {
		opts = append(opts, embedding.WithModel(c.Embed.Model))
	}
	if c.Embed.Endpoint != "" {
		opts = append(opts, embedding.WithBaseURL(c.Embed.Endpoint))
	}
	if c.Embed.Dimensions > 0 {
		opts = append(opts, embedding.WithDimensions(c.Embed.Dimensions))
	}
	if c.Embed.Timeout > 0 {
		opts = append(opts, embedding.WithTimeout(c.Embed.Timeout))
	}
	return opts
}

// CacheParams 转换为缓存配置
func (c *Config) CacheParams() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Type = c.Cache.Type
	cfg.Enabled = c.Cache.Enable
	cfg.RedisAddr = c.Cache.Address
	cfg.RedisPassword = c.Cache.Password
	cfg.RedisDB = c.Cache.DB
	cfg.PersistPath = c.Cache.Path
	if c.Cache.Prefix != "" {
		cfg.KeyPrefix = c.Cache.Prefix
	}
	if c.Cache.TTL > 0 {
		cfg.DefaultTTL = c.Cache.TTL
	}
	return cfg
}

// QueueParams 转换为任务队列配置
func (c *Config) QueueParams() *taskqueue.Config {
	cfg := taskqueue.DefaultConfig()
	cfg.RedisAddr = c.Queue.RedisAddr
	cfg.RedisPassword = c.Queue.RedisPassword
	cfg.RedisDB = c.Queue.RedisDB
	cfg.Concurrency = c.Queue.Concurrency
	cfg.RetryLimit = c.Queue.RetryLimit
	if c.Queue.RetryDelay > 0 {
		cfg.RetryDelay = c.Queue.RetryDelay
	}
	if c.Queue.TaskTTL > 0 {
		cfg.TaskTTL = c.Queue.TaskTTL
	}
	return cfg
}

// DatabaseParams 转换为数据库配置
func (c *Config) DatabaseParams() *database.Config {
	cfg := database.DefaultConfig()
	cfg.Type = c.Database.Type
	cfg.DSN = c.Database.DSN
	return cfg
}

// SplitterParams 转换为分段器配置
func (c *Config) SplitterParams() document.SplitterConfig {
	return document.SplitterConfig{
		MaxChars: c.Document.MaxChars,
		Overlap:  c.Document.Overlap,
	}
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", "15s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./uploads")
	v.SetDefault("storage.bucket", "pdfqa")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)

	// 向量数据库默认配置
	v.SetDefault("vectordb.type", "chromem")
	v.SetDefault("vectordb.path", "./data/vectors")
	v.SetDefault("vectordb.collection", "chunks")
	v.SetDefault("vectordb.dim", 768)
	v.SetDefault("vectordb.distance", "cosine")

	// LLM默认配置
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.summary_chunks", 5)

	// Embedding默认配置
	v.SetDefault("embed.provider", "gemini")
	v.SetDefault("embed.model", "")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.workers", 4)
	v.SetDefault("embed.dimensions", 0)
	v.SetDefault("embed.timeout", "30s")

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.prefix", "pdfqa:")
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.ttl", "24h")

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", "30s")
	v.SetDefault("queue.task_ttl", "168h")

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/pdfqa.db")

	// 文档处理默认配置
	v.SetDefault("document.max_chars", document.DefaultMaxChars)
	v.SetDefault("document.overlap", document.DefaultOverlap)
	v.SetDefault("document.extract_images", true)
	v.SetDefault("document.extract_tables", true)
	v.SetDefault("document.ocr", true)
	v.SetDefault("document.timeout", "10m")

	// 搜索默认配置
	v.SetDefault("search.limit", vectordb.DefaultTopK)
	v.SetDefault("search.min_score", 0)
}
