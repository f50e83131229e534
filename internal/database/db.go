package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 全局数据库连接，仓储在未显式传入连接时使用
var DB *gorm.DB

// Config 数据库配置
type Config struct {
	Type          string // 目前只支持 sqlite
	DSN           string // 文件路径，或 file:name?mode=memory&cache=shared
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	BusyTimeout   time.Duration // 写锁等待时间，后台处理和接口并发写入时需要
	SlowThreshold time.Duration
}

// DefaultConfig 返回默认数据库配置
func DefaultConfig() *Config {
	return &Config{
		Type:          "sqlite",
		DSN:           "data/pdfqa.db",
		MaxOpenConns:  10,
		MaxIdleConns:  5,
		MaxLifetime:   time.Hour,
		BusyTimeout:   5 * time.Second,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// Setup 打开数据库并设置全局连接
func Setup(cfg *Config, log *logrus.Logger) error {
	db, err := Open(cfg, log)
	if err != nil {
		return err
	}
	DB = db
	log.WithField("dsn", cfg.DSN).Info("Database connection established successfully")
	return nil
}

// MustDB 返回全局数据库连接，未初始化时 panic
func MustDB() *gorm.DB {
	if DB == nil {
		panic("database is not initialized, call database.Setup first")
	}
	return DB
}

// Open 打开数据库连接并完成迁移
func Open(cfg *Config, log *logrus.Logger) (*gorm.DB, error) {
	if cfg.Type != "sqlite" {
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	memory := isMemoryDSN(cfg.DSN)
	if !memory {
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	gormLogger := logger.New(&logrusWriter{log}, logger.Config{
		SlowThreshold:             cfg.SlowThreshold,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(sqlite.Open(SQLiteDSN(cfg)), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	if memory {
		// 内存库在最后一个连接关闭时消失
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetMaxIdleConns(max(cfg.MaxIdleConns, 1))
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return db, nil
}

// SQLiteDSN 在 DSN 上附加锁等待和外键约束参数，文件库额外开启 WAL
func SQLiteDSN(cfg *Config) string {
	params := []string{"_foreign_keys=on"}
	if cfg.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", cfg.BusyTimeout.Milliseconds()))
	}
	if !isMemoryDSN(cfg.DSN) {
		params = append(params, "_journal_mode=WAL")
	}

	dsn := cfg.DSN
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// Close 关闭全局连接
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

// AutoMigrate 迁移全部模型
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Document{},
		&models.DocumentChunk{},
		&models.PageImage{},
		&models.QARecord{},
	)
}

// logrusWriter 把 gorm 日志转发到 logrus
type logrusWriter struct {
	logger *logrus.Logger
}

func (w *logrusWriter) Printf(format string, args ...interface{}) {
	w.logger.WithField("component", "gorm").Warnf(format, args...)
}
