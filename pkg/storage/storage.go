package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound 文件不存在
	ErrNotFound = errors.New("file not found")
	// ErrInvalidPath 路径为空或越出存储根目录
	ErrInvalidPath = errors.New("invalid storage path")
)

// FileInfo 文件元数据结构
type FileInfo struct {
	ID       string // 文件唯一标识符
	Name     string // 原始文件名
	Size     int64  // 文件大小(字节)
	MimeType string // 文件MIME类型
	Path     string // 存储内的相对路径，使用 / 分隔
}

// Storage 文件存储接口
// 路径均为存储内的相对路径，可以有本地文件系统、MinIO等实现
type Storage interface {
	// Save 以生成的ID保存上传文件，按日期分目录
	Save(reader io.Reader, filename string) (FileInfo, error)

	// Put 保存到指定路径，已存在时覆盖
	Put(p string, reader io.Reader, size int64, contentType string) (FileInfo, error)

	// Open 读取文件内容
	Open(p string) (io.ReadCloser, error)

	// Delete 删除文件，不存在时返回 ErrNotFound
	Delete(p string) error

	// DeletePrefix 删除前缀下的全部文件
	DeletePrefix(prefix string) error

	// List 列出前缀下的文件
	List(prefix string) ([]FileInfo, error)

	// Exists 检查文件是否存在
	Exists(p string) (bool, error)

	// LocalPath 返回可直接读取的本地路径，使用完毕后调用 release
	LocalPath(p string) (local string, release func(), err error)
}

// Config 存储配置
type Config struct {
	Type  string // local 或 minio
	Local LocalConfig
	Minio MinioConfig
}

// NewStorage 根据配置创建存储实例
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.Local)
	case "minio":
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// PageImageRoot 页面图片的根目录
const PageImageRoot = "images"

// PageImagePath 页面图片的存储路径
func PageImagePath(documentID, fileName string) string {
	return path.Join(PageImageRoot, documentID, fileName)
}

// PageImagePrefix 文档全部页面图片的路径前缀
func PageImagePrefix(documentID string) string {
	return path.Join(PageImageRoot, documentID) + "/"
}

// cleanPath 规范化相对路径，拒绝包含 .. 的路径
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(filepath.ToSlash(p))
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrInvalidPath, p)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

// datedName 生成 年/月/日/ID.ext 形式的路径
func datedName(filename string) (id, p string) {
	id = uuid.New().String()
	now := time.Now()
	return id, fmt.Sprintf("%04d/%02d/%02d/%s%s", now.Year(), now.Month(), now.Day(), id, strings.ToLower(filepath.Ext(filename)))
}

// getMimeType 根据文件扩展名判断MIME类型
func getMimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
