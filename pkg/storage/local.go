package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage 本地文件存储实现
type LocalStorage struct {
	basePath string // 基础存储路径
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 本地存储路径
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %v", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %v", err)
	}
	return &LocalStorage{basePath: absPath}, nil
}

// resolve 相对路径转为本地绝对路径
func (s *LocalStorage) resolve(p string) (string, string, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return "", "", err
	}
	return rel, filepath.Join(s.basePath, filepath.FromSlash(rel)), nil
}

// Save 保存上传文件
func (s *LocalStorage) Save(reader io.Reader, filename string) (FileInfo, error) {
	id, rel := datedName(filename)
	info, err := s.Put(rel, reader, -1, getMimeType(filename))
	if err != nil {
		return FileInfo{}, err
	}
	info.ID = id
	info.Name = filename
	return info, nil
}

// Put 写入指定路径
func (s *LocalStorage) Put(p string, reader io.Reader, _ int64, contentType string) (FileInfo, error) {
	rel, full, err := s.resolve(p)
	if err != nil {
		return FileInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return FileInfo{}, fmt.Errorf("failed to create directory: %v", err)
	}

	file, err := os.Create(full)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	size, err := io.Copy(file, reader)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to write file: %v", err)
	}

	if contentType == "" {
		contentType = getMimeType(rel)
	}
	base := filepath.Base(full)
	return FileInfo{
		ID:       strings.TrimSuffix(base, filepath.Ext(base)),
		Name:     base,
		Size:     size,
		MimeType: contentType,
		Path:     rel,
	}, nil
}

// Open 打开文件
func (s *LocalStorage) Open(p string) (io.ReadCloser, error) {
	_, full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	return file, nil
}

// Delete 删除文件
func (s *LocalStorage) Delete(p string) error {
	_, full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return fmt.Errorf("failed to delete file: %v", err)
	}
	return nil
}

// DeletePrefix 删除目录前缀下的全部文件
func (s *LocalStorage) DeletePrefix(prefix string) error {
	files, err := s.List(prefix)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := s.Delete(f.Path); err != nil {
			return err
		}
	}
	return nil
}

// List 列出前缀下的文件
func (s *LocalStorage) List(prefix string) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.Walk(s.basePath, func(full string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.basePath, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}

		name := filepath.Base(full)
		files = append(files, FileInfo{
			ID:       strings.TrimSuffix(name, filepath.Ext(name)),
			Name:     name,
			Size:     info.Size(),
			MimeType: getMimeType(name),
			Path:     rel,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %v", err)
	}
	return files, nil
}

// Exists 检查文件是否存在
func (s *LocalStorage) Exists(p string) (bool, error) {
	_, full, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// LocalPath 本地存储直接返回文件路径
func (s *LocalStorage) LocalPath(p string) (string, func(), error) {
	_, full, err := s.resolve(p)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", nil, err
	}
	return full, func() {}, nil
}
