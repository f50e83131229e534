package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage MinIO存储实现
type MinioStorage struct {
	client     *minio.Client // MinIO客户端
	bucketName string        // 存储桶名称
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string // MinIO服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
	Bucket    string // 存储桶名称
}

// NewMinioStorage 创建MinIO存储实例，存储桶不存在时创建
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %v", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %v", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.Bucket,
	}, nil
}

// Save 保存上传文件
func (s *MinioStorage) Save(reader io.Reader, filename string) (FileInfo, error) {
	id, objectName := datedName(filename)
	info, err := s.Put(objectName, reader, -1, getMimeType(filename))
	if err != nil {
		return FileInfo{}, err
	}
	info.ID = id
	info.Name = filename
	return info, nil
}

// Put 上传到指定对象名，size 未知时传 -1 使用分片上传
func (s *MinioStorage) Put(p string, reader io.Reader, size int64, contentType string) (FileInfo, error) {
	objectName, err := cleanPath(p)
	if err != nil {
		return FileInfo{}, err
	}
	if contentType == "" {
		contentType = getMimeType(objectName)
	}

	uploaded, err := s.client.PutObject(
		context.Background(),
		s.bucketName,
		objectName,
		reader,
		size,
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload file: %v", err)
	}

	base := path.Base(objectName)
	return FileInfo{
		ID:       strings.TrimSuffix(base, path.Ext(base)),
		Name:     base,
		Size:     uploaded.Size,
		MimeType: contentType,
		Path:     objectName,
	}, nil
}

// Open 获取对象内容
func (s *MinioStorage) Open(p string) (io.ReadCloser, error) {
	objectName, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	if ok, err := s.Exists(objectName); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	obj, err := s.client.GetObject(context.Background(), s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %v", err)
	}
	return obj, nil
}

// Delete 删除对象
func (s *MinioStorage) Delete(p string) error {
	objectName, err := cleanPath(p)
	if err != nil {
		return err
	}
	if ok, err := s.Exists(objectName); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	if err := s.client.RemoveObject(context.Background(), s.bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %v", err)
	}
	return nil
}

// DeletePrefix 批量删除前缀下的对象
func (s *MinioStorage) DeletePrefix(prefix string) error {
	ctx := context.Background()
	objects := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for result := range s.client.RemoveObjects(ctx, s.bucketName, objects, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("failed to delete object %s: %v", result.ObjectName, result.Err)
		}
	}
	return nil
}

// List 列出前缀下的对象
func (s *MinioStorage) List(prefix string) ([]FileInfo, error) {
	var files []FileInfo

	objectCh := s.client.ListObjects(context.Background(), s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %v", object.Err)
		}
		name := path.Base(object.Key)
		files = append(files, FileInfo{
			ID:       strings.TrimSuffix(name, path.Ext(name)),
			Name:     name,
			Size:     object.Size,
			MimeType: getMimeType(name),
			Path:     object.Key,
		})
	}
	return files, nil
}

// Exists 检查对象是否存在
func (s *MinioStorage) Exists(p string) (bool, error) {
	objectName, err := cleanPath(p)
	if err != nil {
		return false, err
	}
	_, err = s.client.StatObject(context.Background(), s.bucketName, objectName, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat object: %v", err)
}

// LocalPath 下载到临时文件，release 时删除
func (s *MinioStorage) LocalPath(p string) (string, func(), error) {
	rc, err := s.Open(p)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "pdfqa-*"+filepath.Ext(p))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %v", err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("failed to download object: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}

	name := tmp.Name()
	return name, func() { os.Remove(name) }, nil
}
