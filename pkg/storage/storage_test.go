package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, s Storage, p string) string {
	rc, err := s.Open(p)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

// testStorage 各实现共用的行为测试
func testStorage(t *testing.T, s Storage) {
	t.Run("Save", func(t *testing.T) {
		info, err := s.Save(bytes.NewBufferString("%PDF-1.4 sample"), "contract.PDF")
		require.NoError(t, err)
		assert.NotEmpty(t, info.ID)
		assert.Equal(t, "contract.PDF", info.Name)
		assert.Equal(t, int64(len("%PDF-1.4 sample")), info.Size)
		assert.Equal(t, "application/pdf", info.MimeType)
		assert.True(t, strings.HasSuffix(info.Path, info.ID+".pdf"))
		assert.Equal(t, "%PDF-1.4 sample", readAll(t, s, info.Path))

		local, release, err := s.LocalPath(info.Path)
		require.NoError(t, err)
		data, err := os.ReadFile(local)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 sample", string(data))
		release()
	})

	t.Run("Put and page images", func(t *testing.T) {
		p := PageImagePath("doc-1", "page_1_img0.png")
		assert.Equal(t, "images/doc-1/page_1_img0.png", p)

		info, err := s.Put(p, bytes.NewReader([]byte{0x89, 'P', 'N', 'G'}), 4, "")
		require.NoError(t, err)
		assert.Equal(t, "image/png", info.MimeType)
		assert.Equal(t, p, info.Path)

		_, err = s.Put(PageImagePath("doc-1", "page_2_img0.jpg"), bytes.NewBufferString("jpg"), 3, "image/jpeg")
		require.NoError(t, err)
		_, err = s.Put(PageImagePath("doc-2", "page_1_img0.png"), bytes.NewBufferString("png"), 3, "image/png")
		require.NoError(t, err)

		files, err := s.List(PageImagePrefix("doc-1"))
		require.NoError(t, err)
		assert.Len(t, files, 2)

		exists, err := s.Exists(p)
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, s.DeletePrefix(PageImagePrefix("doc-1")))
		files, err = s.List(PageImagePrefix("doc-1"))
		require.NoError(t, err)
		assert.Empty(t, files)

		exists, err = s.Exists(PageImagePath("doc-2", "page_1_img0.png"))
		require.NoError(t, err)
		assert.True(t, exists, "other documents are untouched")
	})

	t.Run("Delete", func(t *testing.T) {
		info, err := s.Put("tmp/delete-me.txt", bytes.NewBufferString("bye"), 3, "")
		require.NoError(t, err)

		require.NoError(t, s.Delete(info.Path))
		exists, err := s.Exists(info.Path)
		require.NoError(t, err)
		assert.False(t, exists)

		assert.ErrorIs(t, s.Delete(info.Path), ErrNotFound)
		_, err = s.Open(info.Path)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Invalid paths", func(t *testing.T) {
		_, err := s.Open("../etc/passwd")
		assert.ErrorIs(t, err, ErrInvalidPath)
		_, err = s.Put("", bytes.NewBufferString("x"), 1, "")
		assert.ErrorIs(t, err, ErrInvalidPath)
	})
}

// TestLocalStorage 测试本地存储实现
func TestLocalStorage(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{Path: dir})
	require.NoError(t, err)

	testStorage(t, s)

	// 本地路径直接指向存储目录
	info, err := s.Put("a/b.txt", bytes.NewBufferString("x"), 1, "")
	require.NoError(t, err)
	local, release, err := s.LocalPath(info.Path)
	require.NoError(t, err)
	defer release()
	assert.Equal(t, filepath.Join(dir, "a", "b.txt"), local)
}

// TestMinioStorage 需要本地MinIO服务，设置 MINIO_ENDPOINT 后运行
func TestMinioStorage(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set, skipping MinIO tests")
	}

	s, err := NewMinioStorage(MinioConfig{
		Endpoint:  endpoint,
		AccessKey: envOr("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: envOr("MINIO_SECRET_KEY", "minioadmin"),
		Bucket:    fmt.Sprintf("pdfqa-test-%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)
	defer func() { _ = s.DeletePrefix("") }()

	testStorage(t, s)
}

// TestNewStorage 测试存储工厂函数
func TestNewStorage(t *testing.T) {
	s, err := NewStorage(Config{Local: LocalConfig{Path: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = NewStorage(Config{Type: "s3"})
	assert.Error(t, err)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
