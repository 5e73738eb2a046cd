package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	info, err := s.Put(ctx, "abc/report.pdf", strings.NewReader("hello"), PutObjectOptions{Size: 5, ContentType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "abc/report.pdf", info.Key)

	_, err = os.Stat(filepath.Join(dir, "abc", "report.pdf"))
	require.NoError(t, err)

	rc, got, err := s.Get(ctx, "abc/report.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int64(5), got.Size)
	assert.Equal(t, "application/pdf", got.ContentType)

	u, err := s.PresignGet(ctx, "abc/report.pdf", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))

	require.NoError(t, s.Delete(ctx, "abc/report.pdf"))
	_, _, err = s.Get(ctx, "abc/report.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// deleting twice is fine
	assert.NoError(t, s.Delete(ctx, "abc/report.pdf"))
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "../x", "a/../../x", "/etc/passwd", `a\b`, ".."} {
		_, err := s.Put(ctx, key, strings.NewReader("x"), PutObjectOptions{Size: 1})
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalStorage_SizeMismatch(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(dir)
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "k.txt", strings.NewReader("abc"), PutObjectOptions{Size: 10})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Put(ctx, "k.txt", strings.NewReader("abc"), PutObjectOptions{Size: 3})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_SelectsBackend(t *testing.T) {
	cfg := &config.AppConfig{Storage: config.StorageConfig{Backend: config.StorageLocal, UploadDir: t.TempDir()}}
	s, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &localStorage{}, s)

	cfg.Storage.Backend = config.StorageMinIO
	_, err = New(cfg)
	assert.ErrorContains(t, err, "minio endpoint is required")

	cfg.Storage.Backend = "tape"
	_, err = New(cfg)
	assert.ErrorContains(t, err, "unknown storage backend")
}
