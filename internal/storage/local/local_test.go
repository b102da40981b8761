package local

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caseflow/caseflow/internal/config"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestUploadAndDownload(t *testing.T) {
	s := newTestStorage(t)
	content := []byte("scanned contract pages")

	result, err := s.Upload(context.Background(), "client-1/case-1/doc-1", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", result.Size, len(content))
	}

	wantSum := sha256.Sum256(content)
	if result.Checksum != hex.EncodeToString(wantSum[:]) {
		t.Errorf("Checksum = %s, want %s", result.Checksum, hex.EncodeToString(wantSum[:]))
	}

	reader, err := s.Download(context.Background(), "client-1/case-1/doc-1")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer reader.Close()

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded content = %q, want %q", got, content)
	}
}

func TestDownload_NotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Download(context.Background(), "missing"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Upload(context.Background(), "a/b/doc", bytes.NewReader([]byte("x")), 1); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := s.Delete(context.Background(), "a/b/doc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	exists, err := s.Exists(context.Background(), "a/b/doc")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("file still exists after delete")
	}

	// empty parent directories are pruned
	if _, err := os.Stat(filepath.Join(s.basePath, "a")); !os.IsNotExist(err) {
		t.Error("expected empty parent directories to be removed")
	}
}

func TestDelete_MissingIsNoop(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("Delete of missing file: %v", err)
	}
}

func TestGetURL(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Upload(context.Background(), "doc-1", bytes.NewReader([]byte("x")), 1); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	url, err := s.GetURL(context.Background(), "doc-1", time.Minute)
	if err != nil {
		t.Fatalf("GetURL: %v", err)
	}
	if url == "" || url[:7] != "file://" {
		t.Errorf("url = %q, want file:// prefix", url)
	}

	if _, err := s.GetURL(context.Background(), "missing", time.Minute); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGetMetadata(t *testing.T) {
	s := newTestStorage(t)
	content := []byte("metadata test")
	result, err := s.Upload(context.Background(), "doc-1", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	meta, err := s.GetMetadata(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", meta.Size, len(content))
	}
	if meta.Checksum != result.Checksum {
		t.Errorf("Checksum = %s, want %s", meta.Checksum, result.Checksum)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	s := newTestStorage(t)

	for _, path := range []string{"../escape", "a/../../escape", "../../etc/passwd"} {
		if _, err := s.Upload(context.Background(), path, bytes.NewReader([]byte("x")), 1); err == nil {
			t.Errorf("Upload(%q): expected error, got nil", path)
		}
		if _, err := s.Download(context.Background(), path); err == nil {
			t.Errorf("Download(%q): expected error, got nil", path)
		}
	}
}
