package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestFS(t *testing.T, root string) *FS {
	t.Helper()
	fs, err := NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestFSPut(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, root)

	uri, err := fs.Put(context.Background(), "channel_avatars/UCabc.png", "image/png", []byte("bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	want := "file://" + filepath.Join(root, "channel_avatars", "UCabc.png")
	if uri != want {
		t.Errorf("uri = %q, want %q", uri, want)
	}
	data, err := os.ReadFile(filepath.Join(root, "channel_avatars", "UCabc.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "bytes" {
		t.Errorf("stored %q", data)
	}
}

func TestFSPutOverwrites(t *testing.T) {
	fs := newTestFS(t, t.TempDir())
	ctx := context.Background()
	if _, err := fs.Put(ctx, "k.json", "application/json", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Put(ctx, "k.json", "application/json", []byte("v2")); err != nil {
		t.Fatalf("overwrite must be allowed: %v", err)
	}
}

func TestFSPutCanceled(t *testing.T) {
	fs := newTestFS(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fs.Put(ctx, "k.png", "image/png", []byte("x")); err == nil {
		t.Error("Put succeeded on canceled context")
	}
}
