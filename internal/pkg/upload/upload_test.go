package upload

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestDiskStore(t *testing.T, maxSize int64) *DiskStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewDiskStore(t.TempDir(), maxSize, logger)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	return store
}

func TestValidateExt(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.pdf", "e.doc", "f.docx"} {
		if err := ValidateExt(name); err != nil {
			t.Errorf("ValidateExt(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"a.exe", "b.sh", "c", "d.png.exe"} {
		if err := ValidateExt(name); err == nil {
			t.Errorf("ValidateExt(%q) = nil, want error", name)
		}
	}
}

func TestDiskStore_Save(t *testing.T) {
	store := newTestDiskStore(t, 1024)

	saved, err := store.Save(context.Background(), "image", "photo.png", []byte("fake png"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !strings.HasPrefix(saved.Key, "image-") || !strings.HasSuffix(saved.Key, ".png") {
		t.Errorf("unexpected key %q", saved.Key)
	}
	if saved.URL != "/uploads/"+saved.Key {
		t.Errorf("unexpected URL %q", saved.URL)
	}

	data, err := os.ReadFile(filepath.Join(store.dir, saved.Key))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "fake png" {
		t.Errorf("saved content = %q", data)
	}
}

func TestDiskStore_RejectsOversized(t *testing.T) {
	store := newTestDiskStore(t, 4)

	_, err := store.Save(context.Background(), "image", "photo.png", []byte("too large"))
	if err == nil || !strings.Contains(err.Error(), "file too large") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestDiskStore_RejectsBadExt(t *testing.T) {
	store := newTestDiskStore(t, 1024)

	_, err := store.Save(context.Background(), "document", "script.sh", []byte("#!/bin/sh"))
	if err == nil {
		t.Fatal("expected extension error")
	}
}

func TestRandomName_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		name := randomName("image", "a.png")
		if seen[name] {
			t.Fatalf("duplicate name %q", name)
		}
		seen[name] = true
	}
}
