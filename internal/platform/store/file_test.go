package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := Set(ctx, s, "medicines", []rec{{ID: "med-1", Status: "active"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "medicines.json")); err != nil {
		t.Fatalf("expected medicines.json to exist: %v", err)
	}

	out, err := Get[rec](ctx, s, "medicines", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].ID != "med-1" {
		t.Errorf("unexpected records: %+v", out)
	}
}

func TestFileStore_MissingKey(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	_, ok, err := s.Load(context.Background(), "beds")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected missing key to report ok=false")
	}
}

func TestFileStore_KeysIgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	_ = s.Save(ctx, "vitals", []byte("[]"))
	_ = s.Save(ctx, "beds", []byte("[]"))
	_ = os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0o600)

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "beds" || keys[1] != "vitals" {
		t.Errorf("expected [beds vitals], got %v", keys)
	}
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	if err := s.Save(context.Background(), "../escape", []byte("[]")); err == nil {
		t.Error("expected invalid key to be rejected")
	}
}

func TestFileStore_DeleteMissingIsNoop(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	if err := s.Delete(context.Background(), "nothing"); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
