package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileVectorStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	if err := s.Upsert(ctx, "skill_abc", []float64{1, 0}, "def add(a,b): return a+b", map[string]string{"name": "skill_abc"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	reopened, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	results, err := reopened.Query(ctx, []float64{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 persisted entry after reopen, got %d", len(results))
	}
	if results[0].ID != "skill_abc" || results[0].Metadata["name"] != "skill_abc" {
		t.Fatalf("persisted entry mismatch: %+v", results[0])
	}
}

func TestFileVectorStore_UpsertByIDOverwritesAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	_ = s.Upsert(ctx, "x", []float64{1, 0}, "v1", nil)
	_ = s.Upsert(ctx, "x", []float64{1, 0}, "v2", nil)

	reopened, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	results, err := reopened.Query(ctx, []float64{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Document != "v2" {
		t.Fatalf("expected the second upsert to win after reopen, got %+v", results)
	}
}

func TestFileVectorStore_CorruptBlobReinitializesEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, storeBlobName), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}
	s, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	results, err := s.Query(context.Background(), []float64{1}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected an empty store after a corrupt blob, got %d entries", len(results))
	}
}
