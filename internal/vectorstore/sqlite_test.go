package vectorstore

import (
	"context"
	"testing"
)

// openTestStore opens an in-memory multi-vector store for use in tests.
func openTestStore(t *testing.T) *SQLiteMultiVectorStore {
	t.Helper()
	s, err := OpenSQLiteMultiVectorStore(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_MultiVectorStore_AddAndGet(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	want := [][]float32{{0.1, 0.2, 0.3}, {-1, 0, 1}}
	if err := s.Add(ctx, "chunk-1", want); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := s.Get(ctx, "chunk-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("want %d token vectors, got %d", len(want), len(got))
	}
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("vector[%d][%d] = %v, want %v", i, j, got[i][j], want[i][j])
			}
		}
	}
}

func Test_MultiVectorStore_GetMissing(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got != nil {
		t.Errorf("want nil for missing chunk, got %v", got)
	}
}

func Test_MultiVectorStore_BatchGetSkipsMissing(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, "a", [][]float32{{1, 2}}); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := s.Add(ctx, "b", [][]float32{{3, 4}, {5, 6}}); err != nil {
		t.Fatalf("add b: %v", err)
	}

	got, err := s.BatchGet(ctx, []string{"a", "missing", "b"})
	if err != nil {
		t.Fatalf("batch get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 entries, got %d", len(got))
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing chunk must be absent from the map, not present with nil")
	}
	if len(got["b"]) != 2 {
		t.Errorf("want 2 token vectors for b, got %d", len(got["b"]))
	}
}

func Test_MultiVectorStore_AddReplaces(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, "c", [][]float32{{1}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(ctx, "c", [][]float32{{2}, {3}}); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	got, err := s.Get(ctx, "c")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0][0] != 2 {
		t.Errorf("want replaced vectors, got %v", got)
	}
}

func Test_MultiVectorStore_Delete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, "d", [][]float32{{1, 2}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Delete(ctx, []string{"d"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.Get(ctx, "d")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Errorf("want nil after delete, got %v", got)
	}
}

func Test_MultiVectorStore_InconsistentDimRejected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	err := s.Add(context.Background(), "bad", [][]float32{{1, 2}, {3}})
	if err == nil {
		t.Fatal("want error for inconsistent token vector dimensions")
	}
}
