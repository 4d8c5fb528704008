package sqlitestore

import (
	"context"
	"os"
	"testing"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "sqlitestore-test-")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	schemas := []TableSchema{
		{
			Table:      "Events",
			PrimaryKey: "id",
			Columns: []Column{
				{Name: "id", Kind: ColumnText},
				{Name: "userId", Kind: ColumnText},
				{Name: "createdAt", Kind: ColumnText},
				{Name: "state", Kind: ColumnText},
				{Name: "version", Kind: ColumnInteger},
			},
			Indexes: []Index{
				{Name: "userId_createdAt", Columns: []string{"userId", "createdAt"}},
			},
		},
	}
	st, err := New(Config{DataDir: dir, FileName: "test.db"}, schemas)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSqlitePutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "Events", store.Record{"id": "e1", "userId": "alice"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rec, err := s.Get(ctx, "Events", store.Key{"id": "e1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec["userId"] != "alice" {
		t.Errorf("userId = %v, want alice", rec["userId"])
	}
}

func TestSqliteGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "Events", store.Key{"id": "missing"})
	if err != store.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSqliteUpdateConditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Put(ctx, "Events", store.Record{"id": "h1", "state": "OPEN", "version": 1})

	_, err := s.UpdateConditional(ctx, "Events", store.Key{"id": "h1"},
		store.Record{"state": "CAPTURED", "version": 2},
		store.Condition{"state": "OPEN", "version": 1})
	if err != nil {
		t.Fatalf("UpdateConditional: %v", err)
	}

	_, err = s.UpdateConditional(ctx, "Events", store.Key{"id": "h1"},
		store.Record{"state": "REVERSED", "version": 3},
		store.Condition{"state": "OPEN", "version": 2})
	if err != store.ErrConditionFailed {
		t.Errorf("second update: got %v, want ErrConditionFailed", err)
	}

	rec, err := s.Get(ctx, "Events", store.Key{"id": "h1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec["state"] != "CAPTURED" {
		t.Errorf("state = %v, want CAPTURED (unaffected by failed update)", rec["state"])
	}
}

func TestSqliteQueryByIndexOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Put(ctx, "Events", store.Record{"id": "e2", "userId": "alice", "createdAt": "2024-01-02"})
	s.Put(ctx, "Events", store.Record{"id": "e1", "userId": "alice", "createdAt": "2024-01-01"})
	s.Put(ctx, "Events", store.Record{"id": "e3", "userId": "bob", "createdAt": "2024-01-01"})

	recs, err := s.QueryByIndex(ctx, "Events", "userId_createdAt", store.IndexQuery{
		PartitionKey: "userId", PartitionValue: "alice", ScanForward: true,
	})
	if err != nil {
		t.Fatalf("QueryByIndex: %v", err)
	}
	if len(recs) != 2 || recs[0]["id"] != "e1" || recs[1]["id"] != "e2" {
		t.Fatalf("unexpected order: %v", recs)
	}
}

func TestSqliteScanPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		s.Put(ctx, "Events", store.Record{"id": id})
	}

	page1, err := s.Scan(ctx, "Events", store.ScanOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(page1.Records) != 2 || page1.NextCursor == "" {
		t.Fatalf("unexpected page1: %+v", page1)
	}
	page2, err := s.Scan(ctx, "Events", store.ScanOptions{Limit: 2, Cursor: page1.NextCursor})
	if err != nil {
		t.Fatalf("Scan page2: %v", err)
	}
	if len(page2.Records) != 1 || page2.NextCursor != "" {
		t.Fatalf("unexpected page2: %+v", page2)
	}
}

func TestSqliteDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Put(ctx, "Events", store.Record{"id": "e1"})
	if err := s.Delete(ctx, "Events", store.Key{"id": "e1"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err := s.Get(ctx, "Events", store.Key{"id": "e1"})
	if err != store.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound after delete", err)
	}
}
