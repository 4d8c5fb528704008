package memstore

import (
	"context"
	"testing"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

func newTestStore() *Store {
	pk := map[string]string{"Events": "id"}
	indexes := map[string][]IndexSpec{
		"Events": {{Name: "userId,createdAt", PartitionKey: "userId", RangeKey: "createdAt"}},
	}
	return New(pk, indexes)
}

func TestPutGet(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	err := s.Put(ctx, "Events", store.Record{"id": "e1", "userId": "alice"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err := s.Get(ctx, "Events", store.Key{"id": "e1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec["userId"] != "alice" {
		t.Errorf("got userId %v, want alice", rec["userId"])
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.Get(context.Background(), "Events", store.Key{"id": "missing"})
	if err != store.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestUpdateConditionalSuccess(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	s.Put(ctx, "Events", store.Record{"id": "h1", "state": "OPEN", "version": 1})

	rec, err := s.UpdateConditional(ctx, "Events", store.Key{"id": "h1"},
		store.Record{"state": "CAPTURED", "version": 2},
		store.Condition{"state": "OPEN", "version": 1})
	if err != nil {
		t.Fatalf("UpdateConditional: %v", err)
	}
	if rec["state"] != "CAPTURED" {
		t.Errorf("state = %v, want CAPTURED", rec["state"])
	}
}

func TestUpdateConditionalFailure(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	s.Put(ctx, "Events", store.Record{"id": "h1", "state": "OPEN", "version": 1})

	_, err := s.UpdateConditional(ctx, "Events", store.Key{"id": "h1"},
		store.Record{"state": "CAPTURED", "version": 2},
		store.Condition{"state": "OPEN", "version": 99})
	if err != store.ErrConditionFailed {
		t.Errorf("got %v, want ErrConditionFailed", err)
	}
}

func TestQueryByIndex(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	s.Put(ctx, "Events", store.Record{"id": "e1", "userId": "alice", "createdAt": "2024-01-01"})
	s.Put(ctx, "Events", store.Record{"id": "e2", "userId": "alice", "createdAt": "2024-01-02"})
	s.Put(ctx, "Events", store.Record{"id": "e3", "userId": "bob", "createdAt": "2024-01-01"})

	recs, err := s.QueryByIndex(ctx, "Events", "userId,createdAt", store.IndexQuery{
		PartitionKey: "userId", PartitionValue: "alice", ScanForward: true,
	})
	if err != nil {
		t.Fatalf("QueryByIndex: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0]["id"] != "e1" || recs[1]["id"] != "e2" {
		t.Errorf("unexpected order: %v", recs)
	}
}

func TestQueryByIndexUnavailable(t *testing.T) {
	s := newTestStore()
	s.SetIndexUnavailable("Events", "userId,createdAt", true)

	_, err := s.QueryByIndex(context.Background(), "Events", "userId,createdAt", store.IndexQuery{
		PartitionKey: "userId", PartitionValue: "alice",
	})
	if err != store.ErrIndexUnavailable {
		t.Errorf("got %v, want ErrIndexUnavailable", err)
	}
}

func TestScanPagination(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
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
	if len(page2.Records) != 2 || page2.NextCursor != "" {
		t.Fatalf("unexpected page2: %+v", page2)
	}
}

func TestDeleteAbsentIsNotError(t *testing.T) {
	s := newTestStore()
	if err := s.Delete(context.Background(), "Events", store.Key{"id": "nope"}); err != nil {
		t.Errorf("Delete of absent row returned error: %v", err)
	}
}
