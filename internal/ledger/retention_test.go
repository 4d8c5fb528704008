package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

func TestPurgeOldDryRunChangesNothing(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()
	m.CreditPaid(ctx, "u", 10, "topup", nil)
	clock.Advance(800 * 24 * time.Hour)

	result, err := m.PurgeOld(ctx, RetentionOptions{OlderThanDays: 30, DryRun: true})
	if err != nil {
		t.Fatalf("PurgeOld: %v", err)
	}
	if result.Candidates != 1 || result.Deleted != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.DryRun {
		t.Error("expected DryRun=true in result")
	}

	total, err := m.CountAll(ctx)
	if err != nil || total != 1 {
		t.Fatalf("row should still exist after dry run: count=%d err=%v", total, err)
	}
}

func TestPurgeOldArchivesThenDeletes(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()
	e, err := m.CreditPaid(ctx, "u", 10, "topup", nil)
	if err != nil {
		t.Fatalf("CreditPaid: %v", err)
	}
	clock.Advance(800 * 24 * time.Hour)

	result, err := m.PurgeOld(ctx, RetentionOptions{OlderThanDays: 30, Archive: true})
	if err != nil {
		t.Fatalf("PurgeOld: %v", err)
	}
	if result.Archived != 1 || result.Deleted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if _, err := m.store.Get(ctx, m.table, store.Key{"id": e.ID}); err == nil {
		t.Error("row should be gone from the live table")
	}
	if _, err := m.store.Get(ctx, m.archiveTable, store.Key{"id": e.ID}); err != nil {
		t.Errorf("row should exist in the archive table: %v", err)
	}
}

func TestPurgeOldSkipsRecentRows(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	m.CreditPaid(ctx, "u", 10, "topup", nil)

	result, err := m.PurgeOld(ctx, RetentionOptions{OlderThanDays: 30})
	if err != nil {
		t.Fatalf("PurgeOld: %v", err)
	}
	if result.Candidates != 0 || result.Deleted != 0 {
		t.Fatalf("recent row should not be purged: %+v", result)
	}
}

func TestPurgeOldRespectsLimit(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		m.CreditPaid(ctx, "u", 1, "topup", nil)
	}
	clock.Advance(800 * 24 * time.Hour)

	result, err := m.PurgeOld(ctx, RetentionOptions{OlderThanDays: 30, Limit: 2})
	if err != nil {
		t.Fatalf("PurgeOld: %v", err)
	}
	if result.Scanned > 2 {
		t.Errorf("scanned %d rows, limit was 2", result.Scanned)
	}
}

func TestPurgeOldResultShape(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()
	m.CreditPaid(ctx, "u", 10, "topup", nil)
	clock.Advance(800 * 24 * time.Hour)

	result, err := m.PurgeOld(ctx, RetentionOptions{OlderThanDays: 30})
	if err != nil {
		t.Fatalf("PurgeOld: %v", err)
	}
	if result.CutoffISO == "" {
		t.Error("expected a non-empty cutoff timestamp")
	}
	if result.DurationSeconds < 0 {
		t.Error("duration should never be negative")
	}
}
