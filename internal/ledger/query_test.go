package ledger

import (
	"context"
	"testing"
)

func TestListAllPaginationIsDeterministic(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := m.CreditPaid(ctx, "u", 1, "topup", nil); err != nil {
			t.Fatalf("CreditPaid: %v", err)
		}
	}

	page1, err := m.ListAll(ctx, 2, "")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(page1.Records) != 2 || page1.PageToken == "" {
		t.Fatalf("unexpected page1: %+v", page1)
	}

	page2, err := m.ListAll(ctx, 2, page1.PageToken)
	if err != nil {
		t.Fatalf("ListAll page2: %v", err)
	}
	if len(page2.Records) != 2 {
		t.Fatalf("unexpected page2: %+v", page2)
	}
	if page1.Records[0].ID == page2.Records[0].ID {
		t.Error("page2 repeated page1's first record")
	}
}

func TestListAllUnresolvablePageTokenRestartsFromBeginning(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	m.CreditPaid(ctx, "u", 1, "topup", nil)

	page, err := m.ListAll(ctx, 10, "not-a-real-token")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("unresolvable token should restart from beginning, got %+v", page)
	}
}

func TestCountAllAndCountHolds(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	m.CreditPaid(ctx, "u", 10, "topup", nil)
	m.Hold(ctx, "u", 5, "b", HoldOptions{ExpiresAfter: 300})

	total, err := m.CountAll(ctx)
	if err != nil || total != 2 {
		t.Fatalf("CountAll = %d, %v", total, err)
	}
	holds, err := m.CountHolds(ctx, "")
	if err != nil || holds != 1 {
		t.Fatalf("CountHolds = %d, %v", holds, err)
	}
	open, err := m.CountHolds(ctx, HoldOpen)
	if err != nil || open != 1 {
		t.Fatalf("CountHolds(OPEN) = %d, %v", open, err)
	}
}

func TestManualAdjustBalancePaidCredit(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.ManualAdjustBalance(ctx, "u", 25, AdjustPaid, "correction", "", ""); err != nil {
		t.Fatalf("ManualAdjustBalance: %v", err)
	}
	bal := balanceOf(t, ctx, m, "u")
	if bal.PaidTokens != 25 {
		t.Errorf("paid = %d, want 25", bal.PaidTokens)
	}
}

func TestManualAdjustBalanceFreeDebit(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	m.CreditFree(ctx, "u", "creatorX", 30, "", "", nil)

	if err := m.ManualAdjustBalance(ctx, "u", -10, AdjustFree, "correction", "creatorX", ""); err != nil {
		t.Fatalf("ManualAdjustBalance: %v", err)
	}
	bal := balanceOf(t, ctx, m, "u")
	if bal.FreeTokensPerBeneficiary["creatorX"] != 20 {
		t.Errorf("creatorX free = %d, want 20", bal.FreeTokensPerBeneficiary["creatorX"])
	}
}

func TestListAllUserBalances(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	m.CreditPaid(ctx, "alice", 10, "topup", nil)
	m.CreditPaid(ctx, "bob", 5, "topup", nil)

	summaries, err := m.ListAllUserBalances(ctx)
	if err != nil {
		t.Fatalf("ListAllUserBalances: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
}
