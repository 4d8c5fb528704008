package ledger

import (
	"context"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

// Balance is the top-level summary returned by getBalance.
type Balance struct {
	PaidTokens               int64
	FreeTokensPerBeneficiary map[string]int64
	TotalFreeTokens          int64
}

// FreeGrant is one still-live (or expired) CREDIT_FREE contribution to a
// bucket, used by the drilldown view.
type FreeGrant struct {
	ExpiresAt     string
	Amount        int64
	TransactionID string
}

// BucketBreakdown is the per-beneficiary drilldown: the live total plus
// the individual grants it is composed of.
type BucketBreakdown struct {
	Total    int64
	ByExpiry []FreeGrant
}

// BalanceDrilldown extends Balance with a per-bucket grant breakdown.
type BalanceDrilldown struct {
	Balance
	FreeTokensBreakdown map[string]BucketBreakdown
}

// GetBalance folds a user's events into paid/free totals, per §4.4.
func GetBalance(ctx context.Context, st store.Store, clock Clock, errs ErrorCollector, table, userID string) (Balance, error) {
	events, err := fetchFoldEvents(ctx, st, table, userID)
	if err != nil {
		return Balance{}, err
	}

	paid := int64(0)
	free := map[string]int64{}

	for _, e := range events {
		foldEvent(e, userID, clock, &paid, free)
	}

	if paid < 0 && errs != nil {
		errs.AddError("paidTokens went negative during fold", map[string]interface{}{
			"code": "BALANCE_INVARIANT_VIOLATION", "userId": userID, "raw": paid,
		})
	}
	if paid < 0 {
		paid = 0
	}

	total := int64(0)
	for _, v := range free {
		total += v
	}

	return Balance{PaidTokens: paid, FreeTokensPerBeneficiary: free, TotalFreeTokens: total}, nil
}

// GetBalanceWithDrilldown additionally reconstructs, per free bucket, the
// live (non-expired) CREDIT_FREE grants composing its total.
func GetBalanceWithDrilldown(ctx context.Context, st store.Store, clock Clock, errs ErrorCollector, table, userID string) (BalanceDrilldown, error) {
	bal, err := GetBalance(ctx, st, clock, errs, table, userID)
	if err != nil {
		return BalanceDrilldown{}, err
	}

	events, err := fetchFoldEvents(ctx, st, table, userID)
	if err != nil {
		return BalanceDrilldown{}, err
	}

	breakdown := map[string]BucketBreakdown{}
	for _, e := range events {
		if e.Type != CreditFree || e.UserID != userID {
			continue
		}
		if isExpired(clock, e.ExpiresAt) {
			continue
		}
		b := breakdown[e.BeneficiaryID]
		b.Total += e.Amount
		b.ByExpiry = append(b.ByExpiry, FreeGrant{ExpiresAt: e.ExpiresAt, Amount: e.Amount, TransactionID: e.ID})
		breakdown[e.BeneficiaryID] = b
	}

	return BalanceDrilldown{Balance: bal, FreeTokensBreakdown: breakdown}, nil
}

// foldEvent applies one event's contribution to paid/free for the user
// whose balance is being computed, per the rules in §4.4.
func foldEvent(e Event, target string, clock Clock, paid *int64, free map[string]int64) {
	isPrimary := e.UserID == target
	isBeneficiary := e.BeneficiaryID == target

	switch e.Type {
	case CreditPaid:
		if isPrimary {
			*paid += e.Amount
		}

	case CreditFree:
		if isPrimary && !isExpired(clock, e.ExpiresAt) {
			free[e.BeneficiaryID] += e.Amount
		}

	case Debit:
		if isPrimary {
			*paid -= e.Amount
			free[e.BeneficiaryID] -= e.FreeBeneficiaryConsumed
			free[SystemBeneficiary] -= e.FreeSystemConsumed
		}

	case Hold:
		if isPrimary && e.State != HoldReversed {
			*paid -= e.Amount
			free[e.BeneficiaryID] -= e.FreeBeneficiaryConsumed
			free[SystemBeneficiary] -= e.FreeSystemConsumed
		}
		if isBeneficiary && e.State == HoldCaptured && e.UserID != e.BeneficiaryID {
			*paid += e.Amount
		}

	case Tip:
		if isPrimary {
			*paid -= e.Amount
			sourceID := e.FreeBeneficiarySourceID
			if sourceID == "" {
				sourceID = e.BeneficiaryID
			}
			free[sourceID] -= e.FreeBeneficiaryConsumed
			free[SystemBeneficiary] -= e.FreeSystemConsumed
		}
		if isBeneficiary {
			*paid += e.Amount + e.FreeBeneficiaryConsumed + e.FreeSystemConsumed
		}
	}
}

// fetchFoldEvents gathers the union (deduped by id) of events where
// userID is the primary party and events where userID is the
// beneficiary, per the two-index read in §4.4 step 1-2.
func fetchFoldEvents(ctx context.Context, st store.Store, table, userID string) ([]Event, error) {
	seen := map[string]bool{}
	var out []Event

	primary, err := queryAllPages(ctx, st, table, IndexUserCreatedAt, "userId", userID)
	if err != nil {
		return nil, err
	}
	for _, rec := range primary {
		e := FromRecord(rec)
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}

	asBeneficiary, err := queryAllPages(ctx, st, table, IndexBeneficiaryCreatedAt, "beneficiaryId", userID)
	if err != nil {
		return nil, err
	}
	for _, rec := range asBeneficiary {
		e := FromRecord(rec)
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}

	return out, nil
}

// queryAllPages runs a partition-key-only query (RangeNone) against the
// named index, returning every matching row.
func queryAllPages(ctx context.Context, st store.Store, table, index, partitionKey, value string) ([]store.Record, error) {
	recs, err := st.QueryByIndex(ctx, table, index, store.IndexQuery{
		PartitionKey:   partitionKey,
		PartitionValue: value,
		RangeOp:        store.RangeNone,
		ScanForward:    true,
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}
