package ledger

import (
	"context"
	"sort"
	"strings"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

// Page is one page of a listing operation.
type Page struct {
	Records   []Event
	PageToken string
}

// UserBalanceSummary is one row of ListAllUserBalances.
type UserBalanceSummary struct {
	UserID string
	Balance
}

// scanAll walks the whole ledger table in primary-key order, for the
// admin read paths that explicitly accept the cost (§4.1, §4.9).
func (m *TokenManager) scanAll(ctx context.Context) ([]Event, error) {
	var out []Event
	cursor := ""
	for {
		page, err := m.store.Scan(ctx, m.table, store.ScanOptions{Limit: 500, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		for _, rec := range page.Records {
			out = append(out, FromRecord(rec))
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return out, nil
}

func sortByCreatedThenID(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt < events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
}

// paginate applies deterministic (createdAt, id) pagination to an
// already-sorted slice, per §4.9. An unresolvable pageToken restarts from
// the beginning rather than erroring.
func paginate(events []Event, limit int, pageToken string) Page {
	if limit <= 0 {
		limit = 20
	}
	start := 0
	if createdAt, id, ok := decodePageToken(pageToken); ok {
		for i, e := range events {
			if e.CreatedAt == createdAt && e.ID == id {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(events) {
		end = len(events)
	}
	if start > len(events) {
		start = len(events)
	}
	page := events[start:end]
	next := ""
	if end < len(events) {
		next = encodePageToken(page[len(page)-1])
	}
	return Page{Records: page, PageToken: next}
}

func encodePageToken(e Event) string { return e.CreatedAt + "|" + e.ID }

func decodePageToken(tok string) (createdAt, id string, ok bool) {
	if tok == "" {
		return "", "", false
	}
	parts := strings.SplitN(tok, "|", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// CountAll returns the total number of ledger events.
func (m *TokenManager) CountAll(ctx context.Context) (int, error) {
	events, err := m.scanAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// CountHolds counts HOLD events, optionally filtered by state.
func (m *TokenManager) CountHolds(ctx context.Context, state HoldState) (int, error) {
	events, err := m.scanAll(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range events {
		if e.Type != Hold {
			continue
		}
		if state != "" && e.State != state {
			continue
		}
		n++
	}
	return n, nil
}

// ListAll lists every ledger event, deterministically paginated.
func (m *TokenManager) ListAll(ctx context.Context, limit int, pageToken string) (Page, error) {
	events, err := m.scanAll(ctx)
	if err != nil {
		return Page{}, err
	}
	sortByCreatedThenID(events)
	return paginate(events, limit, pageToken), nil
}

// ListHolds lists HOLD events, optionally filtered by state.
func (m *TokenManager) ListHolds(ctx context.Context, limit int, pageToken string, state HoldState) (Page, error) {
	events, err := m.scanAll(ctx)
	if err != nil {
		return Page{}, err
	}
	var holds []Event
	for _, e := range events {
		if e.Type != Hold {
			continue
		}
		if state != "" && e.State != state {
			continue
		}
		holds = append(holds, e)
	}
	sortByCreatedThenID(holds)
	return paginate(holds, limit, pageToken), nil
}

// ListUserRecords lists userID's own events, optionally unioned with
// events where userID is the beneficiary.
func (m *TokenManager) ListUserRecords(ctx context.Context, userID string, includeBeneficiaryRecords bool, limit int, pageToken string) (Page, error) {
	var events []Event
	if includeBeneficiaryRecords {
		evs, err := fetchFoldEvents(ctx, m.store, m.table, userID)
		if err != nil {
			return Page{}, err
		}
		events = evs
	} else {
		recs, err := queryAllPages(ctx, m.store, m.table, IndexUserCreatedAt, "userId", userID)
		if err != nil {
			return Page{}, err
		}
		for _, r := range recs {
			events = append(events, FromRecord(r))
		}
	}
	sortByCreatedThenID(events)
	return paginate(events, limit, pageToken), nil
}

// GetUserBalanceDrilldown exposes C4's drilldown view through the facade.
func (m *TokenManager) GetUserBalanceDrilldown(ctx context.Context, userID string) (BalanceDrilldown, error) {
	return GetBalanceWithDrilldown(ctx, m.store, m.clock, m.errs, m.table, userID)
}

// ListAllUserBalances computes a balance summary for every distinct user
// that appears in the ledger.
func (m *TokenManager) ListAllUserBalances(ctx context.Context) ([]UserBalanceSummary, error) {
	events, err := m.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var ids []string
	for _, e := range events {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}
	sort.Strings(ids)

	out := make([]UserBalanceSummary, 0, len(ids))
	for _, id := range ids {
		bal, err := GetBalance(ctx, m.store, m.clock, m.errs, m.table, id)
		if err != nil {
			return nil, err
		}
		out = append(out, UserBalanceSummary{UserID: id, Balance: bal})
	}
	return out, nil
}

// AdjustmentType selects which bucket ManualAdjustBalance touches.
type AdjustmentType string

const (
	AdjustPaid AdjustmentType = "paid"
	AdjustFree AdjustmentType = "free"
)

// ManualAdjustBalance lets an operator correct a balance out of band. A
// positive amount grants into the named bucket. A negative amount is
// written as an ordinary Debit, which follows the default split (the
// beneficiary's free bucket, then system free, then paid): a negative
// "paid" adjustment draws system free tokens before paid ones, and a
// negative "free" adjustment spills into system free and paid once the
// named bucket is empty. Every
// adjustment still lands as an ordinary ledger event (§3 invariant 1 still
// holds: nothing bypasses the append-only log).
func (m *TokenManager) ManualAdjustBalance(ctx context.Context, userID string, amount int64, kind AdjustmentType, reason, beneficiaryID, expiresAt string) error {
	if userID == "" {
		return newErr(CodeInvalidTransactionPayload, "Invalid transaction payload", nil)
	}
	meta := map[string]interface{}{"reason": reason, "manualAdjustment": true}

	switch kind {
	case AdjustPaid:
		if amount > 0 {
			_, err := m.CreditPaid(ctx, userID, amount, reason, meta)
			return err
		}
		if amount < 0 {
			_, err := m.Debit(ctx, userID, -amount, DebitOptions{BeneficiaryID: SystemBeneficiary, Purpose: reason})
			return err
		}
		return newErr(CodeInvalidAmount, "amount must be an integer", nil)

	case AdjustFree:
		if beneficiaryID == "" {
			return newErr(CodeMissingBeneficiaryID, "beneficiaryId is required", nil)
		}
		if amount > 0 {
			_, err := m.CreditFree(ctx, userID, beneficiaryID, amount, expiresAt, reason, meta)
			return err
		}
		if amount < 0 {
			_, err := m.Debit(ctx, userID, -amount, DebitOptions{BeneficiaryID: beneficiaryID, Purpose: reason})
			return err
		}
		return newErr(CodeInvalidAmount, "amount must be an integer", nil)

	default:
		return newErr(CodeInvalidTokenType, "type must be paid or free", nil)
	}
}
