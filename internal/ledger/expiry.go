package ledger

import (
	"context"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

// ExpiredHold is one row findExpired surfaces: the HOLD event plus enough
// context for the worker loop to act on it.
type ExpiredHold struct {
	Event Event
}

// FindExpired queries the transactionType,expiresAt index for OPEN HOLDs
// whose expiresAt has passed expiredForSeconds ago, per §4.7. Rows with a
// missing state are reported as corruption and excluded from the result.
func (m *TokenManager) FindExpired(ctx context.Context, expiredForSeconds int64, limit int) ([]ExpiredHold, error) {
	nowUnix, _ := m.clock.ParseToUnix(m.clock.Now())
	cutoff := m.clock.FromUnix(nowUnix - expiredForSeconds)

	recs, err := m.store.QueryByIndex(ctx, m.table, IndexTypeExpiresAt, store.IndexQuery{
		PartitionKey: "transactionType", PartitionValue: string(Hold),
		RangeKey: "expiresAt", RangeOp: store.RangeLessOrEqual, RangeValue: cutoff,
		Limit: limit, ScanForward: true,
	})
	if err != nil {
		return nil, err
	}

	out := make([]ExpiredHold, 0, len(recs))
	for _, r := range recs {
		e := FromRecord(r)
		if e.State == "" {
			m.errs.AddError("hold missing state during expiry scan", map[string]interface{}{
				"code": string(CodeHoldMissingState), "id": e.ID,
			})
			continue
		}
		if e.State != HoldOpen {
			continue
		}
		out = append(out, ExpiredHold{Event: e})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ExpirySummary is the per-batch outcome of ProcessExpired.
type ExpirySummary struct {
	Scanned       int
	ReversedCount int
	Errors        []error
}

// ProcessExpired reverses every stale OPEN HOLD found by FindExpired,
// capturing per-row failures without aborting the batch (§4.7).
func (m *TokenManager) ProcessExpired(ctx context.Context, expiredForSeconds int64, batchSize int) (ExpirySummary, error) {
	expired, err := m.FindExpired(ctx, expiredForSeconds, batchSize)
	if err != nil {
		return ExpirySummary{}, err
	}

	summary := ExpirySummary{Scanned: len(expired)}
	for _, h := range expired {
		res, err := m.ReverseHeld(ctx, HoldTarget{TransactionID: h.Event.ID})
		if err != nil {
			summary.Errors = append(summary.Errors, err)
			continue
		}
		summary.ReversedCount += res.Processed
		summary.Errors = append(summary.Errors, res.Errors...)
	}
	return summary, nil
}
