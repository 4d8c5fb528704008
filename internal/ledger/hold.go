package ledger

import (
	"context"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

const defaultMaxTotalSeconds = 7200

// HoldTarget selects the HOLD row(s) an operation acts on: either an
// exact transaction id, or every OPEN HOLD for a refId.
type HoldTarget struct {
	TransactionID string
	RefID         string
}

// BatchResult is the aggregate outcome of a captureHeld/reverseHeld call
// that may touch more than one row (refId targeting).
type BatchResult struct {
	Processed      int
	Skipped        int
	AlreadyDone    int
	Errors         []error
}

func (m *TokenManager) resolveHoldTargets(ctx context.Context, t HoldTarget) ([]Event, error) {
	if t.TransactionID == "" && t.RefID == "" {
		return nil, newErr(CodeMissingIdentifier, "transactionId or refId is required", nil)
	}
	if t.TransactionID != "" {
		rec, err := m.store.Get(ctx, m.table, store.Key{"id": t.TransactionID})
		if err != nil {
			if err == store.ErrNotFound {
				return nil, newErr(CodeTransactionNotFound, "transaction not found", nil)
			}
			return nil, err
		}
		return []Event{FromRecord(rec)}, nil
	}

	recs, err := store.QueryWithFallback(ctx,
		func() ([]store.Record, error) {
			return m.store.QueryByIndex(ctx, m.table, IndexRefIDState, store.IndexQuery{
				PartitionKey: "refId", PartitionValue: t.RefID,
				RangeKey: "state", RangeOp: store.RangeEqual, RangeValue: string(HoldOpen),
			})
		},
		func() ([]store.Record, error) {
			all, err := m.store.QueryByIndex(ctx, m.table, IndexRefIDType, store.IndexQuery{
				PartitionKey: "refId", PartitionValue: t.RefID,
				RangeKey: "transactionType", RangeOp: store.RangeEqual, RangeValue: string(Hold),
			})
			if err != nil {
				return nil, err
			}
			var open []store.Record
			for _, r := range all {
				if s, _ := r["state"].(string); s == string(HoldOpen) {
					open = append(open, r)
				}
			}
			return open, nil
		},
	)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, newErr(CodeNoOpenHolds, "no open holds found for refId", nil)
	}
	out := make([]Event, 0, len(recs))
	for _, r := range recs {
		out = append(out, FromRecord(r))
	}
	return out, nil
}

// appendAudit re-reads current, appends an audit entry, and returns the
// merged auditTrail ready to write back.
func appendAudit(current Event, status, action string, clock Clock) []interface{} {
	var trail []interface{}
	if t, ok := current.Metadata.Get("auditTrail"); ok {
		if list, ok := t.([]interface{}); ok {
			trail = list
		}
	}
	trail = append(trail, map[string]interface{}{
		"status": status, "action": action, "timestamp": clock.Now(),
	})
	return trail
}

func (m *TokenManager) withUpdatedMetadata(e Event, trail []interface{}, extra map[string]interface{}) map[string]interface{} {
	md := map[string]interface{}{}
	if e.Metadata.Structured != nil {
		for k, v := range e.Metadata.Structured {
			md[k] = v
		}
	}
	md["auditTrail"] = trail
	for k, v := range extra {
		md[k] = v
	}
	return md
}

// CaptureHeld captures one or every OPEN HOLD matching target. Rows lost
// to a concurrent winner are skipped, not errored (§4.6 policy table).
func (m *TokenManager) CaptureHeld(ctx context.Context, target HoldTarget) (BatchResult, error) {
	targets, err := m.resolveHoldTargets(ctx, target)
	if err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{}
	for _, t := range targets {
		res.merge(m.captureOne(ctx, t))
	}
	if res.Processed == 0 && res.AlreadyDone > 0 && target.TransactionID != "" {
		return res, newErr(CodeAlreadyCaptured, "hold already captured", nil)
	}
	return res, nil
}

func (m *TokenManager) captureOne(ctx context.Context, t Event) outcome {
	if t.Type != Hold {
		return outcome{err: newErr(CodeInvalidTransactionType, "target is not a HOLD", nil)}
	}
	switch t.State {
	case HoldCaptured:
		return outcome{alreadyDone: true}
	case HoldReversed:
		return outcome{err: newErr(CodeAlreadyReversed, "hold already reversed", nil)}
	case "":
		m.errs.AddError("hold missing state", map[string]interface{}{"code": string(CodeHoldMissingState), "id": t.ID})
		return outcome{err: newErr(CodeHoldMissingState, "hold has no state", nil)}
	}

	trail := appendAudit(t, string(HoldCaptured), "capture", m.clock)
	mutations := store.Record{
		"state":    string(HoldCaptured),
		"version":  t.Version + 1,
		"metadata": m.withUpdatedMetadata(t, trail, nil),
	}
	cond := store.Condition{"transactionType": string(Hold), "state": string(HoldOpen), "version": t.Version}
	_, err := m.store.UpdateConditional(ctx, m.table, store.Key{"id": t.ID}, mutations, cond)
	if err == store.ErrConditionFailed {
		return outcome{skipped: true}
	}
	if err != nil {
		return outcome{err: err}
	}
	m.writeLog("capture_held", map[string]interface{}{"id": t.ID, "refId": t.RefID})
	return outcome{processed: true}
}

// ReverseHeld reverses one or every OPEN HOLD matching target.
func (m *TokenManager) ReverseHeld(ctx context.Context, target HoldTarget) (BatchResult, error) {
	targets, err := m.resolveHoldTargets(ctx, target)
	if err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{}
	for _, t := range targets {
		res.merge(m.reverseOne(ctx, t))
	}
	return res, nil
}

func (m *TokenManager) reverseOne(ctx context.Context, t Event) outcome {
	if t.Type != Hold {
		return outcome{err: newErr(CodeInvalidTransactionType, "target is not a HOLD", nil)}
	}
	switch t.State {
	case HoldReversed:
		return outcome{alreadyDone: true}
	case HoldCaptured:
		return outcome{err: newErr(CodeAlreadyCaptured, "hold already captured", nil)}
	case "":
		m.errs.AddError("hold missing state", map[string]interface{}{"code": string(CodeHoldMissingState), "id": t.ID})
		return outcome{err: newErr(CodeHoldMissingState, "hold has no state", nil)}
	}

	trail := appendAudit(t, string(HoldReversed), "reverse", m.clock)
	mutations := store.Record{
		"state":    string(HoldReversed),
		"version":  t.Version + 1,
		"metadata": m.withUpdatedMetadata(t, trail, nil),
	}
	cond := store.Condition{"transactionType": string(Hold), "state": string(HoldOpen), "version": t.Version}
	_, err := m.store.UpdateConditional(ctx, m.table, store.Key{"id": t.ID}, mutations, cond)
	if err == store.ErrConditionFailed {
		return outcome{skipped: true}
	}
	if err != nil {
		return outcome{err: err}
	}
	m.writeLog("reverse_held", map[string]interface{}{"id": t.ID, "refId": t.RefID})
	return outcome{processed: true}
}

// ExtendExpiry extends an OPEN hold's expiresAt by extendBySeconds, up to
// maxTotalSeconds measured from createdAt. Unlike capture/reverse this is
// never a batch operation and a lost race surfaces as ALREADY_PROCESSED.
func (m *TokenManager) ExtendExpiry(ctx context.Context, target HoldTarget, extendBySeconds int64, maxTotalSeconds int64) (Event, error) {
	if extendBySeconds <= 0 {
		return Event{}, newErr(CodeInvalidTimeout, "extendBySeconds must be positive", nil)
	}
	if maxTotalSeconds <= 0 {
		maxTotalSeconds = m.maxTotalExtendSeconds
	}

	targets, err := m.resolveHoldTargets(ctx, target)
	if err != nil {
		return Event{}, err
	}
	t := targets[0]
	if t.Type != Hold {
		return Event{}, newErr(CodeInvalidTransactionType, "target is not a HOLD", nil)
	}
	if t.State != HoldOpen {
		return Event{}, newErr(CodeNoHeldTokens, "hold is not open", nil)
	}

	createdUnix, _ := m.clock.ParseToUnix(t.CreatedAt)
	currentExpiry, _ := m.clock.ParseToUnix(t.ExpiresAt)
	newExpiryUnix := currentExpiry + extendBySeconds
	if newExpiryUnix-createdUnix > maxTotalSeconds {
		return Event{}, newErr(CodeTimeoutExceeded, "extension exceeds maxTotalSeconds", nil)
	}
	newExpiresAt := m.clock.FromUnix(newExpiryUnix)

	trail := appendAudit(t, string(HoldOpen), "extend", m.clock)
	mutations := store.Record{
		"expiresAt": newExpiresAt,
		"version":   t.Version + 1,
		"metadata":  m.withUpdatedMetadata(t, trail, nil),
	}
	cond := store.Condition{"transactionType": string(Hold), "state": string(HoldOpen), "version": t.Version}
	rec, err := m.store.UpdateConditional(ctx, m.table, store.Key{"id": t.ID}, mutations, cond)
	if err == store.ErrConditionFailed {
		return Event{}, newErr(CodeAlreadyProcessed, "hold was concurrently modified", nil)
	}
	if err != nil {
		return Event{}, err
	}
	m.writeLog("extend_expiry", map[string]interface{}{"id": t.ID, "expiresAt": newExpiresAt})
	return FromRecord(rec), nil
}

// outcome is the per-row result of a capture/reverse attempt.
type outcome struct {
	processed   bool
	skipped     bool
	alreadyDone bool
	err         error
}

func (r *BatchResult) merge(o outcome) {
	switch {
	case o.processed:
		r.Processed++
	case o.skipped:
		r.Skipped++
	case o.alreadyDone:
		r.AlreadyDone++
	case o.err != nil:
		r.Errors = append(r.Errors, o.err)
	}
}
