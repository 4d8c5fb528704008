package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

const (
	defaultMinExpiresAfterSeconds = 300
	defaultMaxExpiresAfterSeconds = 3600
	minExpiresAfterSecondsTesting = 1
)

// HoldOptions configures hold().
type HoldOptions struct {
	RefID        string
	ExpiresAfter int64
	Purpose      string
	Meta         map[string]interface{}
	Testing      bool
}

// DebitOptions configures debit().
type DebitOptions struct {
	BeneficiaryID string
	Flag          string
	Purpose       string
	RefID         string
}

// TransferOptions configures transfer().
type TransferOptions struct {
	IsAnonymous bool
	Note        string
	RefID       string
}

func (m *TokenManager) nextID() string { return uuid.NewString() }

func (m *TokenManager) balances(ctx context.Context, userID string) (Balances, error) {
	bal, err := GetBalance(ctx, m.store, m.clock, m.errs, m.table, userID)
	if err != nil {
		return Balances{}, err
	}
	return Balances{PaidTokens: bal.PaidTokens, FreeBuckets: bal.FreeTokensPerBeneficiary}, nil
}

func (m *TokenManager) putEvent(ctx context.Context, e Event) (Event, error) {
	rec, err := ToRecord(e)
	if err != nil {
		return Event{}, err
	}
	if err := m.store.Put(ctx, m.table, rec); err != nil {
		return Event{}, err
	}
	return FromRecord(rec), nil
}

// CreditPaid adds amount paid tokens to userID, per §4.5.
func (m *TokenManager) CreditPaid(ctx context.Context, userID string, amount int64, purpose string, meta map[string]interface{}) (Event, error) {
	if _, err := m.validateFields(requiredUserAmount(userID, amount)); err != nil {
		return Event{}, err
	}
	e := Event{
		ID: m.nextID(), UserID: userID, BeneficiaryID: userID,
		Type: CreditPaid, Amount: amount, Purpose: purpose,
		CreatedAt: m.clock.Now(), ExpiresAt: NeverExpires,
		Metadata: Metadata{Structured: meta},
	}
	out, err := m.putEvent(ctx, e)
	if err != nil {
		return Event{}, err
	}
	m.writeLog("credit_paid", map[string]interface{}{"userId": userID, "amount": amount})
	m.grantAccess(ctx, userID, amount)
	return out, nil
}

// CreditFree grants amount free tokens into beneficiaryID's bucket,
// expiring at expiresAt (NeverExpires if empty).
func (m *TokenManager) CreditFree(ctx context.Context, userID, beneficiaryID string, amount int64, expiresAt, purpose string, meta map[string]interface{}) (Event, error) {
	if _, err := m.validateFields(requiredUserBeneficiaryAmount(userID, beneficiaryID, amount)); err != nil {
		return Event{}, err
	}
	if expiresAt == "" {
		expiresAt = NeverExpires
	}
	if purpose == "" {
		purpose = "free_grant"
	}
	e := Event{
		ID: m.nextID(), UserID: userID, BeneficiaryID: beneficiaryID,
		Type: CreditFree, Amount: amount, Purpose: purpose,
		ExpiresAt: expiresAt, CreatedAt: m.clock.Now(),
		Metadata: Metadata{Structured: meta},
	}
	out, err := m.putEvent(ctx, e)
	if err != nil {
		return Event{}, err
	}
	m.writeLog("credit_free", map[string]interface{}{"userId": userID, "beneficiaryId": beneficiaryID, "amount": amount})
	return out, nil
}

// Debit consumes amount across the user's free/paid buckets per the
// default split priority, writing one DEBIT event.
func (m *TokenManager) Debit(ctx context.Context, userID string, amount int64, opts DebitOptions) (Event, error) {
	if _, err := m.validateFields(requiredUserAmount(userID, amount)); err != nil {
		return Event{}, err
	}
	if err := m.checkModeration(ctx, userID); err != nil {
		return Event{}, err
	}
	beneficiaryID := opts.BeneficiaryID
	if beneficiaryID == "" {
		beneficiaryID = SystemBeneficiary
	}

	bal, err := m.balances(ctx, userID)
	if err != nil {
		return Event{}, err
	}
	split, err := ComputeSplit(SplitDefault, amount, beneficiaryID, bal)
	if err != nil {
		return Event{}, err
	}

	e := Event{
		ID: m.nextID(), UserID: userID, BeneficiaryID: beneficiaryID,
		Type: Debit, Amount: split.PaidConsumed, Purpose: opts.Purpose,
		RefID: opts.RefID, CreatedAt: m.clock.Now(), ExpiresAt: NeverExpires,
		FreeBeneficiaryConsumed: split.FreeBeneficiaryConsumed,
		FreeSystemConsumed:      split.FreeSystemConsumed,
		FreeBeneficiarySourceID: split.FreeBeneficiarySourceID,
		Metadata: Metadata{Structured: map[string]interface{}{
			"flag": opts.Flag,
			"splitBreakdown": map[string]interface{}{
				"freeBeneficiaryConsumed": split.FreeBeneficiaryConsumed,
				"freeSystemConsumed":      split.FreeSystemConsumed,
				"paidConsumed":            split.PaidConsumed,
			},
		}},
	}
	out, err := m.putEvent(ctx, e)
	if err != nil {
		return Event{}, err
	}
	m.writeLog("debit", map[string]interface{}{"userId": userID, "amount": amount})
	return out, nil
}

// Transfer moves amount from senderID to beneficiaryID as a TIP, per the
// transfer split priority. Free tokens consumed are destroyed, not
// transferred; the receiver is credited an equivalent paid amount.
func (m *TokenManager) Transfer(ctx context.Context, senderID, beneficiaryID string, amount int64, purpose string, opts TransferOptions) (Event, error) {
	if _, err := m.validateFields(requiredUserBeneficiaryAmount(senderID, beneficiaryID, amount)); err != nil {
		return Event{}, err
	}
	if senderID == beneficiaryID {
		return Event{}, newErr(CodeInvalidTransactionPayload, "sender and beneficiary must differ", nil)
	}
	if err := m.checkModeration(ctx, senderID); err != nil {
		return Event{}, err
	}

	bal, err := m.balances(ctx, senderID)
	if err != nil {
		return Event{}, err
	}
	split, err := ComputeSplit(SplitTransfer, amount, beneficiaryID, bal)
	if err != nil {
		return Event{}, err
	}

	e := Event{
		ID: m.nextID(), UserID: senderID, BeneficiaryID: beneficiaryID,
		Type: Tip, Amount: split.PaidConsumed, Purpose: purpose,
		RefID: opts.RefID, CreatedAt: m.clock.Now(), ExpiresAt: NeverExpires,
		FreeBeneficiaryConsumed: split.FreeBeneficiaryConsumed,
		FreeSystemConsumed:      split.FreeSystemConsumed,
		FreeBeneficiarySourceID: split.FreeBeneficiarySourceID,
		Metadata: Metadata{Structured: map[string]interface{}{
			"isAnonymous": opts.IsAnonymous,
			"note":        opts.Note,
		}},
	}
	out, err := m.putEvent(ctx, e)
	if err != nil {
		return Event{}, err
	}
	m.writeLog("transfer", map[string]interface{}{"senderId": senderID, "beneficiaryId": beneficiaryID, "amount": amount})
	return out, nil
}

// Hold reserves amount against userID's balance on behalf of
// beneficiaryID, writing one OPEN HOLD event.
func (m *TokenManager) Hold(ctx context.Context, userID string, amount int64, beneficiaryID string, opts HoldOptions) (Event, error) {
	if _, err := m.validateFields(requiredUserBeneficiaryAmount(userID, beneficiaryID, amount)); err != nil {
		return Event{}, err
	}
	if err := m.checkModeration(ctx, userID); err != nil {
		return Event{}, err
	}

	minBound := m.minExpiresAfterSeconds
	if opts.Testing {
		minBound = minExpiresAfterSecondsTesting
	}
	if opts.ExpiresAfter < minBound || opts.ExpiresAfter > m.maxExpiresAfterSeconds {
		return Event{}, newErr(CodeInvalidTimeout, fmt.Sprintf("expiresAfter must be within [%d, %d]", minBound, m.maxExpiresAfterSeconds), nil)
	}

	refID := opts.RefID
	if refID != "" {
		if err := m.checkHoldUniqueness(ctx, refID); err != nil {
			return Event{}, err
		}
	} else {
		refID = m.nextID()
	}

	bal, err := m.balances(ctx, userID)
	if err != nil {
		return Event{}, err
	}
	split, err := ComputeSplit(SplitHold, amount, beneficiaryID, bal)
	if err != nil {
		return Event{}, err
	}

	now := m.clock.Now()
	nowUnix, _ := m.clock.ParseToUnix(now)
	expiresAt := m.clock.FromUnix(nowUnix + opts.ExpiresAfter)

	auditTrail := []interface{}{
		map[string]interface{}{"status": string(HoldOpen), "timestamp": now, "action": "create"},
	}
	e := Event{
		ID: m.nextID(), UserID: userID, BeneficiaryID: beneficiaryID,
		Type: Hold, Amount: split.PaidConsumed, Purpose: opts.Purpose,
		RefID: refID, ExpiresAt: expiresAt, CreatedAt: now,
		State: HoldOpen, Version: 1,
		FreeBeneficiaryConsumed: split.FreeBeneficiaryConsumed,
		FreeSystemConsumed:      split.FreeSystemConsumed,
		FreeBeneficiarySourceID: split.FreeBeneficiarySourceID,
		Metadata: Metadata{Structured: mergeMeta(opts.Meta, map[string]interface{}{"auditTrail": auditTrail})},
	}
	out, err := m.putEvent(ctx, e)
	if err != nil {
		return Event{}, err
	}
	m.writeLog("hold", map[string]interface{}{"userId": userID, "beneficiaryId": beneficiaryID, "amount": amount, "refId": refID})
	return out, nil
}

// checkHoldUniqueness enforces invariant 3: at most one OPEN HOLD per
// non-synthetic refId, via refId,state with fallback to
// refId,transactionType when the primary index is unavailable.
func (m *TokenManager) checkHoldUniqueness(ctx context.Context, refID string) error {
	recs, err := store.QueryWithFallback(ctx,
		func() ([]store.Record, error) {
			return m.store.QueryByIndex(ctx, m.table, IndexRefIDState, store.IndexQuery{
				PartitionKey: "refId", PartitionValue: refID,
				RangeKey: "state", RangeOp: store.RangeEqual, RangeValue: string(HoldOpen),
			})
		},
		func() ([]store.Record, error) {
			recs, err := m.store.QueryByIndex(ctx, m.table, IndexRefIDType, store.IndexQuery{
				PartitionKey: "refId", PartitionValue: refID,
				RangeKey: "transactionType", RangeOp: store.RangeEqual, RangeValue: string(Hold),
			})
			if err != nil {
				return nil, err
			}
			var open []store.Record
			for _, r := range recs {
				if s, _ := r["state"].(string); s == string(HoldOpen) {
					open = append(open, r)
				}
			}
			return open, nil
		},
	)
	if err != nil {
		return err
	}
	if len(recs) > 0 {
		return newErr(CodeDuplicateHoldRefID, "an OPEN hold already exists for this refId", nil)
	}
	return nil
}

// requiredUserAmount/requiredUserBeneficiaryAmount build the FieldSpec bags
// every writer validates through m.validator before touching the store, per
// spec §6. A missing/non-positive value is passed as nil so the Validator
// collaborator's own required-field check fires instead of duplicating it.
func requiredUserAmount(userID string, amount int64) map[string]FieldSpec {
	return map[string]FieldSpec{
		"userId": {Value: stringFieldValue(userID), Type: "string", Required: true},
		"amount": {Value: amountFieldValue(amount), Type: "int", Required: true},
	}
}

func requiredUserBeneficiaryAmount(userID, beneficiaryID string, amount int64) map[string]FieldSpec {
	fields := requiredUserAmount(userID, amount)
	fields["beneficiaryId"] = FieldSpec{Value: stringFieldValue(beneficiaryID), Type: "string", Required: true}
	return fields
}

func stringFieldValue(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func amountFieldValue(amount int64) interface{} {
	if amount <= 0 {
		return nil
	}
	return amount
}

func mergeMeta(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
