package ledger

import "sort"

// SplitMode selects which consumption priority ordering applies, per
// the priority rules table.
type SplitMode string

const (
	SplitDefault  SplitMode = "default"  // DEBIT
	SplitHold     SplitMode = "hold"     // HOLD creation
	SplitTransfer SplitMode = "transfer" // TIP
)

// Balances is the balance snapshot the split calculator consumes.
// FreeBuckets maps beneficiaryId (creator or SystemBeneficiary) to its
// current free balance. SystemBeneficiary's entry is the system free
// bucket; it is drawn only as the system source, never also as the
// beneficiary bucket, so it is not double-counted.
type Balances struct {
	PaidTokens  int64
	FreeBuckets map[string]int64
}

// Split is the computed consumption across buckets for one request.
type Split struct {
	FreeSystemConsumed      int64
	FreeBeneficiaryConsumed int64
	PaidConsumed            int64
	FreeBeneficiarySourceID string
}

// ComputeSplit decides how amount is drawn from the available buckets
// under mode, for a transaction naming beneficiaryID as its counterparty
// (the bucket owner for default/hold modes; the receiver for transfer).
func ComputeSplit(mode SplitMode, amount int64, beneficiaryID string, bal Balances) (Split, error) {
	if amount <= 0 {
		return Split{}, newErr(CodeInvalidAmount, "amount must be a positive integer", nil)
	}

	systemFree := bal.FreeBuckets[SystemBeneficiary]
	beneficiaryFree := int64(0)
	if beneficiaryID != SystemBeneficiary {
		beneficiaryFree = bal.FreeBuckets[beneficiaryID]
	}

	switch mode {
	case SplitDefault:
		s := Split{}
		remaining := amount

		take := minInt64(remaining, beneficiaryFree)
		s.FreeBeneficiaryConsumed = take
		if take > 0 {
			s.FreeBeneficiarySourceID = beneficiaryID
		}
		remaining -= take

		take = minInt64(remaining, systemFree)
		s.FreeSystemConsumed = take
		remaining -= take

		s.PaidConsumed = remaining
		if s.PaidConsumed > bal.PaidTokens {
			return Split{}, newErr(CodeInsufficientTokens, "insufficient tokens", nil)
		}
		return s, nil

	case SplitHold:
		s := Split{}
		remaining := amount

		take := minInt64(remaining, bal.PaidTokens)
		s.PaidConsumed = take
		remaining -= take

		take = minInt64(remaining, beneficiaryFree)
		s.FreeBeneficiaryConsumed = take
		if take > 0 {
			s.FreeBeneficiarySourceID = beneficiaryID
		}
		remaining -= take

		take = minInt64(remaining, systemFree)
		s.FreeSystemConsumed = take
		remaining -= take

		// Remainder piles back onto paid, causing insufficiency if paid
		// was already exhausted above.
		s.PaidConsumed += remaining
		if s.PaidConsumed > bal.PaidTokens {
			return Split{}, newErr(CodeInsufficientTokens, "insufficient tokens", nil)
		}
		return s, nil

	case SplitTransfer:
		s := Split{}
		if beneficiaryFree > 0 {
			return ComputeSplit(SplitDefault, amount, beneficiaryID, bal)
		}

		largestID, largestAmt := largestCreatorBucket(bal.FreeBuckets)
		remaining := amount

		take := minInt64(remaining, largestAmt)
		s.FreeBeneficiaryConsumed = take
		if take > 0 {
			s.FreeBeneficiarySourceID = largestID
		}
		remaining -= take

		take = minInt64(remaining, systemFree)
		s.FreeSystemConsumed = take
		remaining -= take

		s.PaidConsumed = remaining
		if s.PaidConsumed > bal.PaidTokens {
			return Split{}, newErr(CodeInsufficientPaidTokens, "insufficient paid tokens", nil)
		}
		return s, nil

	default:
		return Split{}, newErr(CodeInvalidTransactionType, "unknown split mode", nil)
	}
}

// largestCreatorBucket returns the largest non-system free bucket. Ties
// break on id for determinism.
func largestCreatorBucket(buckets map[string]int64) (string, int64) {
	type kv struct {
		id  string
		amt int64
	}
	var creators []kv
	for id, amt := range buckets {
		if id == SystemBeneficiary || amt <= 0 {
			continue
		}
		creators = append(creators, kv{id, amt})
	}
	if len(creators) == 0 {
		return "", 0
	}
	sort.Slice(creators, func(i, j int) bool {
		if creators[i].amt != creators[j].amt {
			return creators[i].amt > creators[j].amt
		}
		return creators[i].id < creators[j].id
	})
	return creators[0].id, creators[0].amt
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
