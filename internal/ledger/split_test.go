package ledger

import "testing"

func TestComputeSplitDefaultPriority(t *testing.T) {
	bal := Balances{PaidTokens: 100, FreeBuckets: map[string]int64{"creatorX": 5, SystemBeneficiary: 20}}
	s, err := ComputeSplit(SplitDefault, 10, "creatorX", bal)
	if err != nil {
		t.Fatalf("ComputeSplit: %v", err)
	}
	if s.FreeBeneficiaryConsumed != 5 || s.FreeSystemConsumed != 5 || s.PaidConsumed != 0 {
		t.Errorf("got %+v", s)
	}
}

func TestComputeSplitHoldPrioritizesPaid(t *testing.T) {
	bal := Balances{PaidTokens: 100, FreeBuckets: map[string]int64{"creatorX": 50}}
	s, err := ComputeSplit(SplitHold, 10, "creatorX", bal)
	if err != nil {
		t.Fatalf("ComputeSplit: %v", err)
	}
	if s.PaidConsumed != 10 || s.FreeBeneficiaryConsumed != 0 {
		t.Errorf("got %+v, want paid-first consumption", s)
	}
}

func TestComputeSplitHoldSpillsToFreeWhenPaidExhausted(t *testing.T) {
	bal := Balances{PaidTokens: 3, FreeBuckets: map[string]int64{"creatorX": 20}}
	s, err := ComputeSplit(SplitHold, 10, "creatorX", bal)
	if err != nil {
		t.Fatalf("ComputeSplit: %v", err)
	}
	if s.PaidConsumed != 3 || s.FreeBeneficiaryConsumed != 7 {
		t.Errorf("got %+v", s)
	}
}

func TestComputeSplitInsufficientTokens(t *testing.T) {
	bal := Balances{PaidTokens: 1}
	_, err := ComputeSplit(SplitDefault, 10, SystemBeneficiary, bal)
	if code, _ := CodeOf(err); code != CodeInsufficientTokens {
		t.Errorf("got %v, want INSUFFICIENT_TOKENS", err)
	}
}

func TestComputeSplitSystemBeneficiaryNotDoubleCounted(t *testing.T) {
	bal := Balances{PaidTokens: 0, FreeBuckets: map[string]int64{SystemBeneficiary: 10}}
	s, err := ComputeSplit(SplitDefault, 10, SystemBeneficiary, bal)
	if err != nil {
		t.Fatalf("ComputeSplit: %v", err)
	}
	if s.FreeBeneficiaryConsumed != 0 || s.FreeSystemConsumed != 10 {
		t.Errorf("system bucket double-counted: %+v", s)
	}
}

func TestComputeSplitTransferFallsBackToDefaultWhenOwnBucketExists(t *testing.T) {
	bal := Balances{PaidTokens: 100, FreeBuckets: map[string]int64{"bob": 5, "creatorX": 50}}
	s, err := ComputeSplit(SplitTransfer, 10, "bob", bal)
	if err != nil {
		t.Fatalf("ComputeSplit: %v", err)
	}
	if s.FreeBeneficiaryConsumed != 5 || s.FreeBeneficiarySourceID != "bob" {
		t.Errorf("expected to consume own bucket first, got %+v", s)
	}
}

func TestComputeSplitZeroAmountRejected(t *testing.T) {
	_, err := ComputeSplit(SplitDefault, 0, SystemBeneficiary, Balances{})
	if code, _ := CodeOf(err); code != CodeInvalidAmount {
		t.Errorf("got %v, want INVALID_AMOUNT", err)
	}
}
