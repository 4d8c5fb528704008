package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/klingon-exchange/tokenledger/internal/store/memstore"
)

func TestValidatorRejectsMissingUserID(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.CreditPaid(context.Background(), "", 10, "topup", nil)
	if code, _ := CodeOf(err); code != CodeInvalidTransactionPayload {
		t.Errorf("got %v, want INVALID_TRANSACTION_PAYLOAD", err)
	}
}

func TestValidatorRejectsMissingBeneficiaryID(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.CreditFree(context.Background(), "u", "", 10, "", "", nil)
	if code, _ := CodeOf(err); code != CodeMissingBeneficiaryID {
		t.Errorf("got %v, want MISSING_BENEFICIARY_ID", err)
	}
}

type fakeGateway struct {
	granted []int64
	denied  []string
	failErr error
}

func (g *fakeGateway) GrantAccess(ctx context.Context, userID string, amount int64) error {
	if g.failErr != nil {
		return g.failErr
	}
	g.granted = append(g.granted, amount)
	return nil
}

func (g *fakeGateway) DenyAccess(ctx context.Context, userID string, reason string) error {
	g.denied = append(g.denied, reason)
	return nil
}

type fakeModeration struct {
	blocked bool
	failErr error
}

func (f *fakeModeration) IsBlocked(ctx context.Context, userID string) (bool, error) {
	if f.failErr != nil {
		return false, f.failErr
	}
	return f.blocked, nil
}

func newTestManagerWithCollaborators(t *testing.T, gw PaymentGateway, mod ModerationService) (*TokenManager, *collectingErrors) {
	t.Helper()
	pk, indexes := MemstoreSchema()
	st := memstore.New(pk, indexes)
	errs := &collectingErrors{}
	m := New(Config{Store: st, Clock: newFakeClock(), Errors: errs, PaymentGateway: gw, ModerationService: mod})
	return m, errs
}

func TestCreditPaidGrantsAccessOnSuccess(t *testing.T) {
	gw := &fakeGateway{}
	m, _ := newTestManagerWithCollaborators(t, gw, nil)
	if _, err := m.CreditPaid(context.Background(), "u", 25, "topup", nil); err != nil {
		t.Fatalf("CreditPaid: %v", err)
	}
	if len(gw.granted) != 1 || gw.granted[0] != 25 {
		t.Errorf("gateway not granted: %+v", gw.granted)
	}
}

func TestCreditPaidSwallowsGatewayFailure(t *testing.T) {
	gw := &fakeGateway{failErr: errors.New("gateway down")}
	m, errs := newTestManagerWithCollaborators(t, gw, nil)
	_, err := m.CreditPaid(context.Background(), "u", 25, "topup", nil)
	if err != nil {
		t.Fatalf("gateway failure should not propagate to caller: %v", err)
	}
	if len(errs.errs) == 0 {
		t.Error("expected gateway failure to be recorded")
	}
}

func TestDebitDeniedWhenModerationBlocks(t *testing.T) {
	gw := &fakeGateway{}
	mod := &fakeModeration{blocked: true}
	m, _ := newTestManagerWithCollaborators(t, gw, mod)
	ctx := context.Background()
	m.CreditPaid(ctx, "u", 100, "topup", nil)

	_, err := m.Debit(ctx, "u", 10, DebitOptions{})
	if code, _ := CodeOf(err); code != CodeUserBlocked {
		t.Fatalf("got %v, want USER_BLOCKED", err)
	}
	if len(gw.denied) != 1 {
		t.Errorf("expected gateway DenyAccess to be called, got %+v", gw.denied)
	}
}

func TestDebitProceedsWhenModerationServiceUnavailable(t *testing.T) {
	mod := &fakeModeration{failErr: errors.New("service down")}
	m, errs := newTestManagerWithCollaborators(t, nil, mod)
	ctx := context.Background()
	m.CreditPaid(ctx, "u", 100, "topup", nil)

	if _, err := m.Debit(ctx, "u", 10, DebitOptions{}); err != nil {
		t.Fatalf("moderation failure should not block the writer: %v", err)
	}
	if len(errs.errs) == 0 {
		t.Error("expected moderation failure to be recorded")
	}
}

func TestHoldMetadataStripsTestingFlag(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	m.CreditPaid(ctx, "u", 100, "topup", nil)

	e, err := m.Hold(ctx, "u", 10, "b", HoldOptions{
		ExpiresAfter: 1, Testing: true,
		Meta: map[string]interface{}{"testing": true, "note": "keep-me"},
	})
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if _, ok := e.Metadata.Get("testing"); ok {
		t.Error("testing flag should be stripped before persistence")
	}
	if v, ok := e.Metadata.Get("note"); !ok || v != "keep-me" {
		t.Errorf("unrelated metadata should survive, got %v, ok=%v", v, ok)
	}
}
