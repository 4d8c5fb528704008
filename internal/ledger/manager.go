package ledger

import (
	"context"
	"time"

	"github.com/klingon-exchange/tokenledger/internal/store"
)

// Config wires a TokenManager's collaborators. Store is required;
// everything else falls back to a default or nil ("not configured").
type Config struct {
	Store             store.Store
	Table             string
	ArchiveTable      string
	Log               Logger
	Errors            ErrorCollector
	Validator         Validator
	Clock             Clock
	PaymentGateway    PaymentGateway
	ModerationService ModerationService

	// MinExpiresAfter/MaxExpiresAfter bound HOLD's expiresAfter window
	// (§4.5); MaxTotalExtend bounds ExtendExpiry's cumulative window
	// (§4.6). Zero takes the package default for each.
	MinExpiresAfter time.Duration
	MaxExpiresAfter time.Duration
	MaxTotalExtend  time.Duration
}

// TokenManager is the Token Ledger Core: it owns no state of its own
// beyond the collaborator handles below. Balances are always recomputed
// from the event log (internal/ledger/balance.go); nothing here is a
// running total.
type TokenManager struct {
	store        store.Store
	table        string
	archiveTable string

	log       Logger
	errs      ErrorCollector
	validator Validator
	clock     Clock

	gateway    PaymentGateway
	moderation ModerationService

	minExpiresAfterSeconds int64
	maxExpiresAfterSeconds int64
	maxTotalExtendSeconds  int64
}

// New builds a TokenManager from cfg, applying defaults for the
// collaborators spec §6 treats as optional/defaultable.
func New(cfg Config) *TokenManager {
	if cfg.Store == nil {
		panic("ledger: Config.Store is required")
	}
	table := cfg.Table
	if table == "" {
		table = TableTokenRegistry
	}
	archive := cfg.ArchiveTable
	if archive == "" {
		archive = TableTokenRegistryArchive
	}
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	validator := cfg.Validator
	if validator == nil {
		validator = NewFieldValidator()
	}
	errs := cfg.Errors
	if errs == nil {
		errs = noopErrorCollector{log: cfg.Log}
	}

	minExpiresAfter := int64(cfg.MinExpiresAfter / time.Second)
	if minExpiresAfter <= 0 {
		minExpiresAfter = defaultMinExpiresAfterSeconds
	}
	maxExpiresAfter := int64(cfg.MaxExpiresAfter / time.Second)
	if maxExpiresAfter <= 0 {
		maxExpiresAfter = defaultMaxExpiresAfterSeconds
	}
	maxTotalExtend := int64(cfg.MaxTotalExtend / time.Second)
	if maxTotalExtend <= 0 {
		maxTotalExtend = defaultMaxTotalSeconds
	}

	return &TokenManager{
		store:        cfg.Store,
		table:        table,
		archiveTable: archive,
		log:          cfg.Log,
		errs:         errs,
		validator:    validator,
		clock:        clock,
		gateway:      cfg.PaymentGateway,
		moderation:   cfg.ModerationService,

		minExpiresAfterSeconds: minExpiresAfter,
		maxExpiresAfterSeconds: maxExpiresAfter,
		maxTotalExtendSeconds:  maxTotalExtend,
	}
}

// validateFields runs fields through the Validator collaborator and
// normalizes any failure into a stable public error, per spec §6.
func (m *TokenManager) validateFields(fields map[string]FieldSpec) (map[string]interface{}, error) {
	out, err := m.validator.Validate(fields)
	if err != nil {
		return nil, normalizeValidatorMessage(err.Error())
	}
	return out, nil
}

// checkModeration consults the optional ModerationService before a
// spending writer proceeds. A nil service is logged as not configured
// and a service failure is recorded; neither is fatal. A true block
// result denies the write and best-effort notifies the payment gateway,
// per spec §9 ("core calling optional grantAccess/denyAccess").
func (m *TokenManager) checkModeration(ctx context.Context, userID string) error {
	if m.moderation == nil {
		m.writeLog("moderation_not_configured", map[string]interface{}{"userId": userID})
		return nil
	}
	blocked, err := m.moderation.IsBlocked(ctx, userID)
	if err != nil {
		m.errs.AddError("moderation service unavailable", map[string]interface{}{"userId": userID, "err": err.Error()})
		return nil
	}
	if !blocked {
		return nil
	}
	m.denyAccess(ctx, userID, "blocked by moderation service")
	return newErr(CodeUserBlocked, "user is blocked", nil)
}

// grantAccess best-effort notifies the payment gateway of a successful
// credit. Failures are recorded, never propagated to the writer's caller.
func (m *TokenManager) grantAccess(ctx context.Context, userID string, amount int64) {
	if m.gateway == nil {
		m.writeLog("payment_gateway_not_configured", map[string]interface{}{"userId": userID, "op": "grantAccess"})
		return
	}
	if err := m.gateway.GrantAccess(ctx, userID, amount); err != nil {
		m.errs.AddError("grantAccess failed", map[string]interface{}{"userId": userID, "err": err.Error()})
	}
}

// denyAccess best-effort notifies the payment gateway of a denial.
// Failures are recorded, never propagated to the writer's caller.
func (m *TokenManager) denyAccess(ctx context.Context, userID, reason string) {
	if m.gateway == nil {
		m.writeLog("payment_gateway_not_configured", map[string]interface{}{"userId": userID, "op": "denyAccess"})
		return
	}
	if err := m.gateway.DenyAccess(ctx, userID, reason); err != nil {
		m.errs.AddError("denyAccess failed", map[string]interface{}{"userId": userID, "err": err.Error()})
	}
}

func (m *TokenManager) writeLog(action string, data map[string]interface{}) {
	if m.log == nil {
		return
	}
	m.log.WriteLog(LogEvent{Flag: LogFlag, Action: action, Data: data})
}
