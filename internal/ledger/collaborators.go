package ledger

import "context"

// LogFlag tags every structured log record the core emits, per spec §6.
const LogFlag = "TOKENS"

// LogEvent is the structured payload passed to Logger.WriteLog.
type LogEvent struct {
	Flag    string
	Action  string
	Data    map[string]interface{}
	Message string
}

// Logger is the logging collaborator consumed per spec §6. The one
// concrete adapter (internal/ledgerlog) wraps pkg/logging.
type Logger interface {
	Debug(msg string)
	WriteLog(evt LogEvent)
}

// ErrorCollector records recoverable errors without aborting the caller,
// per spec §6 and §7 ("side-effect failures ... caught and recorded").
type ErrorCollector interface {
	AddError(message string, data map[string]interface{})
}

// FieldSpec describes one field's shape for the Validator collaborator.
type FieldSpec struct {
	Value    interface{}
	Type     string // "string", "int", "bool", ...
	Required bool
	Default  interface{}
}

// Validator sanitizes and validates a bag of named fields, per spec §6.
// Implementations return a plain error whose message is one of the known
// validator messages normalizeValidatorMessage understands, or any other
// message for payload shapes the core does not special-case.
type Validator interface {
	Validate(fields map[string]FieldSpec) (map[string]interface{}, error)
}

// Clock is the datetime collaborator consumed per spec §6.
type Clock interface {
	Now() string
	ParseToUnix(s string) (int64, bool)
	FromUnix(seconds int64) string
	IsPast(s string) bool
}

// PaymentGateway models the optional payment-service side effects spec §9
// describes (grantAccess/denyAccess/...). A nil PaymentGateway is treated
// as "not configured": the writer logs a warning and proceeds.
type PaymentGateway interface {
	GrantAccess(ctx context.Context, userID string, amount int64) error
	DenyAccess(ctx context.Context, userID string, reason string) error
}

// ModerationService models the optional block/user-moderation collaborator
// named in spec §1. A nil ModerationService is treated as "not configured".
type ModerationService interface {
	IsBlocked(ctx context.Context, userID string) (bool, error)
}

// noopErrorCollector is used when the caller does not supply one.
type noopErrorCollector struct{ log Logger }

func (n noopErrorCollector) AddError(message string, data map[string]interface{}) {
	if n.log != nil {
		n.log.WriteLog(LogEvent{Flag: LogFlag, Action: "error_collector_fallback", Data: data, Message: message})
	}
}
