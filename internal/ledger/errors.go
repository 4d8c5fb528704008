package ledger

import "errors"

// Code is one of the stable, exposed error codes from spec §6.
type Code string

const (
	CodeInvalidTransactionPayload Code = "INVALID_TRANSACTION_PAYLOAD"
	CodeInvalidTransactionType    Code = "INVALID_TRANSACTION_TYPE"
	CodeInvalidAmount             Code = "INVALID_AMOUNT"
	CodeInvalidTokenType          Code = "INVALID_TOKEN_TYPE"
	CodeMissingBeneficiaryID      Code = "MISSING_BENEFICIARY_ID"
	CodeInvalidTimeout            Code = "INVALID_TIMEOUT"
	CodeInsufficientTokens        Code = "INSUFFICIENT_TOKENS"
	CodeInsufficientPaidTokens    Code = "INSUFFICIENT_PAID_TOKENS"
	CodeMissingIdentifier         Code = "MISSING_IDENTIFIER"
	CodeTransactionNotFound       Code = "TRANSACTION_NOT_FOUND"
	CodeNoHeldTokens              Code = "NO_HELD_TOKENS"
	CodeNoOpenHolds               Code = "NO_OPEN_HOLDS"
	CodeHoldMissingState          Code = "HOLD_MISSING_STATE"
	CodeDuplicateHoldRefID        Code = "DUPLICATE_HOLD_REFID"
	CodeAlreadyCaptured           Code = "ALREADY_CAPTURED"
	CodeAlreadyReversed           Code = "ALREADY_REVERSED"
	CodeAlreadyProcessed          Code = "ALREADY_PROCESSED"
	CodeTimeoutExceeded           Code = "TIMEOUT_EXCEEDED"
	CodeUserBlocked               Code = "USER_BLOCKED"
)

// Error is the stable public error type the ledger returns.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr builds an *Error, wrapping cause if present.
func newErr(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf extracts the Code from err, if it is (or wraps) a *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// normalizeValidatorMessage turns a small set of known validator messages
// into stable public errors, per spec §6.
func normalizeValidatorMessage(msg string) *Error {
	switch msg {
	case "userId is required":
		return newErr(CodeInvalidTransactionPayload, "Invalid transaction payload", nil)
	case "amount is required":
		return newErr(CodeInvalidAmount, "amount must be an integer", nil)
	case "beneficiaryId is required":
		return newErr(CodeMissingBeneficiaryID, "beneficiaryId is required", nil)
	default:
		return newErr(CodeInvalidTransactionPayload, "Invalid transaction payload", errors.New(msg))
	}
}
