package governance

import "fmt"

// Code tags a governance.Error with a stable, documented identifier,
// following the kernel lineage's errorir idiom of a code plus a message
// rather than ad hoc fmt.Errorf strings callers have to pattern-match.
type Code string

const (
	CodeClearanceViolation            Code = "CLEARANCE_VIOLATION"
	CodeEnforcementRejected           Code = "ENFORCEMENT_REJECTED"
	CodeAlreadyExecuted               Code = "ALREADY_EXECUTED"
	CodeNotFound                      Code = "NOT_FOUND"
	CodeAlreadyDecided                Code = "ALREADY_DECIDED"
	CodeUnauthorized                  Code = "UNAUTHORIZED"
	CodeUnregistered                  Code = "UNREGISTERED"
	CodeDuplicateDecision             Code = "DUPLICATE_DECISION"
	CodeInvalidTransition             Code = "INVALID_TRANSITION"
	CodeExecutionFailed               Code = "EXECUTION_FAILED"
	CodeNoApproversRegistered         Code = "NO_APPROVERS_REGISTERED"
	CodeInsufficientApproverClearance Code = "INSUFFICIENT_APPROVER_CLEARANCE"
	CodeUnregisteredActionKind        Code = "UNREGISTERED_ACTION_KIND"
)

// sentinels lets callers use errors.Is(err, governance.ErrClearanceViolation)
// instead of type-asserting *Error and comparing Code by hand. One sentinel
// per Code, wrapped by every *Error carrying that code via Unwrap.
var sentinels = map[Code]error{
	CodeClearanceViolation:            fmt.Errorf("clearance violation"),
	CodeEnforcementRejected:           fmt.Errorf("enforcement rejected"),
	CodeAlreadyExecuted:               fmt.Errorf("action already executed"),
	CodeNotFound:                      fmt.Errorf("not found"),
	CodeAlreadyDecided:                fmt.Errorf("approval already decided"),
	CodeUnauthorized:                  fmt.Errorf("unauthorized"),
	CodeUnregistered:                  fmt.Errorf("unregistered"),
	CodeDuplicateDecision:             fmt.Errorf("duplicate decision"),
	CodeInvalidTransition:             fmt.Errorf("invalid state transition"),
	CodeExecutionFailed:               fmt.Errorf("execution failed"),
	CodeNoApproversRegistered:         fmt.Errorf("no approvers registered"),
	CodeInsufficientApproverClearance: fmt.Errorf("insufficient approver clearance"),
	CodeUnregisteredActionKind:        fmt.Errorf("unregistered action kind"),
}

// ErrClearanceViolation and its siblings are the errors.Is targets for
// each Code; e.g. errors.Is(err, governance.ErrClearanceViolation) holds
// for any *Error built with CodeClearanceViolation, regardless of message.
var (
	ErrClearanceViolation            = sentinels[CodeClearanceViolation]
	ErrEnforcementRejected           = sentinels[CodeEnforcementRejected]
	ErrAlreadyExecuted               = sentinels[CodeAlreadyExecuted]
	ErrNotFound                      = sentinels[CodeNotFound]
	ErrAlreadyDecided                = sentinels[CodeAlreadyDecided]
	ErrUnauthorized                  = sentinels[CodeUnauthorized]
	ErrUnregistered                  = sentinels[CodeUnregistered]
	ErrDuplicateDecision             = sentinels[CodeDuplicateDecision]
	ErrInvalidTransition             = sentinels[CodeInvalidTransition]
	ErrExecutionFailed               = sentinels[CodeExecutionFailed]
	ErrNoApproversRegistered         = sentinels[CodeNoApproversRegistered]
	ErrInsufficientApproverClearance = sentinels[CodeInsufficientApproverClearance]
	ErrUnregisteredActionKind        = sentinels[CodeUnregisteredActionKind]
)

// Error is the kernel's single tagged error type. AuditEntry is populated
// whenever the failure already produced an audit record, so a caller
// doesn't have to re-query the trail to find it. Unwrap exposes the
// Code's sentinel so errors.Is/errors.As work against it.
type Error struct {
	Code       Code
	Message    string
	AuditEntry *AuditEntry
}

// NewError builds an Error with no associated audit entry.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// NewErrorWithEntry builds an Error carrying the audit entry the failed
// operation already appended.
func NewErrorWithEntry(code Code, msg string, entry *AuditEntry) *Error {
	return &Error{Code: code, Message: msg, AuditEntry: entry}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the Code's sentinel error, if one is registered.
func (e *Error) Unwrap() error {
	return sentinels[e.Code]
}
