package apperror

import (
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the coarse failure families callers
// branch on.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindAuthFailure   Kind = "AUTH_FAILURE"
	KindStateConflict Kind = "STATE_CONFLICT"
	KindBusinessRule  Kind = "BUSINESS_RULE"
	KindAuthorization Kind = "AUTHORIZATION"
	KindRateLimit     Kind = "RATE_LIMIT"
	KindSystem        Kind = "SYSTEM"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	ErrKind    Kind   `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Kind returns the failure family this error belongs to.
func (e *AppError) Kind() Kind {
	return e.ErrKind
}

// Is lets errors.Is match two AppErrors by code, so sentinel-style
// comparisons work across wrapping.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int, kind Kind) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		ErrKind:    kind,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, kind Kind, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		ErrKind:    kind,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest, KindValidation)
}

func ErrInvalidQuorum() *AppError {
	return New("VAL_002", "Required approvers must be exactly 3 distinct identifiers", http.StatusBadRequest, KindValidation)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_003", "Amount must be positive", http.StatusBadRequest, KindValidation)
}

// ---- OTP challenges (OTP) ----

func ErrOTPInvalidCode() *AppError {
	return New("OTP_001", "Invalid verification code", http.StatusUnauthorized, KindAuthFailure)
}

func ErrOTPExpired() *AppError {
	return New("OTP_002", "Verification code has expired", http.StatusUnauthorized, KindAuthFailure)
}

func ErrOTPAttemptsExceeded() *AppError {
	return New("OTP_003", "Maximum verification attempts exceeded", http.StatusUnauthorized, KindAuthFailure)
}

func ErrOTPConsumed() *AppError {
	return New("OTP_004", "Verification code has already been used", http.StatusUnauthorized, KindAuthFailure)
}

func ErrOTPNotFound() *AppError {
	return New("OTP_005", "Verification challenge not found", http.StatusNotFound, KindAuthFailure)
}

func ErrOTPPurposeMismatch() *AppError {
	return New("OTP_006", "Verification code was issued for a different purpose", http.StatusUnauthorized, KindAuthFailure)
}

func ErrOTPRequired() *AppError {
	return New("OTP_007", "A verification code is required for this operation", http.StatusUnauthorized, KindAuthFailure)
}

// ---- Approval requests (APR) ----

func ErrUnknownApprover() *AppError {
	return New("APR_001", "Identifier is not a listed approver for this request", http.StatusForbidden, KindAuthFailure)
}

func ErrAlreadyApproved() *AppError {
	return New("APR_002", "Approval request has already been approved", http.StatusConflict, KindStateConflict)
}

func ErrAlreadyTerminal() *AppError {
	return New("APR_003", "Approval request is in a terminal state", http.StatusConflict, KindStateConflict)
}

func ErrAlreadyExpired() *AppError {
	return New("APR_004", "Approval request has expired", http.StatusConflict, KindStateConflict)
}

func ErrApprovalNotFound() *AppError {
	return New("APR_005", "Approval request not found", http.StatusNotFound, KindStateConflict)
}

func ErrNoExecutor(opType string) *AppError {
	return New("APR_006", fmt.Sprintf("No executor registered for operation type %s", opType), http.StatusUnprocessableEntity, KindSystem)
}

// ---- Wallet ledger (LED) ----

func ErrVersionConflict() *AppError {
	return New("LED_001", "Wallet was modified concurrently, retry with the current version", http.StatusConflict, KindStateConflict)
}

func ErrInsufficientBalance() *AppError {
	return New("LED_002", "Insufficient balance", http.StatusUnprocessableEntity, KindBusinessRule)
}

func ErrWalletNotActive() *AppError {
	return New("LED_003", "Wallet is not active", http.StatusConflict, KindStateConflict)
}

func ErrWalletNotFound() *AppError {
	return New("LED_004", "Wallet not found", http.StatusNotFound, KindBusinessRule)
}

func ErrTreasuryDirectMutation() *AppError {
	return New("LED_005", "Treasury wallets can only be mutated through an approved request", http.StatusForbidden, KindStateConflict)
}

func ErrIllegalStateTransition(from, to string) *AppError {
	return New("LED_006", fmt.Sprintf("Illegal wallet status transition %s -> %s", from, to), http.StatusConflict, KindBusinessRule)
}

// ---- Whitelist (WLT) ----

func ErrWhitelistNotFound() *AppError {
	return New("WLT_001", "Whitelist entry not found", http.StatusNotFound, KindBusinessRule)
}

func ErrAddressNotWhitelisted() *AppError {
	return New("WLT_002", "Destination address is not a verified whitelist entry", http.StatusForbidden, KindBusinessRule)
}

func ErrNotYetEligible() *AppError {
	return New("WLT_003", "Whitelist entry is still in its cooldown period", http.StatusForbidden, KindBusinessRule)
}

func ErrDuplicateWhitelistEntry() *AppError {
	return New("WLT_004", "Address is already whitelisted for this wallet", http.StatusConflict, KindBusinessRule)
}

func ErrWhitelistEntryTerminal() *AppError {
	return New("WLT_005", "Whitelist entry has been removed", http.StatusConflict, KindStateConflict)
}

func ErrWhitelistEntryNotPending() *AppError {
	return New("WLT_006", "Whitelist entry is not awaiting verification", http.StatusConflict, KindStateConflict)
}

// ---- Admin & authorization (ADM) ----

func ErrAdminRequired() *AppError {
	return New("ADM_001", "Operation requires administrator privileges", http.StatusForbidden, KindAuthorization)
}

func ErrInvalidToken() *AppError {
	return New("ADM_002", "Invalid or expired token", http.StatusUnauthorized, KindAuthorization)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests, KindRateLimit)
}

// ---- System & Infrastructure (SYS) ----

func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, KindSystem, err)
}

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_002", "Internal database error", http.StatusInternalServerError, KindSystem, err)
}
