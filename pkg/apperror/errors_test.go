package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("LED_002", "Insufficient balance", http.StatusUnprocessableEntity, KindBusinessRule),
			expected: "[LED_002] Insufficient balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_002", "DB error", http.StatusInternalServerError, KindSystem, fmt.Errorf("connection refused")),
			expected: "[SYS_002] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, KindSystem, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := Validation("test")
	assert.Nil(t, appErr.Unwrap())
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	assert.True(t, errors.Is(ErrVersionConflict(), ErrVersionConflict()))
	assert.False(t, errors.Is(ErrVersionConflict(), ErrInsufficientBalance()))

	wrapped := fmt.Errorf("ledger: %w", ErrOTPExpired())
	assert.True(t, errors.Is(wrapped, ErrOTPExpired()))
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
		kind       Kind
	}{
		{"InvalidQuorum", ErrInvalidQuorum(), "VAL_002", 400, KindValidation},
		{"OTPInvalidCode", ErrOTPInvalidCode(), "OTP_001", 401, KindAuthFailure},
		{"OTPExpired", ErrOTPExpired(), "OTP_002", 401, KindAuthFailure},
		{"OTPAttemptsExceeded", ErrOTPAttemptsExceeded(), "OTP_003", 401, KindAuthFailure},
		{"UnknownApprover", ErrUnknownApprover(), "APR_001", 403, KindAuthFailure},
		{"AlreadyApproved", ErrAlreadyApproved(), "APR_002", 409, KindStateConflict},
		{"AlreadyTerminal", ErrAlreadyTerminal(), "APR_003", 409, KindStateConflict},
		{"VersionConflict", ErrVersionConflict(), "LED_001", 409, KindStateConflict},
		{"InsufficientBalance", ErrInsufficientBalance(), "LED_002", 422, KindBusinessRule},
		{"WalletNotActive", ErrWalletNotActive(), "LED_003", 409, KindStateConflict},
		{"IllegalTransition", ErrIllegalStateTransition("ACTIVE", "ACTIVE"), "LED_006", 409, KindBusinessRule},
		{"AddressNotWhitelisted", ErrAddressNotWhitelisted(), "WLT_002", 403, KindBusinessRule},
		{"NotYetEligible", ErrNotYetEligible(), "WLT_003", 403, KindBusinessRule},
		{"AdminRequired", ErrAdminRequired(), "ADM_001", 403, KindAuthorization},
		{"RateLimit", ErrRateLimitExceeded(), "RATE_001", 429, KindRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
			assert.Equal(t, tt.kind, tt.err.Kind())
		})
	}
}
