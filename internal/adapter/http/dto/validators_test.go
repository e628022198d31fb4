package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := AdjustBalanceRequest{
		Amount: "  -250.00  ",
		Reason: " ledger drift ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "-250.00", req.Amount)
	assert.Equal(t, "ledger drift", req.Reason)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	reason := "customer <script>alert('x')</script> request"
	req := RejectRequest{
		Approver: "alice",
		Reason:   reason,
	}
	SanitizeStruct(&req)

	assert.Contains(t, req.Reason, "&lt;script&gt;")
	assert.NotContains(t, req.Reason, "<script>")
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

func TestSanitizeStruct_WhitelistAddRequest(t *testing.T) {
	req := WhitelistAddRequest{
		DestinationAddress: "  GB29NWBK60161331926819  ",
		AddressType:        " BANK_ACCOUNT ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "GB29NWBK60161331926819", req.DestinationAddress)
	assert.Equal(t, "BANK_ACCOUNT", req.AddressType)
}

// --- Custom Validator tests ---

func TestSafeID_Valid(t *testing.T) {
	cases := []string{
		"GB29NWBK60161331926819",
		"0x4bbeEB066eD09B7AEd07bF39EEe0460DFa261520",
		"acct_002",
		"a.b.c",
		"ABC-def_GHI.123",
	}
	for _, tc := range cases {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
}

func TestSafeID_Invalid(t *testing.T) {
	cases := []string{
		"acct 001",    // space
		"acct<001>",   // angle brackets
		"acct;DROP",   // semicolon
		"",            // empty
		"hello world", // space
		"acct\n001",   // newline
	}
	for _, tc := range cases {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}
