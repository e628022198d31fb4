package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ApprovalRequests counts approval requests by terminal outcome.
	ApprovalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Subsystem: "approvals",
		Name:      "requests_total",
		Help:      "Approval requests by outcome (initiated, approved, rejected, expired).",
	}, []string{"outcome"})

	// ExecutorInvocations counts quorum executor callbacks by operation type.
	ExecutorInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Subsystem: "approvals",
		Name:      "executor_invocations_total",
		Help:      "Executor callbacks fired after quorum, by operation type and result.",
	}, []string{"operation", "result"})

	// OTPValidations counts OTP verification attempts by result.
	OTPValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Subsystem: "otp",
		Name:      "validations_total",
		Help:      "OTP verification attempts by result (ok, invalid, expired, exhausted, consumed).",
	}, []string{"result"})

	// OTPIssued counts issued OTP challenges by purpose.
	OTPIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Subsystem: "otp",
		Name:      "issued_total",
		Help:      "OTP challenges issued, by purpose.",
	}, []string{"purpose"})

	// LedgerMutations counts wallet balance mutations by type and result.
	LedgerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Subsystem: "ledger",
		Name:      "mutations_total",
		Help:      "Wallet balance mutations by type (debit, credit, adjust) and result.",
	}, []string{"type", "result"})

	// VersionConflicts counts optimistic concurrency losses.
	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treasury",
		Subsystem: "ledger",
		Name:      "version_conflicts_total",
		Help:      "Balance or status writes lost to a concurrent writer.",
	})

	// SweepTransitions counts rows touched by background sweeps.
	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Subsystem: "sweeps",
		Name:      "transitions_total",
		Help:      "State transitions applied by background sweeps, by sweep name.",
	}, []string{"sweep"})
)
