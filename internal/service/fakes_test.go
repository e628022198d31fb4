package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"treasury-core/config"
	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// noopTx satisfies pgx.Tx for the in-memory repos, which apply writes
// immediately rather than at commit.
type noopTx struct{}

func (noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(ctx context.Context) error          { return nil }
func (noopTx) Rollback(ctx context.Context) error        { return nil }
func (noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (noopTx) Conn() *pgx.Conn                                               { return nil }

type inMemoryTransactor struct{}

func (inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// testClock is an adjustable clock injected through the services' nowFn.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// plainHasher keeps flow tests fast; the real Argon2 implementation has its
// own tests.
type plainHasher struct{}

func (plainHasher) Hash(code string) (string, error) { return "h|" + code, nil }
func (plainHasher) Verify(code string, hash string) (bool, error) {
	return hash == "h|"+code, nil
}

// fakeDeliverer captures delivered codes per target. Delivery runs on a
// goroutine, so reads poll.
type fakeDeliverer struct {
	mu    sync.Mutex
	codes map[string]string
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{codes: make(map[string]string)}
}

func (d *fakeDeliverer) Deliver(ctx context.Context, identifier string, purpose domain.OTPPurpose, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes[identifier] = code
	return nil
}

func (d *fakeDeliverer) reset(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.codes, target)
}

func (d *fakeDeliverer) code(t *testing.T, target string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		code, ok := d.codes[target]
		d.mu.Unlock()
		if ok {
			return code
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no code delivered for %s", target)
	return ""
}

// fakeRateLimiter counts hits per key. Setting err simulates a store outage.
type fakeRateLimiter struct {
	mu   sync.Mutex
	hits map[string]int64
	err  error
}

func newFakeRateLimiter() *fakeRateLimiter {
	return &fakeRateLimiter{hits: make(map[string]int64)}
}

func (l *fakeRateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.hits[key]++
	remaining := limit - l.hits[key]
	if remaining < 0 {
		remaining = 0
	}
	return &ports.RateLimitResult{
		Allowed:   l.hits[key] <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(window).Unix(),
	}, nil
}

// --- in-memory repositories ---

type fakeWalletRepo struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*domain.Wallet
	// forceConflicts makes the next N balance writes fail with a version
	// conflict, for exercising the retry path.
	forceConflicts int
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func copyWallet(w *domain.Wallet) *domain.Wallet {
	cp := *w
	return &cp
}

func (r *fakeWalletRepo) Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[wallet.ID] = copyWallet(wallet)
	return nil
}

func (r *fakeWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	return copyWallet(w), nil
}

func (r *fakeWalletRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeWalletRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Wallet
	for _, w := range r.wallets {
		if w.OwnerID == ownerID {
			out = append(out, *copyWallet(w))
		}
	}
	return out, nil
}

func (r *fakeWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceConflicts > 0 {
		r.forceConflicts--
		return apperror.ErrVersionConflict()
	}
	w, ok := r.wallets[walletID]
	if !ok || w.Version != expectedVersion {
		return apperror.ErrVersionConflict()
	}
	balance, err := decimal.NewFromString(newBalance)
	if err != nil {
		return err
	}
	w.Balance = balance
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeWalletRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, status domain.WalletStatus, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok || w.Version != expectedVersion {
		return apperror.ErrVersionConflict()
	}
	w.Status = status
	w.Version++
	return nil
}

// set overwrites stored wallet fields directly, bypassing CAS. Test seeding
// only.
func (r *fakeWalletRepo) set(w *domain.Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.ID] = copyWallet(w)
}

type fakeOTPRepo struct {
	mu         sync.Mutex
	challenges map[uuid.UUID]*domain.OTPChallenge
}

func newFakeOTPRepo() *fakeOTPRepo {
	return &fakeOTPRepo{challenges: make(map[uuid.UUID]*domain.OTPChallenge)}
}

func copyChallenge(c *domain.OTPChallenge) *domain.OTPChallenge {
	cp := *c
	return &cp
}

func (r *fakeOTPRepo) Create(ctx context.Context, challenge *domain.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenges[challenge.ID] = copyChallenge(challenge)
	return nil
}

func (r *fakeOTPRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.OTPChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return nil, nil
	}
	return copyChallenge(c), nil
}

// GetActiveByTarget filters consumed challenges only; expiry is judged by
// the service clock so tests can drive it.
func (r *fakeOTPRepo) GetActiveByTarget(ctx context.Context, purpose domain.OTPPurpose, target string) (*domain.OTPChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.OTPChallenge
	for _, c := range r.challenges {
		if c.Purpose != purpose || c.TargetIdentifier != target || c.Consumed {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return nil, nil
	}
	return copyChallenge(newest), nil
}

func (r *fakeOTPRepo) IncrementAttempts(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok || c.Attempts >= c.MaxAttempts {
		return false, nil
	}
	c.Attempts++
	return true, nil
}

func (r *fakeOTPRepo) Consume(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok || c.Consumed {
		return false, nil
	}
	c.Consumed = true
	return true, nil
}

func (r *fakeOTPRepo) InvalidatePrior(ctx context.Context, purpose domain.OTPPurpose, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.challenges {
		if c.Purpose == purpose && c.TargetIdentifier == target {
			c.Consumed = true
		}
	}
	return nil
}

func (r *fakeOTPRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.challenges {
		if c.Consumed || !now.Before(c.ExpiresAt) {
			delete(r.challenges, id)
			n++
		}
	}
	return n, nil
}

type fakeApprovalRepo struct {
	mu   sync.Mutex
	reqs map[uuid.UUID]*domain.ApprovalRequest
}

func newFakeApprovalRepo() *fakeApprovalRepo {
	return &fakeApprovalRepo{reqs: make(map[uuid.UUID]*domain.ApprovalRequest)}
}

func copyApproval(r *domain.ApprovalRequest) *domain.ApprovalRequest {
	cp := *r
	cp.RequiredApprovers = append([]string(nil), r.RequiredApprovers...)
	cp.CollectedApprovals = append([]string(nil), r.CollectedApprovals...)
	return &cp
}

func (r *fakeApprovalRepo) Create(ctx context.Context, req *domain.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs[req.ID] = copyApproval(req)
	return nil
}

func (r *fakeApprovalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return nil, nil
	}
	return copyApproval(req), nil
}

func (r *fakeApprovalRepo) ListPending(ctx context.Context) ([]domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ApprovalRequest
	for _, req := range r.reqs {
		if req.Status == domain.ApprovalStatusPending {
			out = append(out, *copyApproval(req))
		}
	}
	return out, nil
}

func (r *fakeApprovalRepo) AddApproval(ctx context.Context, id uuid.UUID, approver string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok || req.Status != domain.ApprovalStatusPending {
		return false, nil
	}
	for _, a := range req.CollectedApprovals {
		if a == approver {
			return false, nil
		}
	}
	req.CollectedApprovals = append(req.CollectedApprovals, approver)
	return true, nil
}

func (r *fakeApprovalRepo) MarkApproved(ctx context.Context, tx pgx.Tx, id uuid.UUID, quorum int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok || req.Status != domain.ApprovalStatusPending || len(req.CollectedApprovals) < quorum {
		return false, nil
	}
	req.Status = domain.ApprovalStatusApproved
	return true, nil
}

func (r *fakeApprovalRepo) MarkRejected(ctx context.Context, id uuid.UUID, rejectedBy, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok || req.Status != domain.ApprovalStatusPending {
		return false, nil
	}
	req.Status = domain.ApprovalStatusRejected
	req.RejectedBy = &rejectedBy
	req.RejectionReason = &reason
	return true, nil
}

func (r *fakeApprovalRepo) ExpireStale(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, req := range r.reqs {
		if req.Status == domain.ApprovalStatusPending && !now.Before(req.ExpiresAt) {
			req.Status = domain.ApprovalStatusExpired
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeWhitelistRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*domain.WhitelistEntry
}

func newFakeWhitelistRepo() *fakeWhitelistRepo {
	return &fakeWhitelistRepo{entries: make(map[uuid.UUID]*domain.WhitelistEntry)}
}

func copyEntry(e *domain.WhitelistEntry) *domain.WhitelistEntry {
	cp := *e
	return &cp
}

func (r *fakeWhitelistRepo) Create(ctx context.Context, entry *domain.WhitelistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (r *fakeWhitelistRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WhitelistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	return copyEntry(e), nil
}

func (r *fakeWhitelistRepo) GetByWalletAndAddress(ctx context.Context, walletID uuid.UUID, address string) (*domain.WhitelistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.WhitelistEntry
	for _, e := range r.entries {
		if e.WalletID != walletID || e.DestinationAddress != address || e.Status == domain.WhitelistStatusRemoved {
			continue
		}
		if newest == nil || e.CreatedAt.After(newest.CreatedAt) {
			newest = e
		}
	}
	if newest == nil {
		return nil, nil
	}
	return copyEntry(newest), nil
}

func (r *fakeWhitelistRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.WhitelistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WhitelistEntry
	for _, e := range r.entries {
		if e.WalletID == walletID {
			out = append(out, *copyEntry(e))
		}
	}
	return out, nil
}

func (r *fakeWhitelistRepo) MarkVerified(ctx context.Context, id uuid.UUID, verifiedAt, eligibleAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Status != domain.WhitelistStatusPending {
		return false, nil
	}
	e.Status = domain.WhitelistStatusVerified
	e.VerifiedAt = &verifiedAt
	e.EligibleAt = &eligibleAt
	return true, nil
}

func (r *fakeWhitelistRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.WhitelistStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	return true, nil
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) Append(ctx context.Context, event *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeAuditRepo) AppendTx(ctx context.Context, tx pgx.Tx, event *domain.AuditEvent) error {
	return r.Append(ctx, event)
}

func (r *fakeAuditRepo) Query(ctx context.Context, params ports.AuditQueryParams) ([]domain.AuditEvent, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.AuditEvent
	for _, e := range r.events {
		if params.EntityRef != nil && e.EntityRef != *params.EntityRef {
			continue
		}
		if params.ActorID != nil && e.ActorID != *params.ActorID {
			continue
		}
		if params.Action != nil && e.Action != *params.Action {
			continue
		}
		if params.From != nil && e.Timestamp.Before(*params.From) {
			continue
		}
		if params.To != nil && e.Timestamp.After(*params.To) {
			continue
		}
		matched = append(matched, e)
	}
	return matched, int64(len(matched)), nil
}

func (r *fakeAuditRepo) countByAction(action domain.AuditAction) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

// --- fixture wiring ---

type fixture struct {
	clock     *testClock
	wallets   *fakeWalletRepo
	otps      *fakeOTPRepo
	approvals *fakeApprovalRepo
	whitelist *fakeWhitelistRepo
	audits    *fakeAuditRepo
	deliverer *fakeDeliverer
	limiter   *fakeRateLimiter

	otpSvc       *OTPAuthorityService
	auditSvc     *AuditTrailService
	approvalSvc  *ApprovalCoordinatorService
	ledgerSvc    *WalletLedgerService
	whitelistSvc *WhitelistRegistryService
	adminSvc     *AdminOverrideService
	withdrawSvc  *WithdrawalFlowService
}

const (
	testOTPTTL       = 10 * time.Minute
	testMaxAttempts  = 3
	testIssueLimit   = 5
	testApprovalTTL  = time.Hour
	testCooldown     = 24 * time.Hour
	testAdjThreshold = "1000"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:     newTestClock(),
		wallets:   newFakeWalletRepo(),
		otps:      newFakeOTPRepo(),
		approvals: newFakeApprovalRepo(),
		whitelist: newFakeWhitelistRepo(),
		audits:    newFakeAuditRepo(),
		deliverer: newFakeDeliverer(),
		limiter:   newFakeRateLimiter(),
	}

	log := zerolog.Nop()
	transactor := inMemoryTransactor{}

	f.otpSvc = NewOTPAuthorityService(f.otps, plainHasher{}, f.deliverer, f.limiter, config.OTPConfig{
		TTL:              testOTPTTL,
		MaxAttempts:      testMaxAttempts,
		IssueLimit:       testIssueLimit,
		IssueLimitWindow: time.Hour,
	}, log)
	f.otpSvc.nowFn = f.clock.Now

	f.auditSvc = NewAuditTrailService(f.audits, log)

	f.approvalSvc = NewApprovalCoordinatorService(f.approvals, f.otpSvc, f.auditSvc, transactor, config.ApprovalConfig{
		TTL: testApprovalTTL,
	}, log)
	f.approvalSvc.nowFn = f.clock.Now

	f.ledgerSvc = NewWalletLedgerService(f.wallets, f.auditSvc, transactor, log)
	f.ledgerSvc.nowFn = f.clock.Now

	f.whitelistSvc = NewWhitelistRegistryService(f.whitelist, f.wallets, f.otpSvc, f.auditSvc, config.WhitelistConfig{
		Cooldown: testCooldown,
	}, log)
	f.whitelistSvc.nowFn = f.clock.Now

	adminSvc, err := NewAdminOverrideService(f.ledgerSvc, f.approvalSvc, f.otpSvc, f.wallets, f.auditSvc, transactor, config.AdminConfig{
		DirectAdjustThreshold: testAdjThreshold,
	}, log)
	require.NoError(t, err)
	f.adminSvc = adminSvc
	f.adminSvc.nowFn = f.clock.Now

	f.withdrawSvc = NewWithdrawalFlowService(f.ledgerSvc, f.whitelistSvc, f.otpSvc, f.auditSvc, log)
	f.withdrawSvc.nowFn = f.clock.Now

	f.ledgerSvc.RegisterTreasuryExecutors(f.approvalSvc)

	return f
}

// createWallet provisions a wallet through the ledger service.
func (f *fixture) createWallet(t *testing.T, walletType domain.WalletType, email string) *domain.Wallet {
	t.Helper()
	wallet, err := f.ledgerSvc.CreateWallet(context.Background(), ports.CreateWalletRequest{
		OwnerID:    uuid.New(),
		OwnerEmail: email,
		Type:       walletType,
		Currency:   "USD",
	})
	require.NoError(t, err)
	return wallet
}

// fund seeds a balance directly in the store, bypassing mutation guards.
func (f *fixture) fund(t *testing.T, wallet *domain.Wallet, amount string) *domain.Wallet {
	t.Helper()
	balance, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	w := copyWallet(wallet)
	w.Balance = balance
	f.wallets.set(w)
	return w
}

// issueCode issues a fresh challenge and returns the delivered plaintext.
func (f *fixture) issueCode(t *testing.T, purpose domain.OTPPurpose, target string) string {
	t.Helper()
	f.deliverer.reset(target)
	_, err := f.otpSvc.Issue(context.Background(), ports.IssueOTPRequest{
		Purpose:          purpose,
		TargetIdentifier: target,
	})
	require.NoError(t, err)
	return f.deliverer.code(t, target)
}

// wrongCode returns a six digit code guaranteed to differ from the given one.
func wrongCode(code string) string {
	if strings.HasPrefix(code, "0") {
		return "1" + code[1:]
	}
	return "0" + code[1:]
}
