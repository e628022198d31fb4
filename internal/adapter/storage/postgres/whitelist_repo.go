package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"treasury-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WhitelistRepo implements ports.WhitelistRepository.
type WhitelistRepo struct {
	pool Pool
}

// NewWhitelistRepo creates a new WhitelistRepo.
func NewWhitelistRepo(pool Pool) *WhitelistRepo {
	return &WhitelistRepo{pool: pool}
}

const whitelistColumns = `id, wallet_id, destination_address, address_type, status, verified_at, eligible_at, created_at`

func scanEntry(row pgx.Row) (*domain.WhitelistEntry, error) {
	e := &domain.WhitelistEntry{}
	err := row.Scan(
		&e.ID, &e.WalletID, &e.DestinationAddress, &e.AddressType,
		&e.Status, &e.VerifiedAt, &e.EligibleAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts a new whitelist entry.
func (r *WhitelistRepo) Create(ctx context.Context, e *domain.WhitelistEntry) error {
	query := `INSERT INTO whitelist_entries (id, wallet_id, destination_address, address_type, status, verified_at, eligible_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.WalletID, e.DestinationAddress, e.AddressType,
		e.Status, e.VerifiedAt, e.EligibleAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert whitelist entry: %w", err)
	}
	return nil
}

// GetByID fetches a whitelist entry by its UUID.
func (r *WhitelistRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WhitelistEntry, error) {
	query := `SELECT ` + whitelistColumns + ` FROM whitelist_entries WHERE id = $1`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get whitelist entry by id: %w", err)
	}
	return e, nil
}

// GetByWalletAndAddress fetches the newest non-removed entry for the wallet
// and destination address.
func (r *WhitelistRepo) GetByWalletAndAddress(ctx context.Context, walletID uuid.UUID, address string) (*domain.WhitelistEntry, error) {
	query := `SELECT ` + whitelistColumns + ` FROM whitelist_entries
		WHERE wallet_id = $1 AND destination_address = $2 AND status != 'REMOVED'
		ORDER BY created_at DESC LIMIT 1`

	e, err := scanEntry(r.pool.QueryRow(ctx, query, walletID, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get whitelist entry by address: %w", err)
	}
	return e, nil
}

// ListByWallet fetches all entries for a wallet, oldest first.
func (r *WhitelistRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.WhitelistEntry, error) {
	query := `SELECT ` + whitelistColumns + ` FROM whitelist_entries WHERE wallet_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list whitelist entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.WhitelistEntry
	for rows.Next() {
		e := domain.WhitelistEntry{}
		err := rows.Scan(
			&e.ID, &e.WalletID, &e.DestinationAddress, &e.AddressType,
			&e.Status, &e.VerifiedAt, &e.EligibleAt, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan whitelist entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate whitelist entry rows: %w", err)
	}
	return entries, nil
}

// MarkVerified flips PENDING to VERIFIED, stamping verification and
// eligibility times. Returns false when the entry was not pending.
func (r *WhitelistRepo) MarkVerified(ctx context.Context, id uuid.UUID, verifiedAt, eligibleAt time.Time) (bool, error) {
	query := `UPDATE whitelist_entries SET status = 'VERIFIED', verified_at = $2, eligible_at = $3
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, id, verifiedAt, eligibleAt)
	if err != nil {
		return false, fmt.Errorf("mark whitelist entry verified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus moves the entry between states behind a from-state guard.
func (r *WhitelistRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.WhitelistStatus) (bool, error) {
	query := `UPDATE whitelist_entries SET status = $3 WHERE id = $1 AND status = $2`

	tag, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("update whitelist entry status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
