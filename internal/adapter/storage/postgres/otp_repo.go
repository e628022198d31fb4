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

// OTPRepo implements ports.OTPRepository. Attempt and consumption updates are
// guarded in SQL so concurrent verifiers never overshoot limits.
type OTPRepo struct {
	pool Pool
}

// NewOTPRepo creates a new OTPRepo.
func NewOTPRepo(pool Pool) *OTPRepo {
	return &OTPRepo{pool: pool}
}

const otpColumns = `id, purpose, target_identifier, code_hash, attempts, max_attempts, consumed, created_at, expires_at`

func scanChallenge(row pgx.Row) (*domain.OTPChallenge, error) {
	c := &domain.OTPChallenge{}
	err := row.Scan(
		&c.ID, &c.Purpose, &c.TargetIdentifier, &c.CodeHash,
		&c.Attempts, &c.MaxAttempts, &c.Consumed, &c.CreatedAt, &c.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new OTP challenge.
func (r *OTPRepo) Create(ctx context.Context, c *domain.OTPChallenge) error {
	query := `INSERT INTO otp_challenges (id, purpose, target_identifier, code_hash, attempts, max_attempts, consumed, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.Purpose, c.TargetIdentifier, c.CodeHash,
		c.Attempts, c.MaxAttempts, c.Consumed, c.CreatedAt, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert otp challenge: %w", err)
	}
	return nil
}

// GetByID fetches a challenge by its UUID.
func (r *OTPRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.OTPChallenge, error) {
	query := `SELECT ` + otpColumns + ` FROM otp_challenges WHERE id = $1`

	c, err := scanChallenge(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get otp challenge by id: %w", err)
	}
	return c, nil
}

// GetActiveByTarget fetches the newest unconsumed challenge for the purpose
// and target. Expiry is judged by the caller so it can report it distinctly.
func (r *OTPRepo) GetActiveByTarget(ctx context.Context, purpose domain.OTPPurpose, target string) (*domain.OTPChallenge, error) {
	query := `SELECT ` + otpColumns + ` FROM otp_challenges
		WHERE purpose = $1 AND target_identifier = $2 AND NOT consumed
		ORDER BY created_at DESC LIMIT 1`

	c, err := scanChallenge(r.pool.QueryRow(ctx, query, purpose, target))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active otp challenge: %w", err)
	}
	return c, nil
}

// IncrementAttempts bumps the attempt counter while it is under the budget.
// Returns false when the budget is already spent.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE otp_challenges SET attempts = attempts + 1
		WHERE id = $1 AND attempts < max_attempts`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("increment otp attempts: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Consume marks the challenge consumed. Returns false on a lost race.
func (r *OTPRepo) Consume(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE otp_challenges SET consumed = TRUE WHERE id = $1 AND NOT consumed`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("consume otp challenge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InvalidatePrior consumes every live challenge for the purpose and target.
func (r *OTPRepo) InvalidatePrior(ctx context.Context, purpose domain.OTPPurpose, target string) error {
	query := `UPDATE otp_challenges SET consumed = TRUE
		WHERE purpose = $1 AND target_identifier = $2 AND NOT consumed`

	if _, err := r.pool.Exec(ctx, query, purpose, target); err != nil {
		return fmt.Errorf("invalidate prior otp challenges: %w", err)
	}
	return nil
}

// DeleteExpired removes challenges past expiry and consumed ones.
func (r *OTPRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM otp_challenges WHERE expires_at <= $1 OR consumed`

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired otp challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}
