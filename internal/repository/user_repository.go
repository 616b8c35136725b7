// Package repository implements Postgres persistence for user records.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/greendale-game/airdrop-bot/internal/domain"
)

// ErrUserNotFound indicates that no record exists for the identity.
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines persistence operations for user records. Every
// mutation is a single SQL statement: either all fields of an update apply
// or none do.
type UserRepository interface {
	FindByID(ctx context.Context, telegramID int64) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	// MarkTelegramVerified advances the record to the twitter step. It only
	// applies while the user is still at the membership-check step, so a
	// stale poller cannot regress newer state.
	MarkTelegramVerified(ctx context.Context, telegramID int64) error
	// SaveTwitterHandle stores the submitted handle and resets the review
	// status to pending.
	SaveTwitterHandle(ctx context.Context, telegramID int64, handle string) error
	// AdvanceToWallet moves an approved user to the wallet step.
	AdvanceToWallet(ctx context.Context, telegramID int64) error
	// SaveWallet completes registration: wallet, wallet_submitted, verified
	// and the final step are written together.
	SaveWallet(ctx context.Context, telegramID int64, wallet string) error
	IncrementReferralCount(ctx context.Context, telegramID int64) error
	// CountByStep returns the number of users at each registration step.
	CountByStep(ctx context.Context) (map[int]int, error)
	// ListPendingTwitter returns users whose twitter review has been
	// pending since before the cutoff.
	ListPendingTwitter(ctx context.Context, pendingSince time.Time) ([]*domain.User, error)
}

type userRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewUserRepository creates a SQL-backed user repository.
func NewUserRepository(db *sql.DB, log *slog.Logger) UserRepository {
	return &userRepository{
		db:  db,
		log: log,
	}
}

const userColumns = `
	telegram_id, username, first_name, registration_step, telegram_verified,
	twitter_id, twitter_status, wallet, wallet_submitted, verified,
	referral_count, referral_by, created_at
`

func (r *userRepository) FindByID(ctx context.Context, telegramID int64) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE telegram_id = $1`, userColumns)

	row := r.db.QueryRowContext(ctx, query, telegramID)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}

		r.logError("find user", telegramID, err)
		return nil, fmt.Errorf("select user by telegram id: %w", err)
	}

	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
		INSERT INTO users (
			telegram_id, username, first_name, registration_step,
			telegram_verified, twitter_status, referral_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.TelegramID,
		user.Username,
		user.FirstName,
		user.RegistrationStep,
		user.TelegramVerified,
		user.TwitterStatus,
		user.ReferralBy,
		user.CreatedAt,
	); err != nil {
		r.logError("create user", user.TelegramID, err)
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *userRepository) MarkTelegramVerified(ctx context.Context, telegramID int64) error {
	const query = `
		UPDATE users
		SET registration_step = $2, telegram_verified = TRUE
		WHERE telegram_id = $1 AND registration_step <= $2
	`

	return r.exec(ctx, "mark telegram verified", telegramID, query, telegramID, domain.StepTwitterSubmit)
}

func (r *userRepository) SaveTwitterHandle(ctx context.Context, telegramID int64, handle string) error {
	const query = `
		UPDATE users
		SET twitter_id = $2, twitter_status = $3, registration_step = $4
		WHERE telegram_id = $1
	`

	return r.exec(ctx, "save twitter handle", telegramID, query, telegramID, handle, domain.TwitterStatusPending, domain.StepTwitterSubmit)
}

func (r *userRepository) AdvanceToWallet(ctx context.Context, telegramID int64) error {
	const query = `
		UPDATE users
		SET registration_step = $2
		WHERE telegram_id = $1 AND registration_step < $2
	`

	return r.exec(ctx, "advance to wallet", telegramID, query, telegramID, domain.StepWalletSubmit)
}

func (r *userRepository) SaveWallet(ctx context.Context, telegramID int64, wallet string) error {
	const query = `
		UPDATE users
		SET wallet = $2, wallet_submitted = TRUE, verified = TRUE, registration_step = $3
		WHERE telegram_id = $1
	`

	return r.exec(ctx, "save wallet", telegramID, query, telegramID, wallet, domain.StepCompleted)
}

func (r *userRepository) IncrementReferralCount(ctx context.Context, telegramID int64) error {
	const query = `
		UPDATE users
		SET referral_count = referral_count + 1
		WHERE telegram_id = $1
	`

	return r.exec(ctx, "increment referral count", telegramID, query, telegramID)
}

func (r *userRepository) CountByStep(ctx context.Context) (map[int]int, error) {
	const query = `
		SELECT registration_step, COUNT(*)
		FROM users
		GROUP BY registration_step
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count users by step: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var step, count int
		if err := rows.Scan(&step, &count); err != nil {
			return nil, fmt.Errorf("scan step count: %w", err)
		}
		counts[step] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step counts: %w", err)
	}

	return counts, nil
}

// ListPendingTwitter returns users stuck at handle moderation since before
// pendingSince. created_at is registration time, not handle submission
// time, so the cutoff is approximate.
func (r *userRepository) ListPendingTwitter(ctx context.Context, pendingSince time.Time) ([]*domain.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users
		WHERE registration_step = $1 AND twitter_status = $2
		  AND twitter_id <> '' AND created_at <= $3
	`, userColumns)

	rows, err := r.db.QueryContext(ctx, query, domain.StepTwitterSubmit, domain.TwitterStatusPending, pendingSince)
	if err != nil {
		return nil, fmt.Errorf("list pending twitter users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending twitter user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending twitter users: %w", err)
	}

	return users, nil
}

func (r *userRepository) exec(ctx context.Context, op string, telegramID int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logError(op, telegramID, err)
		return fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var (
		user       domain.User
		referralBy sql.NullInt64
	)

	if err := row.Scan(
		&user.TelegramID,
		&user.Username,
		&user.FirstName,
		&user.RegistrationStep,
		&user.TelegramVerified,
		&user.TwitterID,
		&user.TwitterStatus,
		&user.Wallet,
		&user.WalletSubmitted,
		&user.Verified,
		&user.ReferralCount,
		&referralBy,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}

	if referralBy.Valid {
		user.ReferralBy = &referralBy.Int64
	}

	return &user, nil
}

func (r *userRepository) logError(op string, telegramID int64, err error) {
	if r.log == nil {
		return
	}

	r.log.Error("user repository operation failed",
		slog.String("operation", op),
		slog.Int64("telegram_id", telegramID),
		slog.Any("error", err),
	)
}
