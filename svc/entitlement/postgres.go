package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subpay/pkg/pg"
)

// PostgresUserRepository implements UserRepository on the users table.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `id, telegram_id, is_active, subscription_start, subscription_end, subscription_type`

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	return scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *PostgresUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	return scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *User) error {
	q := pg.QuerierFromContext(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.TelegramID, user.IsActive,
		user.SubscriptionStart, user.SubscriptionEnd, user.SubscriptionType,
	)
	return err
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *User) error {
	q := pg.QuerierFromContext(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE users
		SET is_active = $2, subscription_start = $3, subscription_end = $4, subscription_type = $5
		WHERE id = $1`,
		user.ID, user.IsActive, user.SubscriptionStart, user.SubscriptionEnd, user.SubscriptionType,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TelegramID, &u.IsActive, &u.SubscriptionStart, &u.SubscriptionEnd, &u.SubscriptionType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// PostgresSubscriptionRepository implements SubscriptionRepository on the
// user_subscriptions table.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

const recordColumns = `id, user_id, plan_id, transaction_id, start_date, end_date, is_active, auto_renew, status, paid_amount, created_at`

func (r *PostgresSubscriptionRepository) Insert(ctx context.Context, rec *SubscriptionRecord) error {
	q := pg.QuerierFromContext(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO user_subscriptions (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.UserID, rec.PlanID, rec.TransactionID, rec.StartDate, rec.EndDate,
		rec.IsActive, rec.AutoRenew, rec.Status, rec.PaidAmount, rec.CreatedAt,
	)
	return err
}

func (r *PostgresSubscriptionRepository) DeactivateActive(ctx context.Context, userID uuid.UUID, status RecordStatus, now time.Time) (int, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE user_subscriptions
		SET is_active = FALSE, status = $2, end_date = $3
		WHERE user_id = $1 AND is_active`,
		userID, status, now,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresSubscriptionRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]SubscriptionRecord, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+recordColumns+` FROM user_subscriptions
		WHERE user_id = $1 AND is_active`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *PostgresSubscriptionRepository) ListExpiring(ctx context.Context, deadline time.Time) ([]SubscriptionRecord, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+recordColumns+` FROM user_subscriptions
		WHERE is_active AND end_date < $1`,
		deadline,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]SubscriptionRecord, error) {
	var out []SubscriptionRecord
	for rows.Next() {
		var rec SubscriptionRecord
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.PlanID, &rec.TransactionID, &rec.StartDate, &rec.EndDate,
			&rec.IsActive, &rec.AutoRenew, &rec.Status, &rec.PaidAmount, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PostgresPaymentRepository implements PaymentRepository on the
// user_payments table.
type PostgresPaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresPaymentRepository(pool *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool}
}

func (r *PostgresPaymentRepository) Append(ctx context.Context, p *Payment) error {
	q := pg.QuerierFromContext(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO user_payments (id, user_id, provider, trans_id, plan_id, amount, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.UserID, p.Provider, p.TransID, p.PlanID, p.Amount, p.PaidAt,
	)
	return err
}
