package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subpay/pkg/pg"
)

// PostgresRepository implements Repository on top of the transactions table.
// It joins the unit of work injected by pg.WithinTx when one is present.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const txColumns = `id, provider, trans_id, user_id, plan_id, amount, state, sub_state, create_time, perform_time, cancel_time, cancel_reason`

func (r *PostgresRepository) Create(ctx context.Context, tx *Transaction) error {
	q := pg.QuerierFromContext(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tx.ID, tx.Provider, tx.TransID, tx.UserID, tx.PlanID, tx.Amount,
		tx.State, tx.SubState, tx.CreateTime, tx.PerformTime, tx.CancelTime, tx.CancelReason,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrDuplicateTransID
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) GetByTransID(ctx context.Context, provider Provider, transID string) (*Transaction, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE provider = $1 AND trans_id = $2`,
		provider, transID,
	)
	return scanTransaction(row)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *PostgresRepository) FindPending(ctx context.Context, provider Provider, userID uuid.UUID, planID string) (*Transaction, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE provider = $1 AND user_id = $2 AND plan_id = $3 AND state = $4
		ORDER BY create_time DESC
		LIMIT 1`,
		provider, userID, planID, StatePending,
	)
	return scanTransaction(row)
}

func (r *PostgresRepository) Update(ctx context.Context, tx *Transaction) error {
	q := pg.QuerierFromContext(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE transactions
		SET state = $2, sub_state = $3, perform_time = $4, cancel_time = $5, cancel_reason = $6
		WHERE id = $1`,
		tx.ID, tx.State, tx.SubState, tx.PerformTime, tx.CancelTime, tx.CancelReason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListPaidBetween(ctx context.Context, provider Provider, from, to time.Time) ([]Transaction, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE provider = $1 AND state = $2 AND perform_time BETWEEN $3 AND $4
		ORDER BY perform_time`,
		provider, StatePaid, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var tx Transaction
	err := row.Scan(
		&tx.ID, &tx.Provider, &tx.TransID, &tx.UserID, &tx.PlanID, &tx.Amount,
		&tx.State, &tx.SubState, &tx.CreateTime, &tx.PerformTime, &tx.CancelTime, &tx.CancelReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}
