package cards

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subpay/pkg/pg"
	"github.com/dmitrymomot/subpay/svc/ledger"
)

// PostgresRepository implements Repository on the user_cards table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const cardColumns = `id, telegram_id, card_type, token, pan_hash, masked_pan, state, verified_at, revoked_at`

func (r *PostgresRepository) Save(ctx context.Context, card *SavedCard) error {
	q := pg.QuerierFromContext(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO user_cards (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (telegram_id, card_type) DO UPDATE
		SET token = EXCLUDED.token, pan_hash = EXCLUDED.pan_hash,
		    masked_pan = EXCLUDED.masked_pan, state = EXCLUDED.state,
		    verified_at = EXCLUDED.verified_at, revoked_at = EXCLUDED.revoked_at`,
		card.ID, card.TelegramID, card.Provider, card.Token, card.PANHash,
		card.MaskedPAN, card.State, card.VerifiedAt, card.RevokedAt,
	)
	return err
}

func (r *PostgresRepository) GetByOwner(ctx context.Context, telegramID int64, provider ledger.Provider) (*SavedCard, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx, `
		SELECT `+cardColumns+` FROM user_cards
		WHERE telegram_id = $1 AND card_type = $2`,
		telegramID, provider,
	)
	return scanCard(row)
}

func (r *PostgresRepository) ListUsable(ctx context.Context, telegramID int64) ([]SavedCard, error) {
	q := pg.QuerierFromContext(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+cardColumns+` FROM user_cards
		WHERE telegram_id = $1 AND state IN ($2, $3)`,
		telegramID, StateActive, StateReactivated,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SavedCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *card)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, card *SavedCard) error {
	q := pg.QuerierFromContext(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE user_cards
		SET token = $2, pan_hash = $3, masked_pan = $4, state = $5, verified_at = $6, revoked_at = $7
		WHERE id = $1`,
		card.ID, card.Token, card.PANHash, card.MaskedPAN, card.State, card.VerifiedAt, card.RevokedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

func scanCard(row pgx.Row) (*SavedCard, error) {
	var card SavedCard
	err := row.Scan(
		&card.ID, &card.TelegramID, &card.Provider, &card.Token, &card.PANHash,
		&card.MaskedPAN, &card.State, &card.VerifiedAt, &card.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}
