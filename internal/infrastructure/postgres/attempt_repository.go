package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/shippingkart/backend/internal/domain/checkout"
)

type AttemptRepository struct {
	db *pgxpool.Pool
}

func NewAttemptRepository(db *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{db: db}
}

const attemptColumns = `token, user_id, state, order_id, failure_code, reserved, started_at, updated_at`

func scanAttempt(row pgx.Row) (*domain.Attempt, error) {
	var a domain.Attempt
	var reserved []byte
	err := row.Scan(&a.Token, &a.UserID, &a.State, &a.OrderID, &a.FailureCode,
		&reserved, &a.StartedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(reserved) > 0 {
		if err := json.Unmarshal(reserved, &a.Reserved); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// Begin claims the token under a row lock so concurrent requests carrying the
// same token resolve to exactly one fresh attempt.
func (r *AttemptRepository) Begin(ctx context.Context, token, userID string) (*domain.Attempt, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	existing, err := scanAttempt(tx.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM checkout_attempts WHERE token=$1 FOR UPDATE`, token))
	switch {
	case err == nil:
		if existing.State == domain.AttemptFailed && existing.UserID == userID {
			_, err = tx.Exec(ctx, `
				UPDATE checkout_attempts
				SET state=$2, order_id='', failure_code='', reserved='[]', updated_at=$3
				WHERE token=$1`,
				token, domain.AttemptInFlight, now,
			)
			if err != nil {
				return nil, false, err
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, false, err
			}
			existing.State = domain.AttemptInFlight
			existing.OrderID = ""
			existing.FailureCode = ""
			existing.Reserved = nil
			existing.UpdatedAt = now
			return existing, true, nil
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case errors.Is(err, domain.ErrAttemptNotFound):
		// fall through to insert
	default:
		return nil, false, err
	}

	a := &domain.Attempt{
		Token:     token,
		UserID:    userID,
		State:     domain.AttemptInFlight,
		StartedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO checkout_attempts (token, user_id, state, order_id, failure_code, reserved, started_at, updated_at)
		VALUES ($1,$2,$3,'','','[]',$4,$4)`,
		a.Token, a.UserID, a.State, now,
	)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (r *AttemptRepository) Get(ctx context.Context, token string) (*domain.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM checkout_attempts WHERE token=$1`, token))
}

func (r *AttemptRepository) Update(ctx context.Context, a *domain.Attempt) error {
	reserved, err := json.Marshal(a.Reserved)
	if err != nil {
		return err
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE checkout_attempts
		SET state=$2, order_id=$3, failure_code=$4, reserved=$5, updated_at=$6
		WHERE token=$1`,
		a.Token, a.State, a.OrderID, a.FailureCode, reserved, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (r *AttemptRepository) ListInFlight(ctx context.Context, olderThan time.Time) ([]*domain.Attempt, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+attemptColumns+` FROM checkout_attempts
		WHERE state=$1 AND updated_at < $2`,
		domain.AttemptInFlight, olderThan,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
