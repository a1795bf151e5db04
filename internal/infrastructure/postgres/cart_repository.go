package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/shippingkart/backend/internal/domain/cart"
)

type CartRepository struct {
	db *pgxpool.Pool
}

func NewCartRepository(db *pgxpool.Pool) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	c := &domain.Cart{UserID: userID}
	err := r.db.QueryRow(ctx, `SELECT updated_at FROM carts WHERE user_id=$1`, userID).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT product_id, quantity FROM cart_items WHERE user_id=$1 ORDER BY product_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// Save replaces the whole cart in one transaction. Callers serialize per
// user, so the delete-and-reinsert cannot interleave with another save for
// the same user.
func (r *CartRepository) Save(ctx context.Context, c *domain.Cart) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO carts (user_id, updated_at) VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at=EXCLUDED.updated_at`,
		c.UserID, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, c.UserID); err != nil {
		return err
	}
	for _, it := range c.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1,$2,$3)`,
			c.UserID, it.ProductID, it.Quantity,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
