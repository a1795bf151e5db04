package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domcheckout "github.com/shippingkart/backend/internal/domain/checkout"
	domain "github.com/shippingkart/backend/internal/domain/product"
)

// ProductRepository persists catalog entries and their stock counters.
// Stock mutations go through DecrementStock/IncrementStock, which serialize
// per product via row locks, so concurrent checkouts across processes cannot
// oversell.
type ProductRepository struct {
	db *pgxpool.Pool
}

func NewProductRepository(db *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, name, description, category, price_cents, rating, images, stock, sold_out, created_at, updated_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.PriceCents,
		&p.Rating, &p.Images, &p.Stock, &p.SoldOut, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	return scanProduct(row)
}

func (r *ProductRepository) Save(ctx context.Context, p *domain.Product) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, description=EXCLUDED.description,
			category=EXCLUDED.category, price_cents=EXCLUDED.price_cents,
			rating=EXCLUDED.rating, images=EXCLUDED.images,
			stock=EXCLUDED.stock, sold_out=EXCLUDED.sold_out,
			updated_at=EXCLUDED.updated_at`,
		p.ID, p.Name, p.Description, p.Category, p.PriceCents,
		p.Rating, p.Images, p.Stock, p.SoldOut, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DecrementStock locks the product row, re-verifies sufficiency, and applies
// the decrement together with the sold-out flag in one transaction.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, quantity int) error {
	return r.adjustStock(ctx, productID, -quantity)
}

// IncrementStock reverses a prior decrement, re-clearing sold_out when stock
// becomes positive.
func (r *ProductRepository) IncrementStock(ctx context.Context, productID string, quantity int) error {
	return r.adjustStock(ctx, productID, quantity)
}

func (r *ProductRepository) adjustStock(ctx context.Context, productID string, delta int) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := adjustStockTx(ctx, tx, productID, delta); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func adjustStockTx(ctx context.Context, tx pgx.Tx, productID string, delta int) error {
	var stock int
	err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	next := stock + delta
	if next < 0 {
		return fmt.Errorf("%w: product %s has %d", domain.ErrInsufficientStock, productID, stock)
	}

	_, err = tx.Exec(ctx, `
		UPDATE products SET stock=$2, sold_out=$3, updated_at=now() WHERE id=$1`,
		productID, next, next <= 0,
	)
	return err
}

// DecrementStockReserving applies the decrement and records the reservation
// on the attempt in the same transaction. A crash after the commit always
// leaves the recovery sweep a reservation naming the decremented product.
func (r *ProductRepository) DecrementStockReserving(ctx context.Context, token, productID string, quantity int) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := adjustStockTx(ctx, tx, productID, -quantity); err != nil {
		return err
	}
	if err := recordReservationTx(ctx, tx, token, productID, quantity); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IncrementStockReleasing reverses a recorded decrement, dropping the
// reservation together with the stock restore.
func (r *ProductRepository) IncrementStockReleasing(ctx context.Context, token, productID string, quantity int) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := adjustStockTx(ctx, tx, productID, quantity); err != nil {
		return err
	}
	if err := dropReservationTx(ctx, tx, token, productID, quantity); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func recordReservationTx(ctx context.Context, tx pgx.Tx, token, productID string, quantity int) error {
	reserved, err := lockReservedTx(ctx, tx, token)
	if err != nil {
		return err
	}
	merged := false
	for i := range reserved {
		if reserved[i].ProductID == productID {
			reserved[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		reserved = append(reserved, domcheckout.ReservedItem{ProductID: productID, Quantity: quantity})
	}
	return saveReservedTx(ctx, tx, token, reserved)
}

func dropReservationTx(ctx context.Context, tx pgx.Tx, token, productID string, quantity int) error {
	reserved, err := lockReservedTx(ctx, tx, token)
	if err != nil {
		return err
	}
	out := reserved[:0]
	for _, item := range reserved {
		if item.ProductID == productID {
			item.Quantity -= quantity
			if item.Quantity <= 0 {
				continue
			}
		}
		out = append(out, item)
	}
	return saveReservedTx(ctx, tx, token, out)
}

func lockReservedTx(ctx context.Context, tx pgx.Tx, token string) ([]domcheckout.ReservedItem, error) {
	var raw []byte
	err := tx.QueryRow(ctx, `SELECT reserved FROM checkout_attempts WHERE token=$1 FOR UPDATE`, token).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domcheckout.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	var reserved []domcheckout.ReservedItem
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &reserved); err != nil {
			return nil, err
		}
	}
	return reserved, nil
}

func saveReservedTx(ctx context.Context, tx pgx.Tx, token string, reserved []domcheckout.ReservedItem) error {
	buf, err := json.Marshal(reserved)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE checkout_attempts SET reserved=$2, updated_at=now() WHERE token=$1`,
		token, buf,
	)
	return err
}
