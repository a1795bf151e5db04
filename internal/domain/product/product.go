package product

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("product: not found")
	ErrInvalidQuantity   = errors.New("product: quantity must be greater than zero")
	ErrInvalidPrice      = errors.New("product: price must be zero or greater")
	ErrInsufficientStock = errors.New("product: insufficient stock")
)

// Product is a catalog entry together with its authoritative stock counter.
// Stock and SoldOut must only be mutated through Deduct and Restock so that
// the invariant SoldOut == (Stock <= 0) holds at every observable point.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	PriceCents  int64
	Rating      float64
	Images      []string
	Stock       int
	SoldOut     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(id, name string, priceCents int64, stock int) (*Product, error) {
	if priceCents < 0 {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidQuantity
	}
	now := time.Now().UTC()
	return &Product{
		ID:         id,
		Name:       name,
		PriceCents: priceCents,
		Stock:      stock,
		SoldOut:    stock <= 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Deduct subtracts quantity from the stock counter. It fails with
// ErrInsufficientStock when the counter would go negative; the counter is
// left untouched in that case.
func (p *Product) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > p.Stock {
		return ErrInsufficientStock
	}
	p.Stock -= quantity
	p.SoldOut = p.Stock <= 0
	p.touch()
	return nil
}

// Restock adds quantity back to the stock counter, re-clearing the sold-out
// flag once stock is positive again. It is the compensation counterpart of
// Deduct.
func (p *Product) Restock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.Stock += quantity
	p.SoldOut = p.Stock <= 0
	p.touch()
	return nil
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Images = append([]string(nil), p.Images...)
	return &clone
}
