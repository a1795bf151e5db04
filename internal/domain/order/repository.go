package order

import "context"

type Repository interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	// ListByUser returns the user's orders, most recent first.
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
}
