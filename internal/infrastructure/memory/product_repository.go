package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/shippingkart/backend/internal/domain/product"
)

type ProductRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{items: make(map[string]*domain.Product)}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) Save(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[p.ID] = p.Clone()
	return nil
}

// Delete removes a catalog entry. Carts may still reference the id; checkout
// drops such lines at snapshot time.
func (r *ProductRepository) Delete(ctx context.Context, id string) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, id)
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Product, 0, len(r.items))
	for _, p := range r.items {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
