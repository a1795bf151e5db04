package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/shippingkart/backend/internal/domain/checkout"
)

type AttemptRepository struct {
	mu       sync.Mutex
	attempts map[string]*domain.Attempt
}

func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{attempts: make(map[string]*domain.Attempt)}
}

// Begin claims the token under the repository mutex, which is what makes two
// concurrent requests with the same token resolve to one fresh attempt.
func (r *AttemptRepository) Begin(ctx context.Context, token, userID string) (*domain.Attempt, bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.attempts[token]; ok {
		if existing.State == domain.AttemptFailed && existing.UserID == userID {
			existing.State = domain.AttemptInFlight
			existing.OrderID = ""
			existing.FailureCode = ""
			existing.Reserved = nil
			existing.UpdatedAt = now
			return existing.Clone(), true, nil
		}
		return existing.Clone(), false, nil
	}

	a := &domain.Attempt{
		Token:     token,
		UserID:    userID,
		State:     domain.AttemptInFlight,
		StartedAt: now,
		UpdatedAt: now,
	}
	r.attempts[token] = a
	return a.Clone(), true, nil
}

func (r *AttemptRepository) Get(ctx context.Context, token string) (*domain.Attempt, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[token]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return a.Clone(), nil
}

func (r *AttemptRepository) Update(ctx context.Context, a *domain.Attempt) error {
	_ = ctx
	if a == nil || a.Token == "" {
		return domain.ErrAttemptNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.attempts[a.Token]; !ok {
		return domain.ErrAttemptNotFound
	}
	clone := a.Clone()
	clone.UpdatedAt = time.Now().UTC()
	r.attempts[a.Token] = clone
	return nil
}

func (r *AttemptRepository) ListInFlight(ctx context.Context, olderThan time.Time) ([]*domain.Attempt, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Attempt
	for _, a := range r.attempts {
		if a.State == domain.AttemptInFlight && a.UpdatedAt.Before(olderThan) {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}
