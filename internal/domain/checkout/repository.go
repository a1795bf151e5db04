package checkout

import (
	"context"
	"time"
)

type Repository interface {
	// Begin atomically claims the token. A missing token creates a fresh
	// in-flight attempt (fresh=true); a failed attempt is reset to in-flight
	// for retry (fresh=true); otherwise the existing attempt is returned
	// unchanged (fresh=false) so the caller can replay its outcome.
	Begin(ctx context.Context, token, userID string) (a *Attempt, fresh bool, err error)
	Get(ctx context.Context, token string) (*Attempt, error)
	Update(ctx context.Context, a *Attempt) error
	// ListInFlight returns attempts still in flight whose last update is
	// older than the cutoff; these are crash-recovery candidates.
	ListInFlight(ctx context.Context, olderThan time.Time) ([]*Attempt, error)
}
