package checkout

import (
	"errors"
	"time"
)

var ErrAttemptNotFound = errors.New("checkout: attempt not found")

type AttemptState string

const (
	// AttemptInFlight marks an attempt whose stock decrements may be
	// partially applied.
	AttemptInFlight  AttemptState = "in_flight"
	AttemptCompleted AttemptState = "completed"
	AttemptFailed    AttemptState = "failed"
)

// ReservedItem records a stock decrement applied during an attempt so the
// recovery path can compensate it after a crash.
type ReservedItem struct {
	ProductID string
	Quantity  int
}

// Attempt is the durable record behind the caller-supplied attempt token.
// Replaying a token must return the recorded outcome instead of re-running
// the checkout.
type Attempt struct {
	Token       string
	UserID      string
	State       AttemptState
	OrderID     string
	FailureCode string
	Reserved    []ReservedItem
	StartedAt   time.Time
	UpdatedAt   time.Time
}

func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Reserved = append([]ReservedItem(nil), a.Reserved...)
	return &clone
}
