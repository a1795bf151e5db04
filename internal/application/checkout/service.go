package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	appcart "github.com/shippingkart/backend/internal/application/cart"
	appinventory "github.com/shippingkart/backend/internal/application/inventory"
	domain "github.com/shippingkart/backend/internal/domain/checkout"
	domorder "github.com/shippingkart/backend/internal/domain/order"
	domoutbox "github.com/shippingkart/backend/internal/domain/outbox"
	"github.com/shippingkart/backend/internal/domain/payment"
	"github.com/shippingkart/backend/internal/domain/product"
	"github.com/shippingkart/backend/internal/pkg/logging"
)

var (
	ErrValidation    = errors.New("checkout: invalid input")
	ErrEmptyCart     = errors.New("checkout: cart is empty")
	ErrPaymentFailed = errors.New("checkout: payment failed")
	// ErrOutOfStock is always preceded by compensation of any decrement
	// already applied in the same attempt; callers never observe a partial
	// reservation.
	ErrOutOfStock = errors.New("checkout: out of stock")
	ErrConflict   = errors.New("checkout: attempt already in flight")
)

const (
	publishTimeout    = 300 * time.Millisecond
	DefaultStaleAfter = 30 * time.Second

	failureEmptyCart  = "EMPTY_CART"
	failurePayment    = "PAYMENT_FAILED"
	failureOutOfStock = "OUT_OF_STOCK"
	failureBusy       = "BUSY"
	failureConflict   = "CONFLICT"
	failureInternal   = "INTERNAL"
	failureRecovered  = "RECOVERED"
)

type IDGenerator interface {
	NewID() string
}

// TokenCache is an optional fast path from attempt token to order identifier
// (the redis adapter). The attempt repository stays authoritative.
type TokenCache interface {
	GetOrderID(ctx context.Context, token string) (string, bool)
	SetOrderID(ctx context.Context, token, orderID string)
}

// Metrics are registered by the caller and shared across services.
type Metrics struct {
	Attempts *prometheus.CounterVec   // checkout_attempts_total{outcome}
	Duration *prometheus.HistogramVec // checkout_duration_seconds{outcome}
}

// Service coordinates a cart snapshot, the external payment verdict, ordered
// stock decrements, order creation, and cart clearing as one logical unit.
//
// State machine per attempt:
//
//	Idle -> Validating -> Reserving -> OrderCreated -> CartCleared (success)
//	Validating -> Rejected                    (no mutation)
//	Reserving  -> Compensating -> Rejected    (rollback, cart intact)
type Service struct {
	carts      *appcart.Service
	inventory  *appinventory.Service
	products   product.Repository
	orders     domorder.Repository
	attempts   domain.Repository
	payments   payment.Processor
	ids        IDGenerator
	publisher  domoutbox.Publisher
	tokens     TokenCache
	tracer     trace.Tracer
	metrics    Metrics
	staleAfter time.Duration
}

func NewService(
	carts *appcart.Service,
	inv *appinventory.Service,
	products product.Repository,
	orders domorder.Repository,
	attempts domain.Repository,
	payments payment.Processor,
	ids IDGenerator,
	publisher domoutbox.Publisher,
	metrics Metrics,
) *Service {
	return &Service{
		carts:      carts,
		inventory:  inv,
		products:   products,
		orders:     orders,
		attempts:   attempts,
		payments:   payments,
		ids:        ids,
		publisher:  publisher,
		tracer:     otel.Tracer("checkout"),
		metrics:    metrics,
		staleAfter: DefaultStaleAfter,
	}
}

// WithTokenCache installs the optional token fast path.
func (s *Service) WithTokenCache(c TokenCache) *Service {
	s.tokens = c
	return s
}

// WithStaleAfter overrides how old an in-flight attempt must be before the
// recovery sweep treats it as abandoned. Zero keeps the default.
func (s *Service) WithStaleAfter(d time.Duration) *Service {
	if d != 0 {
		s.staleAfter = d
	}
	return s
}

type Input struct {
	UserID          string
	ShippingAddress string
	AttemptToken    string
	Payment         payment.Input
}

// Execute runs one checkout attempt. Replaying the same attempt token after
// a crash or network failure returns the recorded outcome instead of
// creating a second order or double-decrementing stock.
func (s *Service) Execute(ctx context.Context, in Input) (_ *domorder.Order, err error) {
	logger := logging.FromContext(ctx).With(
		zap.String("component", "checkout"),
		zap.String("attempt_token", in.AttemptToken),
	)

	ctx, span := s.tracer.Start(ctx, "Checkout.Execute",
		trace.WithAttributes(
			attribute.String("checkout.user_id", in.UserID),
		),
	)
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetStatus(codes.Ok, outcome)
		}
		span.End()

		if s.metrics.Attempts != nil {
			s.metrics.Attempts.WithLabelValues(outcome).Inc()
		}
		if s.metrics.Duration != nil {
			s.metrics.Duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		}
	}()

	if in.UserID == "" {
		outcome = "validation"
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if in.AttemptToken == "" {
		outcome = "validation"
		return nil, fmt.Errorf("%w: attempt token is required", ErrValidation)
	}
	if in.ShippingAddress == "" {
		outcome = "validation"
		return nil, fmt.Errorf("%w: shipping address is required", ErrValidation)
	}

	// Fast path: a completed attempt cached by token.
	if s.tokens != nil {
		if orderID, ok := s.tokens.GetOrderID(ctx, in.AttemptToken); ok {
			if ord, getErr := s.orders.Get(ctx, orderID); getErr == nil {
				outcome = "replay"
				logger.Info("checkout_replayed", zap.String("order_id", orderID))
				return ord, nil
			}
		}
	}

	attempt, fresh, err := s.attempts.Begin(ctx, in.AttemptToken, in.UserID)
	if err != nil {
		outcome = "internal"
		return nil, fmt.Errorf("checkout: claim attempt: %w", err)
	}
	if attempt.UserID != in.UserID {
		outcome = "conflict"
		return nil, fmt.Errorf("%w: token owned by another user", ErrConflict)
	}
	if !fresh {
		switch attempt.State {
		case domain.AttemptCompleted:
			ord, getErr := s.orders.Get(ctx, attempt.OrderID)
			if getErr != nil {
				outcome = "internal"
				return nil, fmt.Errorf("checkout: load replayed order: %w", getErr)
			}
			outcome = "replay"
			logger.Info("checkout_replayed", zap.String("order_id", attempt.OrderID))
			return ord, nil
		default:
			outcome = "conflict"
			return nil, ErrConflict
		}
	}

	// Validating: snapshot the cart; an empty cart rejects the attempt with
	// no mutation anywhere.
	snapshot, err := s.carts.GetOrCreate(ctx, in.UserID)
	if err != nil {
		return nil, s.reject(ctx, attempt, failureInternal, "internal", &outcome, fmt.Errorf("checkout: load cart: %w", err))
	}
	if snapshot.IsEmpty() {
		return nil, s.reject(ctx, attempt, failureEmptyCart, "empty_cart", &outcome, ErrEmptyCart)
	}

	// Payment verdict comes from the external collaborator strictly before
	// any stock-affecting critical section; no lock is held across the call.
	verdict, err := s.payments.Authorize(ctx, in.UserID, in.Payment)
	if err != nil {
		return nil, s.reject(ctx, attempt, failurePayment, "payment_error", &outcome, fmt.Errorf("checkout: payment verdict: %w", err))
	}
	if !verdict.Approved {
		return nil, s.reject(ctx, attempt, failurePayment, "payment_failed", &outcome, ErrPaymentFailed)
	}

	// Snapshot current prices, silently dropping lines whose product no
	// longer exists.
	lines := make([]domorder.Item, 0, len(snapshot.Items))
	for _, it := range snapshot.Items {
		p, getErr := s.products.Get(ctx, it.ProductID)
		if errors.Is(getErr, product.ErrNotFound) {
			logger.Info("checkout_item_dropped", zap.String("product_id", it.ProductID))
			continue
		}
		if getErr != nil {
			return nil, s.reject(ctx, attempt, failureInternal, "internal", &outcome, fmt.Errorf("checkout: load product: %w", getErr))
		}
		lines = append(lines, domorder.Item{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			PriceCents: p.PriceCents,
		})
	}
	if len(lines) == 0 {
		return nil, s.reject(ctx, attempt, failureEmptyCart, "empty_cart", &outcome, ErrEmptyCart)
	}

	// Reserving: decrement in ascending product order. The fixed global
	// order keeps two checkouts over overlapping product sets from
	// deadlocking, and makes failure reporting deterministic.
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	for _, line := range lines {
		recorded, decErr := s.inventory.DecrementReserving(ctx, attempt.Token, line.ProductID, line.Quantity)
		if decErr == nil {
			attempt.Reserved = append(attempt.Reserved, domain.ReservedItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
			})
			// The durable store already holds the reservation when recorded;
			// otherwise persist it before the next decrement.
			if !recorded {
				if upErr := s.attempts.Update(ctx, attempt); upErr != nil {
					logger.Error("attempt_update_failed", zap.Error(upErr))
				}
			}
			continue
		}

		s.compensate(ctx, attempt, logger)
		switch {
		case errors.Is(decErr, product.ErrInsufficientStock):
			return nil, s.reject(ctx, attempt, failureOutOfStock, "out_of_stock", &outcome,
				fmt.Errorf("%w: product %s", ErrOutOfStock, line.ProductID))
		case errors.Is(decErr, appinventory.ErrBusy):
			return nil, s.reject(ctx, attempt, failureBusy, "busy", &outcome, decErr)
		case errors.Is(decErr, product.ErrNotFound):
			// The product vanished between the price snapshot and the
			// decrement; the priced lines no longer match reality.
			return nil, s.reject(ctx, attempt, failureConflict, "conflict", &outcome,
				fmt.Errorf("%w: product %s removed", ErrConflict, line.ProductID))
		default:
			return nil, s.reject(ctx, attempt, failureInternal, "internal", &outcome,
				fmt.Errorf("checkout: decrement %s: %w", line.ProductID, decErr))
		}
	}

	// OrderCreated: anchor the order id on the attempt before inserting so
	// the recovery path can tell a committed attempt from an aborted one.
	ord, err := domorder.New(s.ids.NewID(), in.UserID, in.ShippingAddress, lines)
	if err != nil {
		s.compensate(ctx, attempt, logger)
		return nil, s.reject(ctx, attempt, failureInternal, "internal", &outcome, fmt.Errorf("checkout: construct order: %w", err))
	}
	attempt.OrderID = ord.ID
	if err := s.attempts.Update(ctx, attempt); err != nil {
		s.compensate(ctx, attempt, logger)
		return nil, s.reject(ctx, attempt, failureInternal, "internal", &outcome, fmt.Errorf("checkout: anchor attempt: %w", err))
	}
	if err := s.orders.Insert(ctx, ord); err != nil {
		s.compensate(ctx, attempt, logger)
		return nil, s.reject(ctx, attempt, failureInternal, "internal", &outcome, fmt.Errorf("checkout: insert order: %w", err))
	}

	// CartCleared: if this fails the attempt stays in flight and Recover
	// completes the commit; the caller retries with the same token.
	if err := s.carts.Clear(ctx, in.UserID); err != nil {
		outcome = "internal"
		return nil, fmt.Errorf("checkout: clear cart: %w", err)
	}

	attempt.State = domain.AttemptCompleted
	attempt.Reserved = nil
	if err := s.attempts.Update(ctx, attempt); err != nil {
		logger.Error("attempt_complete_failed", zap.Error(err))
	}
	if s.tokens != nil {
		s.tokens.SetOrderID(ctx, in.AttemptToken, ord.ID)
	}

	s.publish(ctx, ord, logger)

	span.SetAttributes(attribute.String("checkout.order_id", ord.ID))
	logger.Info("checkout_completed",
		zap.String("order_id", ord.ID),
		zap.Int64("total_cents", ord.TotalCents),
	)
	return ord, nil
}

// reject finalizes a failed attempt and surfaces the causal error.
func (s *Service) reject(ctx context.Context, attempt *domain.Attempt, code, outcomeLabel string, outcome *string, cause error) error {
	*outcome = outcomeLabel
	attempt.State = domain.AttemptFailed
	attempt.FailureCode = code
	if err := s.attempts.Update(context.WithoutCancel(ctx), attempt); err != nil {
		logging.FromContext(ctx).Error("attempt_reject_failed", zap.Error(err))
	}
	return cause
}

// compensate re-increments every decrement applied in this attempt. It keeps
// running after client disconnects; items it cannot restore stay recorded on
// the attempt for the recovery sweep.
func (s *Service) compensate(ctx context.Context, attempt *domain.Attempt, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	remaining := attempt.Reserved[:0]
	for _, r := range attempt.Reserved {
		if _, err := s.inventory.IncrementReleasing(ctx, attempt.Token, r.ProductID, r.Quantity); err != nil {
			logger.Error("compensation_failed",
				zap.String("product_id", r.ProductID),
				zap.Int("quantity", r.Quantity),
				zap.Error(err),
			)
			remaining = append(remaining, r)
		}
	}
	attempt.Reserved = remaining
}

func (s *Service) publish(ctx context.Context, ord *domorder.Order, logger *zap.Logger) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, domorder.NewCreatedEvent(ord)); err != nil {
		logger.Warn("order_event_publish_failed", zap.Error(err))
	}
}

// Recover resolves attempts left in flight by a crash or disconnect: an
// attempt whose order made it into the ledger is committed (cart cleared),
// anything else is rolled back. It is safe to run periodically.
func (s *Service) Recover(ctx context.Context) (int, error) {
	stale, err := s.attempts.ListInFlight(ctx, time.Now().UTC().Add(-s.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("checkout: list stale attempts: %w", err)
	}
	logger := logging.FromContext(ctx).With(zap.String("component", "checkout_recovery"))

	resolved := 0
	for _, attempt := range stale {
		if attempt.OrderID != "" {
			if _, getErr := s.orders.Get(ctx, attempt.OrderID); getErr == nil {
				if err := s.carts.Clear(ctx, attempt.UserID); err != nil {
					logger.Error("recovery_clear_cart_failed",
						zap.String("attempt_token", attempt.Token),
						zap.Error(err),
					)
					continue
				}
				attempt.State = domain.AttemptCompleted
				attempt.Reserved = nil
				if err := s.attempts.Update(ctx, attempt); err != nil {
					logger.Error("recovery_update_failed", zap.Error(err))
					continue
				}
				logger.Info("attempt_recovered_committed", zap.String("attempt_token", attempt.Token))
				resolved++
				continue
			}
		}

		s.compensate(ctx, attempt, logger)
		if len(attempt.Reserved) > 0 {
			// Could not restore everything; leave in flight for the next sweep.
			if err := s.attempts.Update(ctx, attempt); err != nil {
				logger.Error("recovery_update_failed", zap.Error(err))
			}
			continue
		}
		attempt.State = domain.AttemptFailed
		attempt.FailureCode = failureRecovered
		if err := s.attempts.Update(ctx, attempt); err != nil {
			logger.Error("recovery_update_failed", zap.Error(err))
			continue
		}
		logger.Info("attempt_recovered_rolled_back", zap.String("attempt_token", attempt.Token))
		resolved++
	}
	return resolved, nil
}
