package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shippingkart/backend/internal/domain/product"
	"github.com/shippingkart/backend/internal/infrastructure/memory"
)

func seedProduct(t *testing.T, repo product.Repository, id string, stock int) {
	t.Helper()
	p, err := product.New(id, "test "+id, 1000, stock)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := repo.Save(context.Background(), p); err != nil {
		t.Fatalf("seed save: %v", err)
	}
}

func TestDecrementInsufficientStock(t *testing.T) {
	repo := memory.NewProductRepository()
	seedProduct(t, repo, "p1", 2)
	svc := NewService(repo, 0)

	err := svc.Decrement(context.Background(), "p1", 3)
	if !errors.Is(err, product.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	available, err := svc.GetAvailable(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if available != 2 {
		t.Fatalf("failed decrement mutated stock: got %d", available)
	}
}

func TestDecrementUnknownProduct(t *testing.T) {
	svc := NewService(memory.NewProductRepository(), 0)
	if err := svc.Decrement(context.Background(), "missing", 1); !errors.Is(err, product.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecrementRejectsNonPositiveQuantity(t *testing.T) {
	repo := memory.NewProductRepository()
	seedProduct(t, repo, "p1", 2)
	svc := NewService(repo, 0)

	if err := svc.Decrement(context.Background(), "p1", 0); !errors.Is(err, product.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	repo := memory.NewProductRepository()
	seedProduct(t, repo, "p1", 5)
	svc := NewService(repo, time.Second)

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Decrement(context.Background(), "p1", 1)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, product.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("expected exactly 5 successful decrements, got %d", succeeded)
	}
	p, err := repo.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Stock != 0 || !p.SoldOut {
		t.Fatalf("expected stock=0 soldOut=true, got stock=%d soldOut=%v", p.Stock, p.SoldOut)
	}
}

func TestIncrementRestoresAndClearsSoldOut(t *testing.T) {
	repo := memory.NewProductRepository()
	seedProduct(t, repo, "p1", 1)
	svc := NewService(repo, 0)

	if err := svc.Decrement(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Increment(context.Background(), "p1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := repo.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Stock != 1 || p.SoldOut {
		t.Fatalf("expected stock restored, got stock=%d soldOut=%v", p.Stock, p.SoldOut)
	}
}

// blockingStore delegates to a real repository but parks Get until released,
// which keeps the per-product critical section occupied.
type blockingStore struct {
	product.Repository
	block chan struct{}
	once  sync.Once
	ready chan struct{}
}

func (s *blockingStore) Get(ctx context.Context, id string) (*product.Product, error) {
	s.once.Do(func() { close(s.ready) })
	<-s.block
	return s.Repository.Get(ctx, id)
}

func TestDecrementReportsBusyUnderContention(t *testing.T) {
	repo := memory.NewProductRepository()
	seedProduct(t, repo, "p1", 5)

	store := &blockingStore{
		Repository: repo,
		block:      make(chan struct{}),
		ready:      make(chan struct{}),
	}
	svc := NewService(store, 50*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- svc.Decrement(context.Background(), "p1", 1)
	}()

	<-store.ready
	err := svc.Decrement(context.Background(), "p1", 1)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(store.block)
	if err := <-done; err != nil {
		t.Fatalf("holder decrement failed: %v", err)
	}
}

// recordingReservingStore delegates stock changes to the embedded repository
// while capturing which attempt token each call was keyed by.
type recordingReservingStore struct {
	product.Repository
	mu           sync.Mutex
	reserveCalls []string
	releaseCalls []string
}

func (s *recordingReservingStore) DecrementStockReserving(ctx context.Context, token, productID string, quantity int) error {
	p, err := s.Repository.Get(ctx, productID)
	if err != nil {
		return err
	}
	if err := p.Deduct(quantity); err != nil {
		return err
	}
	if err := s.Repository.Save(ctx, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.reserveCalls = append(s.reserveCalls, token+"/"+productID)
	s.mu.Unlock()
	return nil
}

func (s *recordingReservingStore) IncrementStockReleasing(ctx context.Context, token, productID string, quantity int) error {
	p, err := s.Repository.Get(ctx, productID)
	if err != nil {
		return err
	}
	if err := p.Restock(quantity); err != nil {
		return err
	}
	if err := s.Repository.Save(ctx, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.releaseCalls = append(s.releaseCalls, token+"/"+productID)
	s.mu.Unlock()
	return nil
}

func TestDecrementReservingUsesStore(t *testing.T) {
	repo := memory.NewProductRepository()
	seedProduct(t, repo, "p1", 5)
	store := &recordingReservingStore{Repository: repo}
	svc := NewService(store, 0)

	recorded, err := svc.DecrementReserving(context.Background(), "tok-1", "p1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recorded {
		t.Fatalf("expected the store to record the reservation")
	}
	if len(store.reserveCalls) != 1 || store.reserveCalls[0] != "tok-1/p1" {
		t.Fatalf("expected reserve call keyed by token, got %v", store.reserveCalls)
	}
	if available, _ := svc.GetAvailable(context.Background(), "p1"); available != 3 {
		t.Fatalf("expected stock 3 after decrement, got %d", available)
	}

	recorded, err = svc.IncrementReleasing(context.Background(), "tok-1", "p1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recorded {
		t.Fatalf("expected the store to drop the reservation")
	}
	if len(store.releaseCalls) != 1 || store.releaseCalls[0] != "tok-1/p1" {
		t.Fatalf("expected release call keyed by token, got %v", store.releaseCalls)
	}
	if available, _ := svc.GetAvailable(context.Background(), "p1"); available != 5 {
		t.Fatalf("expected stock restored to 5, got %d", available)
	}
}

func TestDecrementReservingFallsBackToPlainPath(t *testing.T) {
	repo := memory.NewProductRepository()
	seedProduct(t, repo, "p1", 5)
	svc := NewService(repo, 0)

	recorded, err := svc.DecrementReserving(context.Background(), "tok-1", "p1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded {
		t.Fatalf("plain repository cannot record reservations")
	}
	if available, _ := svc.GetAvailable(context.Background(), "p1"); available != 3 {
		t.Fatalf("expected stock 3 after decrement, got %d", available)
	}

	recorded, err = svc.IncrementReleasing(context.Background(), "tok-1", "p1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded {
		t.Fatalf("plain repository cannot drop reservations")
	}
	if available, _ := svc.GetAvailable(context.Background(), "p1"); available != 5 {
		t.Fatalf("expected stock restored to 5, got %d", available)
	}
}
