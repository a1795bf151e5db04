package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	appcart "github.com/shippingkart/backend/internal/application/cart"
	appcheckout "github.com/shippingkart/backend/internal/application/checkout"
	appinventory "github.com/shippingkart/backend/internal/application/inventory"
	apporder "github.com/shippingkart/backend/internal/application/order"
	domcart "github.com/shippingkart/backend/internal/domain/cart"
	domorder "github.com/shippingkart/backend/internal/domain/order"
	"github.com/shippingkart/backend/internal/domain/payment"
	"github.com/shippingkart/backend/internal/domain/product"
)

type Handler struct {
	carts    *appcart.Service
	checkout *appcheckout.Service
	orders   *apporder.Service
	catalog  product.Repository
	log      *zap.Logger
	metrics  HTTPMetrics
}

func NewHandler(
	carts *appcart.Service,
	checkout *appcheckout.Service,
	orders *apporder.Service,
	catalog product.Repository,
	logger *zap.Logger,
	metrics HTTPMetrics,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		catalog:  catalog,
		log:      logger,
		metrics:  metrics,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(Observability(h.log, h.metrics))
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(RequireIdentity)

			r.Get("/cart", h.getCart)
			r.Post("/cart/items", h.upsertCartItem)
			r.Delete("/cart/items/{productID}", h.removeCartItem)
			r.Post("/checkout", h.postCheckout)
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{orderID}", h.getOrder)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Put("/admin/orders/{orderID}/status", h.updateOrderStatus)
			})
		})
	})

	return r
}

type cartItemDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartDTO struct {
	UserID    string        `json:"user_id"`
	Items     []cartItemDTO `json:"items"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func toCartDTO(c *domcart.Cart) cartDTO {
	dto := cartDTO{UserID: c.UserID, Items: []cartItemDTO{}, UpdatedAt: c.UpdatedAt}
	for _, it := range c.Items {
		dto.Items = append(dto.Items, cartItemDTO{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return dto
}

type orderItemDTO struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

type orderDTO struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Items           []orderItemDTO `json:"items"`
	ShippingAddress string         `json:"shipping_address"`
	TotalCents      int64          `json:"total_cents"`
	Status          string         `json:"status"`
	PaymentStatus   string         `json:"payment_status"`
	CreatedAt       time.Time      `json:"created_at"`
}

func toOrderDTO(o *domorder.Order) orderDTO {
	dto := orderDTO{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           []orderItemDTO{},
		ShippingAddress: o.ShippingAddress,
		TotalCents:      o.TotalCents,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		CreatedAt:       o.CreatedAt,
	}
	for _, it := range o.Items {
		dto.Items = append(dto.Items, orderItemDTO{ProductID: it.ProductID, Quantity: it.Quantity, PriceCents: it.PriceCents})
	}
	return dto
}

type productDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	PriceCents  int64    `json:"price_cents"`
	Rating      float64  `json:"rating"`
	Images      []string `json:"images"`
	Stock       int      `json:"stock"`
	SoldOut     bool     `json:"sold_out"`
}

func toProductDTO(p *product.Product) productDTO {
	return productDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		PriceCents:  p.PriceCents,
		Rating:      p.Rating,
		Images:      p.Images,
		Stock:       p.Stock,
		SoldOut:     p.SoldOut,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]productDTO, 0, len(products))
	for _, p := range products {
		out = append(out, toProductDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	c, err := h.carts.GetOrCreate(r.Context(), id.UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(c))
}

type upsertCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) upsertCartItem(w http.ResponseWriter, r *http.Request) {
	var req upsertCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, _ := IdentityFromContext(r.Context())
	c, err := h.carts.UpsertItem(r.Context(), id.UserID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(c))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	c, err := h.carts.RemoveItem(r.Context(), id.UserID, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(c))
}

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	AttemptToken    string `json:"attempt_token"`
	PaymentOK       bool   `json:"payment_ok"`
	PaymentRef      string `json:"payment_ref"`
}

func (h *Handler) postCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, _ := IdentityFromContext(r.Context())
	ord, err := h.checkout.Execute(r.Context(), appcheckout.Input{
		UserID:          id.UserID,
		ShippingAddress: req.ShippingAddress,
		AttemptToken:    req.AttemptToken,
		Payment:         payment.Input{Approved: req.PaymentOK, Reference: req.PaymentRef},
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(ord))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	orders, err := h.orders.List(r.Context(), id.UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderDTO(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	ord, err := h.orders.Get(r.Context(), id.UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(ord))
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ord, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), domorder.Status(req.Status))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(ord))
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Busy failures
// carry a retry hint; internal failures are logged but not leaked.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, domcart.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domcart.ErrInvalidQuantity),
		errors.Is(err, product.ErrInvalidQuantity),
		errors.Is(err, appcheckout.ErrValidation),
		errors.Is(err, domorder.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, appcheckout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, appcheckout.ErrPaymentFailed):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, appcart.ErrOutOfStock),
		errors.Is(err, appcheckout.ErrOutOfStock),
		errors.Is(err, product.ErrInsufficientStock),
		errors.Is(err, appcheckout.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, appinventory.ErrBusy),
		errors.Is(err, appcart.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error("request_failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
