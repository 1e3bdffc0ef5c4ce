package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/ariefcatur/go-storefront/internal/review"
	"github.com/go-chi/chi/v5"
)

const (
	HeaderOwner          = "X-Owner-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// StatusCache backs GET /orders/{id}/status. redisx.StatusCache implements it.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
	Put(ctx context.Context, o *orders.Order) error
}

type API struct {
	Catalog  catalog.Store
	Carts    *cart.Engine
	Checkout *checkout.Orchestrator
	Orders   *orders.Service
	Reviews  *review.Service
	Status   StatusCache // optional
	Log      *slog.Logger
}

func (a *API) Register(r *chi.Mux) {
	r.Get("/products", a.listProducts)
	r.Get("/products/{id}", a.getProduct)
	r.Get("/products/{id}/reviews", a.listReviews)
	r.Post("/admin/products", a.saveProduct)
	r.Post("/admin/products/{id}/stock", a.adjustStock)

	r.Group(func(r chi.Router) {
		r.Use(requireOwner)
		r.Get("/cart", a.getCart)
		r.Post("/cart/items", a.addItem)
		r.Put("/cart/items/{productID}", a.updateItem)
		r.Delete("/cart/items/{productID}", a.removeItem)
		r.Post("/checkout", a.checkout)
		r.Get("/orders", a.listOrders)
		r.Get("/orders/{id}", a.getOrder)
		r.Get("/orders/{id}/status", a.orderStatus)
		r.Get("/orders/{id}/review-eligibility", a.reviewEligibility)
		r.Post("/reviews", a.submitReview)
	})
	// Status changes come from staff and couriers; the actor is named in the body.
	r.Post("/orders/{id}/transitions", a.transition)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type ownerKey struct{}

func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(HeaderOwner))
		if owner == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "UNAUTHORIZED", Message: "missing " + HeaderOwner})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func ownerOf(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}

func (a *API) fail(w http.ResponseWriter, err error) {
	log := a.Log
	if log == nil {
		log = slog.Default()
	}
	writeError(w, log, err)
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := a.Catalog.ListProducts(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.Catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) listReviews(w http.ResponseWriter, r *http.Request) {
	list, err := a.Reviews.ListForProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	if list == nil {
		list = []review.Review{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) saveProduct(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	p, err := a.Catalog.SaveProduct(r.Context(), catalog.Product{
		ID:          req.ID,
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Brand:       req.Brand,
		Price:       req.Price,
		Stock:       req.Stock,
		Featured:    req.Featured,
		Status:      catalog.Status(req.Status),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req stockReq
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	stock, err := a.Catalog.AdjustStock(r.Context(), id, req.Delta)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": id, "stock": stock})
}

func (a *API) getCart(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Carts.Snapshot(r.Context(), ownerOf(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	view, err := snap.Collect(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	res, err := a.Carts.AddItem(r.Context(), ownerOf(r), req.ProductID, req.Quantity)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemReq
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	res, err := a.Carts.UpdateQuantity(r.Context(), ownerOf(r), chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) removeItem(w http.ResponseWriter, r *http.Request) {
	res, err := a.Carts.RemoveItem(r.Context(), ownerOf(r), chi.URLParam(r, "productID"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	o, err := a.Checkout.Checkout(r.Context(), checkout.Request{
		Owner:           ownerOf(r),
		PaymentMethod:   orders.PaymentMethod(strings.ToUpper(req.PaymentMethod)),
		PaymentToken:    req.PaymentToken,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Notes:           req.Notes,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.cacheStatus(r.Context(), &o)
	writeJSON(w, http.StatusCreated, o)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.Orders.ListByOwner(r.Context(), ownerOf(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ownedOrder hides orders of other owners behind NotFound.
func (a *API) ownedOrder(r *http.Request) (orders.Order, error) {
	id := chi.URLParam(r, "id")
	o, err := a.Orders.Get(r.Context(), id)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Owner != ownerOf(r) {
		return orders.Order{}, apperr.E(apperr.KindNotFound, "httpx.order", "order %s", id)
	}
	return o, nil
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.ownedOrder(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// orderStatus serves polling clients from the cache and falls back to the store.
func (a *API) orderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a.Status != nil {
		if st, ok, err := a.Status.Get(r.Context(), id); err == nil && ok && st.Owner == ownerOf(r) {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	o, err := a.ownedOrder(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.cacheStatus(r.Context(), &o)
	writeJSON(w, http.StatusOK, redisx.CachedStatus{Owner: o.Owner, Status: o.Status, PaymentStatus: o.PaymentStatus, UpdatedAt: o.UpdatedAt})
}

func (a *API) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionReq
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	to, ok := orders.ParseStatus(req.To)
	if !ok {
		a.fail(w, apperr.E(apperr.KindInvalidTransition, "httpx.transition", "unknown status %q", req.To))
		return
	}
	o, err := a.Orders.Transition(r.Context(), chi.URLParam(r, "id"), to, req.Actor, req.Note)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.cacheStatus(r.Context(), &o)
	writeJSON(w, http.StatusOK, o)
}

func (a *API) reviewEligibility(w http.ResponseWriter, r *http.Request) {
	o, err := a.ownedOrder(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	eligible, err := a.Orders.IsEligibleForReview(r.Context(), o.ID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": o.ID, "eligible": eligible})
}

func (a *API) submitReview(w http.ResponseWriter, r *http.Request) {
	var req reviewReq
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	rv, err := a.Reviews.Submit(r.Context(), review.Review{
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		Owner:     ownerOf(r),
		Rating:    req.Rating,
		Text:      req.Text,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

// cacheStatus is best effort; the store stays the source of truth.
func (a *API) cacheStatus(ctx context.Context, o *orders.Order) {
	if a.Status == nil {
		return
	}
	if err := a.Status.Put(context.WithoutCancel(ctx), o); err != nil && a.Log != nil {
		a.Log.Warn("cache order status", "order_id", o.ID, "err", err)
	}
}
