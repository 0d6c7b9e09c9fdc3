package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-inventory-orders/internal/apperr"
	"github.com/ariefcatur/go-inventory-orders/internal/inventory"
	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/ariefcatur/go-inventory-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// OrderService is satisfied by *orders.Manager.
type OrderService interface {
	Create(ctx context.Context, lines []inventory.Line) (orders.Order, error)
	Get(ctx context.Context, id int64) (orders.Order, error)
	UpdateStatus(ctx context.Context, id int64, to orders.Status) (orders.Order, error)
}

// Idempotency is satisfied by *redisx.Idempotency.
type Idempotency interface {
	Begin(ctx context.Context, key string) (redisx.State, *redisx.Response, error)
	Complete(ctx context.Context, key string, resp redisx.Response) error
	Abort(ctx context.Context, key string) error
}

type OrdersHandler struct {
	Orders OrderService
	Idem   Idempotency // optional
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, r, apperr.Invalid("items must not be empty"))
		return
	}
	lines := make([]inventory.Line, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			writeError(w, r, apperr.Invalid("quantity for product %d must be positive", it.ProductID))
			return
		}
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key := r.Header.Get(HeaderIdempotencyKey)
	if h.Idem == nil || key == "" {
		o, err := h.Orders.Create(ctx, lines)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toOrderResp(o))
		return
	}

	state, stored, err := h.Idem.Begin(ctx, key)
	if err != nil {
		writeDetail(w, http.StatusServiceUnavailable, "idempotency store unavailable")
		hlog.FromRequest(r).Error().Err(err).Str("idempotency_key", key).Msg("idempotency begin")
		return
	}
	switch state {
	case redisx.Done:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(stored.Body)
		return
	case redisx.InFlight:
		writeDetail(w, http.StatusConflict, "a request with this Idempotency-Key is in progress")
		return
	}

	o, err := h.Orders.Create(ctx, lines)
	if err != nil {
		// The request context may already be done; the key must still be released.
		if aerr := h.Idem.Abort(context.WithoutCancel(ctx), key); aerr != nil {
			hlog.FromRequest(r).Warn().Err(aerr).Str("idempotency_key", key).Msg("idempotency abort")
		}
		writeError(w, r, err)
		return
	}

	resp := toOrderResp(o)
	body, _ := json.Marshal(resp)
	if err := h.Idem.Complete(context.WithoutCancel(ctx), key, redisx.Response{Code: http.StatusCreated, Body: body}); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("idempotency_key", key).Int64("order_id", o.ID).Msg("idempotency complete")
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req UpdateStatusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateStatus(ctx, id, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}
