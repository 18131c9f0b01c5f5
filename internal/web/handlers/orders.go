package handlers

import (
	"fmt"
	"net/http"

	"github.com/mensahub/mensa/internal/database"
	"github.com/mensahub/mensa/internal/notification"
	"github.com/mensahub/mensa/internal/web/live"
)

// SubmitOrder handles POST /api/orders/{id}/submit. It moves a draft order
// to submitted, recomputes its total from the order items and notifies the
// configured providers.
func (h *Handlers) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}

	tenantID := h.tenantID(r)
	var updated database.Row
	err := h.db.Transaction(r.Context(), func(tx *database.Tx) error {
		repo := tx.Tenant(tenantID)
		order, err := repo.FindByID(r.Context(), "orders", id)
		if err != nil {
			return err
		}
		if order == nil {
			return errOrderNotFound
		}
		if status, _ := order["status"].(string); status != "draft" {
			return fmt.Errorf("order is %v, only draft orders can be submitted", order["status"])
		}

		items, err := repo.FindAll(r.Context(), "order_items", database.ListOptions{
			Where: []database.Where{{Column: "order_id", Op: "=", Value: id}},
		})
		if err != nil {
			return err
		}
		var total float64
		for _, item := range items {
			total += asFloat(item["quantity"]) * asFloat(item["unit_price"])
		}

		updated, err = repo.Update(r.Context(), "orders", id, database.Row{
			"status":     "submitted",
			"total_cost": total,
		})
		return err
	})
	if err == errOrderNotFound {
		h.jsonError(w, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.broadcast(r, live.EventEntityUpdated, "orders", updated)
	if h.notifier != nil {
		h.notifier.NotifySimple(notification.EventOrderSubmitted, tenantID,
			"Order submitted",
			fmt.Sprintf("Order #%d was submitted (total %.2f)", id, updated["total_cost"]))
	}
	h.respondJSON(w, http.StatusOK, updated)
}

var errOrderNotFound = fmt.Errorf("order not found")

// asFloat normalizes the numeric types the driver may hand back.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}
