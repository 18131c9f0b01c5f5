package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mensahub/mensa/internal/database"
	"github.com/mensahub/mensa/internal/web/live"
)

// resource describes one CRUD-managed table exposed under /api.
type resource struct {
	Table        string
	SearchFields []string
	Required     []string
}

// resources maps URL path segments to their backing tables.
var resources = map[string]resource{
	"products": {
		Table:        "products",
		SearchFields: []string{"name", "category", "article_number"},
		Required:     []string{"name"},
	},
	"suppliers": {
		Table:        "suppliers",
		SearchFields: []string{"name", "contact_email"},
		Required:     []string{"name"},
	},
	"recipes": {
		Table:        "recipes",
		SearchFields: []string{"name", "category"},
		Required:     []string{"name"},
	},
	"inventory": {
		Table:        "inventory_items",
		SearchFields: []string{"name"},
		Required:     []string{"name"},
	},
	"orders": {
		Table:        "orders",
		SearchFields: []string{"status", "notes"},
		Required:     []string{},
	},
	"order-items": {
		Table:        "order_items",
		SearchFields: []string{"name"},
		Required:     []string{"order_id", "name"},
	},
	"meal-plans": {
		Table:        "meal_plans",
		SearchFields: []string{"name"},
		Required:     []string{"name"},
	},
}

func lookupResource(r *http.Request) (resource, bool) {
	res, ok := resources[chi.URLParam(r, "resource")]
	return res, ok
}

// ListResource handles GET /api/{resource}. A q parameter switches to
// search mode, otherwise the listing is paginated.
func (h *Handlers) ListResource(w http.ResponseWriter, r *http.Request) {
	res, ok := lookupResource(r)
	if !ok {
		h.jsonError(w, "Unknown resource", http.StatusNotFound)
		return
	}
	repo := h.repo(r)

	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		rows, err := repo.Search(r.Context(), res.Table, res.SearchFields, q)
		if err != nil {
			h.handleError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, map[string]any{"items": rows})
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	result, err := repo.Paginate(r.Context(), res.Table, page, limit, database.ListOptions{
		OrderBy: []database.Order{{Column: "id"}},
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// GetResource handles GET /api/{resource}/{id}
func (h *Handlers) GetResource(w http.ResponseWriter, r *http.Request) {
	res, ok := lookupResource(r)
	if !ok {
		h.jsonError(w, "Unknown resource", http.StatusNotFound)
		return
	}
	id, ok := idParam(r)
	if !ok {
		h.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}
	row, err := h.repo(r).FindByID(r.Context(), res.Table, id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if row == nil {
		h.jsonError(w, "Not found", http.StatusNotFound)
		return
	}
	h.respondJSON(w, http.StatusOK, row)
}

// CreateResource handles POST /api/{resource}
func (h *Handlers) CreateResource(w http.ResponseWriter, r *http.Request) {
	res, ok := lookupResource(r)
	if !ok {
		h.jsonError(w, "Unknown resource", http.StatusNotFound)
		return
	}
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		h.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	stripServerFields(body)
	for _, field := range res.Required {
		if v, ok := body[field]; !ok || v == "" || v == nil {
			h.jsonError(w, "Missing required field: "+field, http.StatusBadRequest)
			return
		}
	}
	row, err := h.repo(r).Create(r.Context(), res.Table, body)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.broadcast(r, live.EventEntityCreated, res.Table, row)
	h.respondJSON(w, http.StatusCreated, row)
}

// UpdateResource handles PUT /api/{resource}/{id}
func (h *Handlers) UpdateResource(w http.ResponseWriter, r *http.Request) {
	res, ok := lookupResource(r)
	if !ok {
		h.jsonError(w, "Unknown resource", http.StatusNotFound)
		return
	}
	id, ok := idParam(r)
	if !ok {
		h.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		h.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	stripServerFields(body)
	row, err := h.repo(r).Update(r.Context(), res.Table, id, body)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if row == nil {
		h.jsonError(w, "Not found", http.StatusNotFound)
		return
	}
	h.broadcast(r, live.EventEntityUpdated, res.Table, row)
	h.respondJSON(w, http.StatusOK, row)
}

// DeleteResource handles DELETE /api/{resource}/{id}
func (h *Handlers) DeleteResource(w http.ResponseWriter, r *http.Request) {
	res, ok := lookupResource(r)
	if !ok {
		h.jsonError(w, "Unknown resource", http.StatusNotFound)
		return
	}
	id, ok := idParam(r)
	if !ok {
		h.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}
	deleted, err := h.repo(r).Delete(r.Context(), res.Table, id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if !deleted {
		h.jsonError(w, "Not found", http.StatusNotFound)
		return
	}
	h.broadcast(r, live.EventEntityDeleted, res.Table, map[string]any{"id": id})
	h.respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleError maps data layer failures to HTTP responses.
func (h *Handlers) handleError(w http.ResponseWriter, err error) {
	var qe *database.QueryError
	if errors.As(err, &qe) {
		log.Error().Err(err).Msg("Query failed")
		h.jsonError(w, "Database error", http.StatusInternalServerError)
		return
	}
	// Everything else is a caller mistake (bad column, bad window).
	h.jsonError(w, err.Error(), http.StatusBadRequest)
}

// stripServerFields removes columns clients must not set directly.
func stripServerFields(body map[string]any) {
	delete(body, "id")
	delete(body, "tenant_id")
	delete(body, "created_at")
	delete(body, "updated_at")
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
