package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mensahub/mensa/internal/database"
	"github.com/mensahub/mensa/internal/notification"
	"github.com/mensahub/mensa/internal/planner"
	"github.com/mensahub/mensa/internal/web/live"
	"github.com/mensahub/mensa/internal/web/middleware"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db       *database.DB
	planner  *planner.Planner
	broker   *live.Broker
	notifier *notification.Manager
}

// New creates a new Handlers instance
func New(db *database.DB, pl *planner.Planner, broker *live.Broker) *Handlers {
	return &Handlers{
		db:      db,
		planner: pl,
		broker:  broker,
	}
}

// SetNotificationManager sets the notification manager
func (h *Handlers) SetNotificationManager(mgr *notification.Manager) {
	h.notifier = mgr
}

// Health reports liveness; it deliberately needs no tenant.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// repo returns the tenant-scoped repository for the authenticated request.
func (h *Handlers) repo(r *http.Request) *database.Repo {
	tenant := middleware.GetTenant(r.Context())
	return h.db.Tenant(tenant.TenantID)
}

func (h *Handlers) tenantID(r *http.Request) string {
	return middleware.GetTenant(r.Context()).TenantID
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	// Messages may carry quoted identifiers from validation errors, so the
	// envelope has to go through the encoder.
	body, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// broadcast pushes an entity change event to the tenant's live clients.
func (h *Handlers) broadcast(r *http.Request, eventType live.EventType, resource string, data any) {
	if h.broker == nil {
		return
	}
	h.broker.Broadcast(h.tenantID(r), live.Event{
		Type:     eventType,
		Resource: resource,
		Data:     data,
	})
}
