package handlers

import (
	"net/http"

	"github.com/mensahub/mensa/internal/notification"
	"github.com/mensahub/mensa/internal/planner"
	"github.com/mensahub/mensa/internal/web/live"
)

// planResponse is the shared response shape of both planning endpoints.
type planResponse struct {
	Success     bool              `json:"success"`
	MealPlan    *planner.MealPlan `json:"mealPlan"`
	Suggestions []string          `json:"suggestions"`
}

// SuggestMeals handles POST /api/ai/suggest-meals. Slots already present in
// the submitted current plan are kept, empty ones are filled.
func (h *Handlers) SuggestMeals(w http.ResponseWriter, r *http.Request) {
	h.runPlanner(w, r, false)
}

// OptimizePlan handles POST /api/ai/optimize-plan. The whole week is
// regenerated regardless of the submitted plan.
func (h *Handlers) OptimizePlan(w http.ResponseWriter, r *http.Request) {
	h.runPlanner(w, r, true)
}

func (h *Handlers) runPlanner(w http.ResponseWriter, r *http.Request, replaceAll bool) {
	var req planner.Request
	if err := decodeBody(r, &req); err != nil {
		h.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	tenantID := h.tenantID(r)
	var (
		plan        *planner.MealPlan
		suggestions []string
		err         error
	)
	if replaceAll {
		plan, suggestions, err = h.planner.Optimize(r.Context(), tenantID, req)
	} else {
		plan, suggestions, err = h.planner.Suggest(r.Context(), tenantID, req)
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	h.broadcast(r, live.EventMealPlanGenerated, "meal_plans", plan)
	if h.notifier != nil && replaceAll {
		h.notifier.NotifySimple(notification.EventPlanGenerated, tenantID,
			"Meal plan optimized", "A new weekly plan was generated")
	}
	h.respondJSON(w, http.StatusOK, planResponse{
		Success:     true,
		MealPlan:    plan,
		Suggestions: suggestions,
	})
}

// SavePlan handles POST /api/ai/save-plan, persisting a generated plan.
func (h *Handlers) SavePlan(w http.ResponseWriter, r *http.Request) {
	var plan planner.MealPlan
	if err := decodeBody(r, &plan); err != nil {
		h.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if plan.WeekNumber < 1 || plan.WeekNumber > 53 {
		h.jsonError(w, "Invalid week number", http.StatusBadRequest)
		return
	}

	planID, err := h.planner.SavePlan(r.Context(), h.tenantID(r), &plan)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.broadcast(r, live.EventEntityCreated, "meal_plans", map[string]any{"id": planID})
	h.respondJSON(w, http.StatusCreated, map[string]any{"success": true, "id": planID})
}
