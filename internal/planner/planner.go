package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mensahub/mensa/internal/database"
)

// Planner generates weekly meal plans from a tenant's recipes and stock.
// The strategy is a weighted greedy fill with a repeat penalty; no single
// optimization method is mandated, only that each mode prefers what its
// name says.
type Planner struct {
	db *database.DB
}

// New creates a planner over the given database.
func New(db *database.DB) *Planner {
	return &Planner{db: db}
}

// Suggest builds a plan for the requested week. Slots already filled in
// req.CurrentPlan are kept as-is; only empty slots are planned.
func (p *Planner) Suggest(ctx context.Context, tenantID string, req Request) (*MealPlan, []string, error) {
	return p.generate(ctx, tenantID, req, false)
}

// Optimize rebuilds the whole plan under the same mode, replacing current
// entries when a better-scoring recipe exists.
func (p *Planner) Optimize(ctx context.Context, tenantID string, req Request) (*MealPlan, []string, error) {
	return p.generate(ctx, tenantID, req, true)
}

func (p *Planner) generate(ctx context.Context, tenantID string, req Request, replaceAll bool) (*MealPlan, []string, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeBalancedNutrition
	}
	week := req.WeekNumber
	if week < 1 {
		_, week = time.Now().ISOWeek()
	}

	recipes, err := p.loadRecipes(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	if len(recipes) == 0 {
		return nil, nil, fmt.Errorf("tenant %s has no recipes to plan with", tenantID)
	}

	stock, err := p.loadStock(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	weights, constraints := resolveMode(mode, req.Weights, req.Constraints)

	candidates := filterRecipes(recipes, constraints)
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("no recipe satisfies the given constraints")
	}

	scorer := newScorer(candidates, stock, weights, mode)

	// Usage counts seed the variety penalty; kept current-plan meals count
	// as used so new picks avoid them.
	usage := make(map[int64]int)
	current := indexCurrentPlan(req.CurrentPlan)
	if !replaceAll {
		for _, meal := range current {
			if meal.RecipeID > 0 {
				usage[meal.RecipeID]++
			}
		}
	}

	plan := &MealPlan{WeekNumber: week, Mode: mode}
	for day := 1; day <= DaysPerWeek; day++ {
		d := Day{Day: day}
		for _, slot := range slots {
			if !replaceAll {
				if meal, ok := current[slotKey(day, slot)]; ok && meal.RecipeID > 0 {
					d.Meals = append(d.Meals, meal)
					plan.TotalEstimatedCost += meal.EstimatedCost
					continue
				}
			}

			pick := scorer.best(usage)
			if pick == nil {
				continue
			}
			usage[pick.ID]++
			meal := Meal{
				Slot:          slot,
				RecipeID:      pick.ID,
				Name:          pick.Name,
				EstimatedCost: round2(pick.CostPerServ),
			}
			d.Meals = append(d.Meals, meal)
			plan.TotalEstimatedCost += meal.EstimatedCost
		}
		plan.Days = append(plan.Days, d)
	}
	plan.TotalEstimatedCost = round2(plan.TotalEstimatedCost)

	suggestions := p.buildSuggestions(plan, candidates, stock, mode)

	log.Debug().
		Str("tenant", tenantID).
		Str("mode", string(mode)).
		Int("week", week).
		Float64("total_cost", plan.TotalEstimatedCost).
		Msg("Generated meal plan")

	return plan, suggestions, nil
}

// SavePlan persists a generated plan and its entries in one transaction,
// replacing any existing plan for the same week and year.
func (p *Planner) SavePlan(ctx context.Context, tenantID string, plan *MealPlan) (int64, error) {
	year := time.Now().Year()
	var planID int64

	err := p.db.Transaction(ctx, func(tx *database.Tx) error {
		repo := tx.Tenant(tenantID)

		existing, err := repo.FindAll(ctx, "meal_plans", database.ListOptions{
			Where: []database.Where{
				{Column: "week_number", Op: "=", Value: plan.WeekNumber},
				{Column: "year", Op: "=", Value: year},
			},
		})
		if err != nil {
			return err
		}
		for _, row := range existing {
			id, ok := row["id"].(int64)
			if !ok {
				continue
			}
			stale, err := repo.FindAll(ctx, "meal_plan_entries", database.ListOptions{
				Where: []database.Where{{Column: "meal_plan_id", Op: "=", Value: id}},
			})
			if err != nil {
				return err
			}
			for _, entry := range stale {
				if entryID, ok := entry["id"].(int64); ok {
					if _, err := repo.Delete(ctx, "meal_plan_entries", entryID); err != nil {
						return err
					}
				}
			}
			if _, err := repo.Delete(ctx, "meal_plans", id); err != nil {
				return err
			}
		}

		row, err := repo.Create(ctx, "meal_plans", database.Row{
			"name":                 fmt.Sprintf("Week %d", plan.WeekNumber),
			"week_number":          plan.WeekNumber,
			"year":                 year,
			"mode":                 string(plan.Mode),
			"total_estimated_cost": plan.TotalEstimatedCost,
		})
		if err != nil {
			return err
		}
		planID = row["id"].(int64)

		for _, day := range plan.Days {
			for _, meal := range day.Meals {
				if _, err := repo.Create(ctx, "meal_plan_entries", database.Row{
					"meal_plan_id":   planID,
					"day_of_week":    day.Day,
					"slot":           meal.Slot,
					"recipe_id":      meal.RecipeID,
					"recipe_name":    meal.Name,
					"estimated_cost": meal.EstimatedCost,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save meal plan: %w", err)
	}
	return planID, nil
}

func (p *Planner) loadRecipes(ctx context.Context, tenantID string) ([]recipe, error) {
	repo := p.db.Tenant(tenantID)

	rows, err := repo.FindAll(ctx, "recipes", database.ListOptions{
		OrderBy: []database.Order{{Column: "name"}},
	})
	if err != nil {
		return nil, err
	}

	ingredientRows, err := repo.FindAll(ctx, "recipe_ingredients", database.ListOptions{})
	if err != nil {
		return nil, err
	}
	byRecipe := make(map[int64][]string)
	for _, row := range ingredientRows {
		rid, _ := row["recipe_id"].(int64)
		if name, ok := row["name"].(string); ok {
			byRecipe[rid] = append(byRecipe[rid], name)
		}
	}

	recipes := make([]recipe, 0, len(rows))
	for _, row := range rows {
		r := recipe{}
		r.ID, _ = row["id"].(int64)
		r.Name, _ = row["name"].(string)
		r.Category, _ = row["category"].(string)
		r.CostPerServ = toFloat(row["cost_per_serving"])
		r.HealthScore = toFloat(row["health_score"])
		r.PrepMinutes = toFloat(row["prep_time_minutes"])
		r.Season, _ = row["season"].(string)
		r.Ingredients = byRecipe[r.ID]
		recipes = append(recipes, r)
	}
	return recipes, nil
}

// loadStock returns the lowercased names of inventory items with positive
// quantity.
func (p *Planner) loadStock(ctx context.Context, tenantID string) (map[string]bool, error) {
	rows, err := p.db.Tenant(tenantID).FindAll(ctx, "inventory_items", database.ListOptions{
		Where: []database.Where{{Column: "quantity", Op: ">", Value: 0}},
	})
	if err != nil {
		return nil, err
	}
	stock := make(map[string]bool, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			stock[strings.ToLower(name)] = true
		}
	}
	return stock, nil
}

func (p *Planner) buildSuggestions(plan *MealPlan, recipes []recipe, stock map[string]bool, mode Mode) []string {
	suggestions := []string{}

	meals := 0
	for _, d := range plan.Days {
		meals += len(d.Meals)
	}
	if meals > 0 {
		avg := plan.TotalEstimatedCost / float64(meals)
		suggestions = append(suggestions, fmt.Sprintf("Average cost per meal is %.2f across %d planned meals", avg, meals))
	}

	if len(stock) > 0 {
		covered := 0
		for _, r := range recipes {
			if inventoryCoverage(r, stock) >= 0.5 {
				covered++
			}
		}
		if covered > 0 && mode != ModeInventoryBased {
			suggestions = append(suggestions, fmt.Sprintf("%d recipes can be cooked mostly from stock; try inventory_based mode to use them up", covered))
		}
	}

	if len(recipes) < DaysPerWeek*len(slots) {
		suggestions = append(suggestions, fmt.Sprintf("Only %d recipes available for %d slots; some repeats were unavoidable", len(recipes), DaysPerWeek*len(slots)))
	}

	return suggestions
}

func indexCurrentPlan(plan *MealPlan) map[string]Meal {
	out := make(map[string]Meal)
	if plan == nil {
		return out
	}
	for _, day := range plan.Days {
		for _, meal := range day.Meals {
			out[slotKey(day.Day, meal.Slot)] = meal
		}
	}
	return out
}

func slotKey(day int, slot string) string {
	return fmt.Sprintf("%d/%s", day, slot)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}
