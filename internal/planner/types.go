package planner

// Mode selects the strategy used to fill a weekly plan.
type Mode string

const (
	ModeCostOptimized     Mode = "cost_optimized"
	ModeBalancedNutrition Mode = "balanced_nutrition"
	ModeVariety           Mode = "variety"
	ModeSeasonal          Mode = "seasonal"
	ModeInventoryBased    Mode = "inventory_based"
	ModeCustom            Mode = "custom"
)

// Weights are the four dials of custom mode. They are relative; the planner
// normalizes them before scoring.
type Weights struct {
	Cost    float64 `json:"cost"`
	Health  float64 `json:"health"`
	Variety float64 `json:"variety"`
	Speed   float64 `json:"speed"`
}

// Constraints restrict which recipes custom mode may pick.
type Constraints struct {
	MaxCostPerMeal      float64  `json:"maxCostPerMeal"`
	ExcludedIngredients []string `json:"excludedIngredients"`
}

// Request is the body of a suggest/optimize call.
type Request struct {
	Mode        Mode         `json:"mode"`
	WeekNumber  int          `json:"weekNumber"`
	CurrentPlan *MealPlan    `json:"currentPlan"`
	Weights     *Weights     `json:"weights"`
	Constraints *Constraints `json:"constraints"`
}

// Meal is one slot of a planned day.
type Meal struct {
	Slot          string  `json:"slot"`
	RecipeID      int64   `json:"recipeId"`
	Name          string  `json:"name"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// Day is one calendar day of a plan. Day 1 is Monday.
type Day struct {
	Day   int    `json:"day"`
	Meals []Meal `json:"meals"`
}

// MealPlan is a generated 7-day plan.
type MealPlan struct {
	WeekNumber         int     `json:"weekNumber"`
	Mode               Mode    `json:"mode"`
	Days               []Day   `json:"days"`
	TotalEstimatedCost float64 `json:"totalEstimatedCost"`
}

// Slots planned per day, in serving order.
var slots = []string{"lunch", "dinner"}

// DaysPerWeek is the length of a generated plan.
const DaysPerWeek = 7

// recipe is the planner's view of a recipes row plus its ingredient names.
type recipe struct {
	ID          int64
	Name        string
	Category    string
	CostPerServ float64
	HealthScore float64
	PrepMinutes float64
	Season      string
	Ingredients []string
}
