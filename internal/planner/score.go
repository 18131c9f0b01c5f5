package planner

import (
	"strings"
	"time"
)

// varietyPenalty is subtracted from a recipe's score per prior use in the
// plan being built.
const varietyPenalty = 0.35

// resolveMode maps a mode onto the generic weight dials. Custom mode takes
// the caller's weights and constraints; the named modes are fixed presets.
func resolveMode(mode Mode, w *Weights, c *Constraints) (Weights, Constraints) {
	var weights Weights
	var constraints Constraints

	switch mode {
	case ModeCostOptimized:
		weights = Weights{Cost: 1, Variety: 0.2}
	case ModeBalancedNutrition:
		weights = Weights{Health: 1, Variety: 0.3}
	case ModeVariety:
		weights = Weights{Variety: 1, Health: 0.2}
	case ModeSeasonal:
		// Season match dominates via the seasonal boost in score()
		weights = Weights{Variety: 0.3, Health: 0.2}
	case ModeInventoryBased:
		// Stock coverage dominates via the inventory boost in score()
		weights = Weights{Cost: 0.2, Variety: 0.2}
	case ModeCustom:
		if w != nil {
			weights = *w
		}
		if c != nil {
			constraints = *c
		}
		if weights == (Weights{}) {
			weights = Weights{Cost: 1, Health: 1, Variety: 1, Speed: 1}
		}
	default:
		weights = Weights{Health: 1, Variety: 0.3}
	}

	return weights, constraints
}

// filterRecipes drops recipes the constraints forbid.
func filterRecipes(recipes []recipe, c Constraints) []recipe {
	out := make([]recipe, 0, len(recipes))
	for _, r := range recipes {
		if c.MaxCostPerMeal > 0 && r.CostPerServ > c.MaxCostPerMeal {
			continue
		}
		if usesExcluded(r, c.ExcludedIngredients) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func usesExcluded(r recipe, excluded []string) bool {
	for _, ex := range excluded {
		ex = strings.ToLower(strings.TrimSpace(ex))
		if ex == "" {
			continue
		}
		for _, ing := range r.Ingredients {
			if strings.Contains(strings.ToLower(ing), ex) {
				return true
			}
		}
	}
	return false
}

type scorer struct {
	recipes []recipe
	stock   map[string]bool
	weights Weights
	mode    Mode
	maxCost float64
	maxPrep float64
	season  string
}

func newScorer(recipes []recipe, stock map[string]bool, weights Weights, mode Mode) *scorer {
	s := &scorer{
		recipes: recipes,
		stock:   stock,
		weights: normalize(weights),
		mode:    mode,
		season:  currentSeason(time.Now()),
	}
	for _, r := range recipes {
		if r.CostPerServ > s.maxCost {
			s.maxCost = r.CostPerServ
		}
		if r.PrepMinutes > s.maxPrep {
			s.maxPrep = r.PrepMinutes
		}
	}
	return s
}

// best returns the highest-scoring recipe given how often each recipe was
// already used, or nil when no recipes exist.
func (s *scorer) best(usage map[int64]int) *recipe {
	var best *recipe
	bestScore := 0.0
	for i := range s.recipes {
		r := &s.recipes[i]
		score := s.score(r) - varietyPenalty*s.weightedUsage(usage[r.ID])
		if best == nil || score > bestScore {
			best = r
			bestScore = score
		}
	}
	return best
}

func (s *scorer) weightedUsage(count int) float64 {
	// Variety weight scales how hard repeats are punished, but repeats are
	// always punished at least a little so plans do not degenerate into one
	// dish.
	w := s.weights.Variety
	if w < 0.2 {
		w = 0.2
	}
	return w * float64(count)
}

func (s *scorer) score(r *recipe) float64 {
	score := 0.0

	if s.maxCost > 0 {
		score += s.weights.Cost * (1 - r.CostPerServ/s.maxCost)
	}
	score += s.weights.Health * clamp01(r.HealthScore/10)
	if s.maxPrep > 0 {
		score += s.weights.Speed * (1 - r.PrepMinutes/s.maxPrep)
	}

	switch s.mode {
	case ModeSeasonal:
		if matchesSeason(r.Season, s.season) {
			score += 1.0
		}
	case ModeInventoryBased:
		score += 1.0 * inventoryCoverage(*r, s.stock)
	}

	return score
}

func normalize(w Weights) Weights {
	sum := w.Cost + w.Health + w.Variety + w.Speed
	if sum <= 0 {
		return Weights{Health: 1}
	}
	return Weights{
		Cost:    w.Cost / sum,
		Health:  w.Health / sum,
		Variety: w.Variety / sum,
		Speed:   w.Speed / sum,
	}
}

func inventoryCoverage(r recipe, stock map[string]bool) float64 {
	if len(r.Ingredients) == 0 || len(stock) == 0 {
		return 0
	}
	matched := 0
	for _, ing := range r.Ingredients {
		if stock[strings.ToLower(ing)] {
			matched++
		}
	}
	return float64(matched) / float64(len(r.Ingredients))
}

func matchesSeason(recipeSeason, current string) bool {
	recipeSeason = strings.ToLower(strings.TrimSpace(recipeSeason))
	return recipeSeason == "" || recipeSeason == "all" || recipeSeason == current
}

func currentSeason(now time.Time) string {
	switch now.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
