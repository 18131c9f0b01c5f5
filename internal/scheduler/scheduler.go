package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/mensahub/mensa/internal/config"
	"github.com/mensahub/mensa/internal/database"
	"github.com/mensahub/mensa/internal/notification"
	"github.com/mensahub/mensa/internal/planner"
	"github.com/mensahub/mensa/internal/web/live"
)

// Default schedules, overridable through settings.
const (
	defaultOptimizeSpec = "0 3 * * *" // nightly
	defaultVacuumSpec   = "0 4 * * 0" // sunday morning
	defaultLowStockSpec = "0 * * * *" // hourly
	defaultPlanSpec     = "0 5 * * 1" // monday morning
)

// Scheduler runs the recurring background jobs: database maintenance,
// low-stock checks and weekly meal-plan pre-generation.
type Scheduler struct {
	db       *database.DB
	loader   *config.Loader
	planner  *planner.Planner
	broker   *live.Broker
	notifier *notification.Manager
	cron     *cron.Cron
}

// New creates a scheduler. broker and notifier may be nil.
func New(db *database.DB, pl *planner.Planner, broker *live.Broker, notifier *notification.Manager) *Scheduler {
	return &Scheduler{
		db:       db,
		loader:   config.NewLoader(db),
		planner:  pl,
		broker:   broker,
		notifier: notifier,
		cron:     cron.New(),
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	ctx := context.Background()

	jobs := []struct {
		settingKey  string
		defaultSpec string
		run         func()
	}{
		{"schedule.optimize", defaultOptimizeSpec, s.runOptimize},
		{"schedule.vacuum", defaultVacuumSpec, s.runVacuum},
		{"schedule.low_stock", defaultLowStockSpec, s.runLowStockCheck},
		{"schedule.plan_generation", defaultPlanSpec, s.runPlanGeneration},
	}

	for _, job := range jobs {
		spec := s.loader.String(ctx, job.settingKey, job.defaultSpec)
		if _, err := s.cron.AddFunc(spec, job.run); err != nil {
			return fmt.Errorf("invalid cron spec %q for %s: %w", spec, job.settingKey, err)
		}
	}

	s.cron.Start()
	log.Info().Msg("Scheduler started")
	return nil
}

// Stop stops the cron runner and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runOptimize() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.db.Optimize(ctx); err != nil {
		log.Error().Err(err).Msg("Scheduled optimize failed")
		return
	}
	log.Debug().Msg("Scheduled optimize complete")
}

func (s *Scheduler) runVacuum() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if err := s.db.Vacuum(ctx); err != nil {
		log.Error().Err(err).Msg("Scheduled vacuum failed")
		return
	}
	log.Debug().Msg("Scheduled vacuum complete")
}

// runLowStockCheck flags inventory items that fell below their minimum and
// tells the tenant's live clients and the notifier.
func (s *Scheduler) runLowStockCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	tenants, err := s.db.ListTenants(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Low-stock check failed to list tenants")
		return
	}

	for _, tenant := range tenants {
		rows, err := s.db.Query(ctx, `
			SELECT id, name, quantity, min_quantity FROM inventory_items
			WHERE tenant_id = ? AND min_quantity > 0 AND quantity < min_quantity
		`, tenant.TenantID)
		if err != nil {
			log.Error().Err(err).Str("tenant", tenant.TenantID).Msg("Low-stock query failed")
			continue
		}
		if len(rows) == 0 {
			continue
		}

		items := make([]string, 0, len(rows))
		for _, row := range rows {
			if name, ok := row["name"].(string); ok {
				items = append(items, name)
			}
		}

		log.Info().Str("tenant", tenant.TenantID).Int("items", len(items)).Msg("Low stock detected")

		if s.broker != nil {
			s.broker.Broadcast(tenant.TenantID, live.Event{
				Type:     live.EventLowStock,
				Resource: "inventory",
				Data:     map[string]any{"items": items},
			})
		}
		if s.notifier != nil {
			s.notifier.Notify(notification.Event{
				Type:     notification.EventLowStock,
				TenantID: tenant.TenantID,
				Title:    "Low stock",
				Message:  fmt.Sprintf("%d items below minimum quantity", len(items)),
				Fields:   map[string]string{"items": fmt.Sprint(items)},
			})
		}
	}
}

// runPlanGeneration pre-generates next week's plan for tenants that opted in
// via the planner.auto_generate setting.
func (s *Scheduler) runPlanGeneration() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if !s.loader.Bool(ctx, "planner.auto_generate", false) {
		return
	}
	mode := planner.Mode(s.loader.String(ctx, "planner.auto_mode", string(planner.ModeBalancedNutrition)))
	req := planner.Request{Mode: mode}

	// Custom mode takes its dials from JSON settings.
	if mode == planner.ModeCustom {
		var weights planner.Weights
		if err := s.db.GetSettingJSON(ctx, "planner.custom_weights", &weights); err != nil {
			log.Warn().Err(err).Msg("Invalid planner.custom_weights setting")
		} else {
			req.Weights = &weights
		}
		var constraints planner.Constraints
		if err := s.db.GetSettingJSON(ctx, "planner.custom_constraints", &constraints); err != nil {
			log.Warn().Err(err).Msg("Invalid planner.custom_constraints setting")
		} else {
			req.Constraints = &constraints
		}
	}

	tenants, err := s.db.ListTenants(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Plan generation failed to list tenants")
		return
	}

	_, week := time.Now().AddDate(0, 0, 7).ISOWeek()
	req.WeekNumber = week

	for _, tenant := range tenants {
		plan, _, err := s.planner.Suggest(ctx, tenant.TenantID, req)
		if err != nil {
			log.Warn().Err(err).Str("tenant", tenant.TenantID).Msg("Plan generation skipped")
			continue
		}
		if _, err := s.planner.SavePlan(ctx, tenant.TenantID, plan); err != nil {
			log.Error().Err(err).Str("tenant", tenant.TenantID).Msg("Failed to save generated plan")
			continue
		}

		log.Info().Str("tenant", tenant.TenantID).Int("week", week).Msg("Pre-generated weekly meal plan")

		if s.broker != nil {
			s.broker.Broadcast(tenant.TenantID, live.Event{
				Type:     live.EventMealPlanGenerated,
				Resource: "meal_plans",
				Data:     map[string]any{"weekNumber": week, "mode": string(mode)},
			})
		}
		if s.notifier != nil {
			s.notifier.NotifySimple(notification.EventPlanGenerated, tenant.TenantID,
				"Meal plan ready", fmt.Sprintf("Plan for week %d generated", week))
		}
	}
}
