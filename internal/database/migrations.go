package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Migrate applies all pending schema migrations. Each migration runs inside
// its own transaction; a failing statement aborts startup with no partial
// apply.
func (db *DB) Migrate(ctx context.Context) error {
	log.Info().Msg("Running database migrations")

	_, err := db.Run(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	row, err := db.Get(ctx, "SELECT COALESCE(MAX(version), 0) AS version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	currentVersion, _ := row["version"].(int64)

	log.Debug().Int64("current_version", currentVersion).Msg("Current schema version")

	for _, migration := range migrations {
		if int64(migration.Version) > currentVersion {
			log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applying migration")

			if err := db.Transaction(ctx, func(tx *Tx) error {
				// Execute statement by statement so a failure names the
				// exact statement that broke.
				statements := splitSQLStatements(migration.SQL)
				for i, stmt := range statements {
					if _, err := tx.Run(ctx, stmt); err != nil {
						return fmt.Errorf("migration %d statement %d failed: %w", migration.Version, i+1, err)
					}
				}

				if _, err := tx.Run(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
					return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
				}

				return nil
			}); err != nil {
				return err
			}
		}
	}

	log.Info().Msg("Database migrations complete")
	return nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// splitSQLStatements splits a SQL string into individual statements.
// It handles comments and only returns non-empty statements.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	lines := strings.Split(sql, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		// Skip empty lines and comments
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		// Check if line ends with semicolon (statement complete)
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	// Handle any remaining content without trailing semicolon
	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			-- Tenants sharing the database; tenant_id is the slug sent in
			-- the x-tenant-id header
			CREATE TABLE tenants (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant_id TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				api_key_hash TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Suppliers a kitchen orders from
			CREATE TABLE suppliers (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				contact_email TEXT,
				phone TEXT,
				address TEXT,
				delivery_days TEXT,
				rating REAL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Products purchasable from suppliers
			CREATE TABLE products (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant_id TEXT NOT NULL,
				supplier_id INTEGER REFERENCES suppliers(id) ON DELETE SET NULL,
				name TEXT NOT NULL,
				category TEXT,
				unit TEXT,
				price REAL NOT NULL DEFAULT 0,
				article_number TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Recipes and their ingredient lines
			CREATE TABLE recipes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				category TEXT,
				servings INTEGER DEFAULT 1,
				prep_time_minutes INTEGER DEFAULT 0,
				cost_per_serving REAL DEFAULT 0,
				health_score REAL DEFAULT 0,
				season TEXT,
				instructions TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE recipe_ingredients (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant_id TEXT NOT NULL,
				recipe_id INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				quantity REAL DEFAULT 0,
				unit TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Stock on hand
			CREATE TABLE inventory_items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				quantity REAL NOT NULL DEFAULT 0,
				unit TEXT,
				min_quantity REAL DEFAULT 0,
				location TEXT,
				expires_at TIMESTAMP,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Purchase orders
			CREATE TABLE orders (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant_id TEXT NOT NULL,
				supplier_id INTEGER REFERENCES suppliers(id) ON DELETE SET NULL,
				status TEXT NOT NULL DEFAULT 'draft',
				total_cost REAL DEFAULT 0,
				delivery_date TIMESTAMP,
				notes TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE order_items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant_id TEXT NOT NULL,
				order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				product_id INTEGER REFERENCES products(id) ON DELETE SET NULL,
				name TEXT NOT NULL,
				quantity REAL NOT NULL DEFAULT 1,
				unit_price REAL NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Weekly meal plans and their calendar entries
			CREATE TABLE meal_plans (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				week_number INTEGER NOT NULL DEFAULT 1,
				year INTEGER NOT NULL DEFAULT 0,
				mode TEXT,
				total_estimated_cost REAL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE meal_plan_entries (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tenant_id TEXT NOT NULL,
				meal_plan_id INTEGER NOT NULL REFERENCES meal_plans(id) ON DELETE CASCADE,
				day_of_week INTEGER NOT NULL,
				slot TEXT NOT NULL DEFAULT 'lunch',
				recipe_id INTEGER REFERENCES recipes(id) ON DELETE SET NULL,
				recipe_name TEXT,
				estimated_cost REAL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Application settings (key-value)
			CREATE TABLE settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX idx_suppliers_tenant ON suppliers(tenant_id);
			CREATE INDEX idx_products_tenant ON products(tenant_id);
			CREATE INDEX idx_products_supplier ON products(supplier_id);
			CREATE INDEX idx_recipes_tenant ON recipes(tenant_id);
			CREATE INDEX idx_recipe_ingredients_recipe ON recipe_ingredients(recipe_id);
			CREATE INDEX idx_inventory_tenant ON inventory_items(tenant_id);
			CREATE INDEX idx_orders_tenant ON orders(tenant_id);
			CREATE INDEX idx_order_items_order ON order_items(order_id);
			CREATE INDEX idx_meal_plans_tenant ON meal_plans(tenant_id);
			CREATE INDEX idx_meal_plan_entries_plan ON meal_plan_entries(meal_plan_id);
		`,
	},
	{
		Version: 2,
		Name:    "product_unique_article_number",
		SQL: `
			-- Catalog imports upsert by article number within a tenant
			CREATE UNIQUE INDEX idx_products_article
				ON products(tenant_id, supplier_id, article_number)
				WHERE article_number IS NOT NULL;
		`,
	},
}
