package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sort"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mensahub/mensa/internal/auth"
	"github.com/mensahub/mensa/internal/config"
	"github.com/mensahub/mensa/internal/database"
	"github.com/mensahub/mensa/internal/importer"
	"github.com/mensahub/mensa/internal/logging"
	"github.com/mensahub/mensa/internal/notification"
	"github.com/mensahub/mensa/internal/scheduler"
	"github.com/mensahub/mensa/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port        int
	bind        string
	allowSubnet string
	dbPath      string
	dropDir     string
	verbosity   int

	// Timeout flags (advanced)
	statementTimeout time.Duration
	httpTimeout      time.Duration
	websocketPing    time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mensa",
		Short: "Mensa - Food service procurement server",
		Long:  `Mensa is a multi-tenant procurement server for food services: suppliers, product catalogs, recipes, inventory, orders and weekly meal planning.`,
		RunE:  run,
	}

	// Flags
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	rootCmd.Flags().StringVarP(&dbPath, "db", "d", "./mensa.db", "SQLite database path (or set DB_PATH env var)")
	rootCmd.Flags().StringVar(&dropDir, "drop-dir", "", "Directory watched for supplier catalog files (disabled when empty)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	// Advanced timeout flags
	rootCmd.Flags().DurationVar(&statementTimeout, "statement-timeout", 30*time.Second, "Timeout applied to individual database statements")
	rootCmd.Flags().DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "Timeout for HTTP client requests to external services")
	rootCmd.Flags().DurationVar(&websocketPing, "websocket-ping", 30*time.Second, "Interval between WebSocket keepalive pings")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mensa %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(settingsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Check for PORT env var if flag not set
	if port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			if _, err := fmt.Sscanf(envPort, "%d", &port); err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", envPort, err)
			}
		}
	}

	// Check for DB_PATH env var if using default
	if dbPath == "./mensa.db" {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbPath = envDB
		}
	}

	// Validate port
	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}

	// Validate bind address if provided
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	// Validate and parse allow-subnet if provided
	var allowedNet *net.IPNet
	if allowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(allowSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
		}
		allowedNet = parsedNet
	}

	// Setup logging
	logging.Apply(verbosity, logging.FilePathForDB(dbPath))

	// Configure global timeouts
	config.SetGlobalTimeouts(&config.TimeoutConfig{
		Statement:     statementTimeout,
		HTTPClient:    httpTimeout,
		WebSocketPing: websocketPing,
	})

	// Warn if binding to all interfaces without an allow list
	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("database", dbPath).
		Msg("Starting Mensa")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()
	db.SetStatementTimeout(statementTimeout)

	// Run migrations
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Create web server with bind address and allowed subnet
	server := web.NewServer(db, port, bind, allowedNet)

	// Initialize notification manager
	notificationMgr := notification.NewManager()
	defer notificationMgr.Stop()
	server.SetNotificationManager(notificationMgr)

	// Register webhook provider when a URL is configured
	if webhookURL, _ := db.GetSetting(ctx, "notify.webhook_url"); webhookURL != "" {
		notificationMgr.RegisterProvider("webhook", notification.NewWebhookProvider(notification.WebhookConfig{
			URL:     webhookURL,
			Enabled: true,
		}))
	}

	// Initialize catalog import watcher
	if dropDir != "" {
		importMgr, err := importer.New(db, server.Broker(), dropDir)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize catalog import watcher")
		} else {
			defer importMgr.Stop()
			importMgr.SetNotificationManager(notificationMgr)
			if started, err := importMgr.Start(); err != nil {
				log.Warn().Err(err).Msg("Failed to start catalog import watcher")
			} else if !started {
				log.Debug().Msg("Catalog import watcher not started")
			}
		}
	}

	// Initialize scheduler (nightly optimize, hourly low-stock, weekly plans)
	sched := scheduler.New(db, server.Planner(), server.Broker(), notificationMgr)
	if err := sched.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start scheduler")
	}
	defer sched.Stop()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Mensa stopped")
	return nil
}

// tenantCmd manages tenants without going through the HTTP API.
func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	create := &cobra.Command{
		Use:   "create <tenant-id> <name>",
		Short: "Create a tenant and print its API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(ctx context.Context, db *database.DB) error {
				tenant, err := db.CreateTenant(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("failed to create tenant: %w", err)
				}

				key, err := auth.GenerateAPIKey()
				if err != nil {
					return err
				}
				hash, err := auth.HashAPIKey(key)
				if err != nil {
					return err
				}
				if err := db.SetTenantAPIKeyHash(ctx, tenant.TenantID, hash); err != nil {
					return err
				}

				fmt.Printf("Created tenant %s (%s)\n", tenant.TenantID, tenant.Name)
				fmt.Printf("API key (store it now, it is not shown again): %s\n", key)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(ctx context.Context, db *database.DB) error {
				tenants, err := db.ListTenants(ctx)
				if err != nil {
					return err
				}
				for _, t := range tenants {
					locked := " "
					if t.APIKeyHash != "" {
						locked = "*"
					}
					fmt.Printf("%s %-20s %s\n", locked, t.TenantID, t.Name)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(create, list)
	cmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "./mensa.db", "SQLite database path")
	return cmd
}

// settingsCmd manages the server settings that drive the scheduler, planner
// and notification configuration (schedule.*, planner.*, notify.*).
func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage server settings",
	}

	var asJSON bool
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(ctx context.Context, db *database.DB) error {
				if asJSON {
					var v any
					if err := json.Unmarshal([]byte(args[1]), &v); err != nil {
						return fmt.Errorf("invalid JSON value: %w", err)
					}
					return db.SetSettingJSON(ctx, args[0], v)
				}
				return db.SetSetting(ctx, args[0], args[1])
			})
		},
	}
	set.Flags().BoolVar(&asJSON, "json", false, "Validate and store the value as JSON")

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(ctx context.Context, db *database.DB) error {
				value, err := db.GetSetting(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println(value)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(ctx context.Context, db *database.DB) error {
				settings, err := db.GetAllSettings(ctx)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(settings))
				for k := range settings {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("%s=%s\n", k, settings[k])
				}
				return nil
			})
		},
	}

	unset := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(ctx context.Context, db *database.DB) error {
				return db.DeleteSetting(ctx, args[0])
			})
		},
	}

	cmd.AddCommand(set, get, list, unset)
	cmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "./mensa.db", "SQLite database path")
	return cmd
}

func withDatabase(fn func(context.Context, *database.DB) error) error {
	logging.Apply(verbosity, "")

	db, err := database.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return fn(ctx, db)
}
