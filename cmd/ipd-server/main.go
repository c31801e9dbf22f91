package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/ipd/internal/config"
	"github.com/ehr/ipd/internal/domain/admission"
	"github.com/ehr/ipd/internal/domain/bed"
	"github.com/ehr/ipd/internal/domain/clinical"
	"github.com/ehr/ipd/internal/domain/identity"
	"github.com/ehr/ipd/internal/domain/medication"
	"github.com/ehr/ipd/internal/domain/reporting"
	"github.com/ehr/ipd/internal/platform/auth"
	"github.com/ehr/ipd/internal/platform/db"
	"github.com/ehr/ipd/internal/platform/hipaa"
	"github.com/ehr/ipd/internal/platform/logging"
	"github.com/ehr/ipd/internal/platform/middleware"
	"github.com/ehr/ipd/internal/platform/notification"
	"github.com/ehr/ipd/internal/platform/telemetry"
	"github.com/ehr/ipd/migrations"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ipd-server",
		Short:        "Inpatient admission and bed management API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(bedsCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the IPD API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationSource prefers an on-disk directory so operators can ship extra
// migrations without rebuilding; otherwise the embedded set is used.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

// openPool loads config and connects. The caller closes the pool.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func tenantOrDefault(cmd *cobra.Command, cfg *config.Config) string {
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant == "" {
		tenant = cfg.DefaultTenant
	}
	return tenant
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			tenant := tenantOrDefault(cmd, cfg)
			schema, err := db.SchemaFor(tenant)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			if err := db.CreateTenantSchema(ctx, pool, tenant, nil); err != nil {
				return err
			}
			count, err := db.NewMigrator(pool, migrationSource(dir)).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema, err := db.SchemaFor(tenantOrDefault(cmd, cfg))
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			statuses, err := db.NewMigrator(pool, migrationSource(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply all migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Creating tenant schema: tenant_%s\n", name)
			if err := db.CreateTenantSchema(ctx, pool, name, migrationSource(dir)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("dir", "", "Path to migrations directory (defaults to the embedded set)")

	cmd.AddCommand(createCmd)
	return cmd
}

func bedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "beds",
		Short: "Inspect the bed inventory",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List beds with their ward category and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			categoryFlag, _ := cmd.Flags().GetString("category")
			var filter bed.Filter
			if categoryFlag != "" {
				category, err := bed.ParseWardCategory(categoryFlag)
				if err != nil {
					return err
				}
				filter.Category = category
			}

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := bed.NewService(bed.NewRepo(pool))
			return db.WithTenantConn(ctx, pool, tenantOrDefault(cmd, cfg), func(ctx context.Context) error {
				beds, err := svc.ListBeds(ctx, filter)
				if err != nil {
					return err
				}
				printBeds(cmd.OutOrStdout(), beds)
				return nil
			})
		},
	}
	listCmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	listCmd.Flags().String("category", "", "Only list beds in this ward category")

	cmd.AddCommand(listCmd)
	return cmd
}

func printBeds(w io.Writer, beds []*bed.Bed) {
	fmt.Fprintf(w, "%-12s %-10s %-10s %-10s %s\n", "BED", "ROOM", "WARD", "CATEGORY", "STATUS")
	for _, b := range beds {
		fmt.Fprintf(w, "%-12s %-10s %-10s %-10s %s\n", b.Code, b.RoomCode, b.WardCode, b.Category, b.Status)
	}
	fmt.Fprintf(w, "%d bed(s)\n", len(beds))
}

// accessRecorder persists request-level access entries to the audit table.
func accessRecorder(sink hipaa.Sink) middleware.AccessRecorder {
	return middleware.AccessRecorderFunc(func(ctx context.Context, entry middleware.AccessEntry) error {
		return sink.LogEvent(ctx, accessEvent(entry))
	})
}

func accessEvent(entry middleware.AccessEntry) *hipaa.Event {
	evt := hipaa.NewEvent(entry.UserID, "ACCESS_"+strings.ToUpper(entry.Action), entry.Resource, entry.ResourceID, map[string]any{
		"method":     entry.Method,
		"path":       entry.Path,
		"status":     entry.StatusCode,
		"ip_address": entry.IPAddress,
		"user_agent": entry.UserAgent,
		"request_id": entry.RequestID,
	})
	evt.ComplianceFlags = append(evt.ComplianceFlags, hipaa.FlagAccess)
	evt.RecordedAt = entry.Timestamp
	return evt
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Console:    cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.New()

	// Audit sink
	auditLogger := hipaa.NewAuditLogger(pool)
	auditRecorder := hipaa.NewRecorder(auditLogger, logger).OnFailure(metrics.AuditFailed)

	// Alert publishers
	var publishers []notification.Publisher
	if cfg.RedisURL != "" {
		rdb, err := notification.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		defer rdb.Close()
		publishers = append(publishers, notification.NewRedisStreamPublisher(rdb, cfg.AlertStream))
		logger.Info().Str("stream", cfg.AlertStream).Msg("clinical alerts will be published to redis")
	}
	if cfg.MQTTBroker != "" {
		client, err := notification.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID, 10*time.Second)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer client.Disconnect(250)
		publishers = append(publishers, notification.NewMQTTPublisher(client, cfg.MQTTAlertTopic))
		logger.Info().Str("topic", cfg.MQTTAlertTopic).Msg("clinical alerts will be published to mqtt")
	}
	alerts := notification.NewFanout(logger, publishers...).OnFailure(metrics.PublishFailed)

	// External collaborators
	var patients identity.Directory = identity.NewDirectory(pool)
	if cfg.PatientDirectoryURL != "" {
		patients = identity.NewHTTPDirectory(cfg.PatientDirectoryURL)
		logger.Info().Str("url", cfg.PatientDirectoryURL).Msg("using remote patient directory")
	}
	var prescriptions medication.PrescriptionService = medication.NewStore(pool)
	if cfg.PharmacyURL != "" {
		prescriptions = medication.NewPharmacyClient(cfg.PharmacyURL)
		logger.Info().Str("url", cfg.PharmacyURL).Msg("using remote pharmacy; discharge prescriptions are issued after commit")
	}

	// Domain services
	tx := db.NewTransactor(pool)
	bedRepo := bed.NewRepo(pool)

	bedSvc := bed.NewService(bedRepo)

	admissionSvc := admission.NewService(admission.NewRepo(pool), bedRepo, patients, tx, prescriptions, logger)
	admissionSvc.SetAuditRecorder(auditRecorder)
	admissionSvc.SetMetrics(metrics)

	clinicalRec := clinical.NewRecorder(clinical.NewRepoPG(pool), tx, logger)
	clinicalRec.SetAuditRecorder(auditRecorder)
	clinicalRec.SetAlertPublisher(alerts)
	clinicalRec.SetMetrics(metrics)

	reportSvc := reporting.NewService(reporting.NewRepoPG(pool))
	seedOccupancy(ctx, pool, reportSvc, metrics, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// Health and metrics sit outside authentication.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	// API group
	authMW := auth.DevAuthMiddleware()
	if cfg.AuthSigningKey != "" {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	rateLimitCfg.BurstSize = cfg.RateLimitBurst

	ipd := e.Group("/api/v1/ipd",
		authMW,
		middleware.RateLimit(rateLimitCfg),
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		middleware.Audit(logger, accessRecorder(auditLogger)),
	)

	bed.NewHandler(bedSvc).RegisterRoutes(ipd)
	admission.NewHandler(admissionSvc).RegisterRoutes(ipd)
	clinical.NewHandler(clinicalRec).RegisterRoutes(ipd)
	reporting.NewHandler(reportSvc).RegisterRoutes(ipd)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Int("alert_publishers", alerts.Len()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// seedOccupancy primes the occupied-beds gauge for every tenant schema so
// it does not drift from zero after a restart. A tenant that cannot be read
// is skipped.
func seedOccupancy(ctx context.Context, pool *pgxpool.Pool, svc *reporting.Service, metrics *telemetry.Metrics, logger zerolog.Logger) {
	tenants, err := db.ListTenants(ctx, pool)
	if err != nil {
		logger.Warn().Err(err).Msg("could not list tenants for occupied-beds gauge")
		return
	}
	for _, tenant := range tenants {
		err := db.WithTenantConn(ctx, pool, tenant, func(ctx context.Context) error {
			occupied, err := svc.OccupiedByCategory(ctx)
			if err != nil {
				return err
			}
			metrics.SetOccupiedBeds(tenant, occupied)
			return nil
		})
		if err != nil {
			logger.Warn().Err(err).Str("tenant", tenant).Msg("could not seed occupied-beds gauge")
		}
	}
}
