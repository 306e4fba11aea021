package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/domain/booking"
	"github.com/docbook/docbook/internal/domain/directory"
	"github.com/docbook/docbook/internal/domain/identity"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
	"github.com/docbook/docbook/internal/platform/middleware"
	"github.com/docbook/docbook/internal/platform/telemetry"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	revocationSweep = 5 * time.Minute
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docbook-server",
		Short: "Doctor appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(doctorCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// app holds the domain services shared by the server and the CLI commands.
type app struct {
	users     identity.UserRepository
	identity  *identity.Service
	directory *directory.Service
	booking   *booking.Service
}

func newApp(pool *pgxpool.Pool, issuer *auth.Issuer, revoked auth.RevocationStore) *app {
	users := identity.NewUserRepoPG(pool)
	doctors := directory.NewDoctorRepoPG(pool)

	directorySvc := directory.NewService(doctors)
	return &app{
		users:     users,
		identity:  identity.NewService(users, db.NewTransactor(pool), directorySvc, auth.NewPasswordHasher(), issuer, revoked),
		directory: directorySvc,
		booking:   booking.NewService(booking.NewAppointmentRepoPG(pool), doctors),
	}
}

func (a *app) setRecorder(m *telemetry.Metrics) {
	a.identity.SetRecorder(m)
	a.directory.SetRecorder(m)
	a.booking.SetRecorder(m)
}

// asAdmin resolves the account a CLI command acts for. It must be an admin.
func (a *app) asAdmin(ctx context.Context, email string) (identity.Principal, error) {
	if email == "" {
		return identity.Principal{}, fmt.Errorf("--as is required")
	}
	u, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		return identity.Principal{}, fmt.Errorf("look up %s: %w", email, err)
	}
	if u.Role != identity.RoleAdmin {
		return identity.Principal{}, fmt.Errorf("%s is not an admin", email)
	}
	return identity.Principal{UserID: u.ID, Role: u.Role}, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// openRevocationStore uses Redis when REDIS_URL is set and reachable, and
// an in-process store otherwise.
func openRevocationStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (auth.RevocationStore, func()) {
	if cfg.RedisURL != "" {
		store, err := auth.NewRedisRevocationStore(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info().Msg("using redis for session revocation")
			return store, func() { _ = store.Close() }
		}
		logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory session revocation")
	}
	store := auth.NewMemoryRevocationStore(revocationSweep)
	return store, store.Close
}

func newEcho(cfg *config.Config, logger zerolog.Logger, a *app, metrics *telemetry.Metrics,
	issuer *auth.Issuer, revoked auth.RevocationStore, pinger db.Pinger, stats func() *db.PoolStats) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator:        uuid.NewString,
		RequestIDHandler: middleware.RequestIDHandler,
	}))
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(auth.Authenticate(issuer, revoked, logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pinger, stats))
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	if cfg.RateLimitRPS > 0 {
		apiV1.Use(echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
			Store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimitRPS),
				Burst:     cfg.RateLimitBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		}))
	}

	identity.NewHandler(a.identity).RegisterRoutes(apiV1)
	directory.NewHandler(a.directory).RegisterRoutes(apiV1)
	booking.NewHandler(a.booking).RegisterRoutes(apiV1)

	return e
}

// loadConfig loads and validates the configuration shared by every command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	revoked, closeRevoked := openRevocationStore(ctx, cfg, logger)
	defer closeRevoked()

	stats := func() *db.PoolStats { return db.GetPoolStats(pool) }
	metrics := telemetry.New()
	metrics.RegisterPool(stats)

	issuer := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL)
	a := newApp(pool, issuer, revoked)
	a.setRecorder(metrics)

	e := newEcho(cfg, logger, a, metrics, issuer, revoked, pool, stats)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// withApp loads config, opens the pool and runs fn against a fresh app.
// CLI commands revoke nothing, so they get an in-process store.
func withApp(fn func(ctx context.Context, a *app, pool *pgxpool.Pool, cfg *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	revoked := auth.NewMemoryRevocationStore(revocationSweep)
	defer revoked.Close()

	issuer := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL)
	return fn(ctx, newApp(pool, issuer, revoked), pool, cfg)
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
			return withApp(func(ctx context.Context, _ *app, pool *pgxpool.Pool, cfg *config.Config) error {
				if dir == "" {
					dir = cfg.MigrationsDir
				}
				count, err := db.NewMigrator(pool, dir).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withApp(func(ctx context.Context, _ *app, pool *pgxpool.Pool, cfg *config.Config) error {
				if dir == "" {
					dir = cfg.MigrationsDir
				}
				statuses, err := db.NewMigrator(pool, dir).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatuses(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatuses(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			return withApp(func(ctx context.Context, a *app, _ *pgxpool.Pool, _ *config.Config) error {
				u, err := a.identity.CreateAdmin(ctx, email, password, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	createCmd.Flags().String("email", "", "Admin email")
	createCmd.Flags().String("password", "", "Admin password")
	createCmd.Flags().String("name", "", "Admin full name")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("password")
	_ = createCmd.MarkFlagRequired("name")
	cmd.AddCommand(createCmd)

	return cmd
}

func doctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Review doctor registrations",
	}
	cmd.PersistentFlags().String("as", "", "Email of the admin performing the command")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List doctors, optionally by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			as, _ := cmd.Flags().GetString("as")
			rawStatus, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			var status directory.DoctorStatus
			if rawStatus != "" {
				st, err := directory.ParseDoctorStatus(rawStatus)
				if err != nil {
					return err
				}
				status = st
			}
			return withApp(func(ctx context.Context, a *app, _ *pgxpool.Pool, _ *config.Config) error {
				p, err := a.asAdmin(ctx, as)
				if err != nil {
					return err
				}
				doctors, total, err := a.directory.ListByStatus(ctx, p, status, limit, 0)
				if err != nil {
					return err
				}
				printDoctors(cmd.OutOrStdout(), doctors, total)
				return nil
			})
		},
	}
	listCmd.Flags().String("status", "pending", "pending, approved, rejected, or empty for all")
	listCmd.Flags().Int("limit", 100, "Maximum number of doctors to show")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(reviewCmd("approve", directory.StatusApproved))
	cmd.AddCommand(reviewCmd("reject", directory.StatusRejected))
	return cmd
}

func reviewCmd(use string, status directory.DoctorStatus) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Mark a doctor as %s", status),
		RunE: func(cmd *cobra.Command, args []string) error {
			as, _ := cmd.Flags().GetString("as")
			rawID, _ := cmd.Flags().GetString("id")
			id, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("invalid --id %q: %w", rawID, err)
			}
			return withApp(func(ctx context.Context, a *app, _ *pgxpool.Pool, _ *config.Config) error {
				p, err := a.asAdmin(ctx, as)
				if err != nil {
					return err
				}
				d, err := a.directory.SetStatus(ctx, p, id, status)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Doctor %s (%s) is now %s\n", d.FullName, d.ID, d.Status)
				return nil
			})
		},
	}
	cmd.Flags().String("id", "", "Doctor id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func printDoctors(w io.Writer, doctors []*directory.Doctor, total int) {
	fmt.Fprintf(w, "%-36s %-24s %-20s %-16s %s\n", "ID", "NAME", "SPECIALTY", "LOCATION", "STATUS")
	for _, d := range doctors {
		fmt.Fprintf(w, "%-36s %-24s %-20s %-16s %s\n", d.ID, d.FullName, d.Specialty, d.Location, d.Status)
	}
	fmt.Fprintf(w, "%d of %d doctor(s)\n", len(doctors), total)
}
