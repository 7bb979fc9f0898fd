package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/medpay/medpay/internal/config"
	"github.com/medpay/medpay/internal/domain/billing"
	"github.com/medpay/medpay/internal/domain/catalog"
	"github.com/medpay/medpay/internal/domain/patient"
	"github.com/medpay/medpay/internal/platform/auth"
	"github.com/medpay/medpay/internal/platform/db"
	"github.com/medpay/medpay/internal/platform/metrics"
	"github.com/medpay/medpay/internal/platform/middleware"
	"github.com/medpay/medpay/migrations"
)

func init() {
	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "medpay-server",
		Short: "Clinical billing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the billing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, schema, err := openStore(ctx, dir)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Running migrations on schema: %s\n", schema.Name)
			count, err := db.NewMigrator(pool, schema).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, schema, err := openStore(ctx, dir)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, schema).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema.Name)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

// migrationSource returns the embedded migrations unless dir overrides them.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openStore(ctx context.Context, dir string) (*pgxpool.Pool, db.Schema, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, db.Schema{}, err
	}
	schema, err := db.NewSchema(cfg.DBSchema, migrationSource(dir))
	if err != nil {
		return nil, db.Schema{}, err
	}
	pool, err := db.Open(ctx, poolConfig(cfg), schema)
	if err != nil {
		return nil, db.Schema{}, err
	}
	return pool, schema, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:         cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		MaxConnIdle: cfg.DBMaxConnIdle,
	}
}

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// resolveSigningKey returns JWT_SECRET as the signing key or, when it is
// empty, a random 32-byte key. The second return value is true when a
// random key was generated.
func resolveSigningKey(secret string) ([]byte, bool, error) {
	if secret != "" {
		return []byte(secret), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}

// infraPaths run without a request-scoped database connection.
var infraPaths = map[string]bool{
	"/":          true,
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

func infraSkipper(c echo.Context) bool {
	return infraPaths[c.Path()]
}

// routeSet holds the registered "METHOD path" pairs. Requests outside it
// skip the guard and the connection so the router answers 404 or 405.
type routeSet map[string]bool

func (r routeSet) add(routes []*echo.Route) {
	for _, rt := range routes {
		r[rt.Method+" "+rt.Path] = true
	}
}

func (r routeSet) unrouted(c echo.Context) bool {
	return !r[c.Request().Method+" "+c.Path()]
}

type server struct {
	echo   *echo.Echo
	tokens *auth.TokenService
}

// newServer wires the middleware chain, services and routes. pool may be
// nil in tests that never reach a repository.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, schema db.Schema, signingKey []byte) (*server, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	tokens := auth.NewTokenService(signingKey, cfg.JWTIssuer, cfg.AccessTokenTTL)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	tx := db.NewTxRunner(pool)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Unauthenticated requests are rejected before a connection is taken.
	routes := routeSet{}
	e.Use(auth.BearerMiddleware(auth.BearerConfig{
		Tokens:   tokens,
		Logger:   logger,
		Failures: m,
		Skipper: func(c echo.Context) bool {
			return routes.unrouted(c) || auth.Skipper(c)
		},
	}))
	e.Use(db.ConnMiddleware(pool, func(c echo.Context) bool {
		return routes.unrouted(c) || infraSkipper(c)
	}))

	// Infrastructure
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Welcome to the Medical API"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, schema))
	e.GET("/metrics", m.Handler())

	// Domain services
	patientSvc := patient.NewService(patient.NewRepoPG(pool), hasher, tokens, logger)
	catalogSvc := catalog.NewService(catalog.NewRepoPG(pool), tx, logger)
	assignments := billing.NewRepoPG(pool)
	ledger := billing.NewLedger(assignments, patientSvc, catalogSvc, tx, m, logger, cfg.Currency)
	reconciler := billing.NewReconciler(assignments, patientSvc, tx, node, m, logger, cfg.Currency)

	api := e.Group("")
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	catalog.NewHandler(catalogSvc).RegisterRoutes(api)
	billing.NewHandler(ledger, reconciler).RegisterRoutes(api)
	routes.add(e.Routes())

	return &server{echo: e, tokens: tokens}, nil
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	logger := newLogger(cfg.Env, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	signingKey, generated, err := resolveSigningKey(cfg.JWTSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve signing key")
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set; using a random per-process signing key")
	}

	// Database
	ctx := context.Background()
	schema, err := db.NewSchema(cfg.DBSchema, migrations.FS)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid database schema")
	}
	pool, err := db.Open(ctx, poolConfig(cfg), schema)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", schema.Name).Msg("connected to database")

	srv, err := newServer(cfg, logger, pool, schema, signingKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}
	e := srv.echo

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
