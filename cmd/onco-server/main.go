package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/onco/onco/internal/config"
	"github.com/onco/onco/internal/domain/feedback"
	"github.com/onco/onco/internal/domain/pain"
	"github.com/onco/onco/internal/domain/patient"
	"github.com/onco/onco/internal/platform/auth"
	"github.com/onco/onco/internal/platform/db"
	"github.com/onco/onco/internal/platform/fhir"
	"github.com/onco/onco/internal/platform/github"
	"github.com/onco/onco/internal/platform/middleware"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
	bodyLimit       = "1M"
	requestTimeout  = 30 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "onco-server",
		Short: "Oncology pain-management and feedback API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(clinicCmd())
	rootCmd.AddCommand(painCmd())

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

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.UsesDatabase() {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory stores")
	}

	e, err := newServer(cfg, pool, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with every route mounted. A nil pool
// selects the in-memory repositories.
func newServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit(bodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", db.ClinicHeader},
	}))

	e.GET("/health", db.HealthHandler(pool, version))

	// Auth middleware
	authMW := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware()
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	scoped := []echo.MiddlewareFunc{authMW}
	if pool != nil {
		scoped = append(scoped, db.ClinicMiddleware(pool, cfg.DefaultTenant))
	}
	scoped = append(scoped,
		middleware.RateLimit(rateLimitCfg),
		middleware.RequestTimeout(requestTimeout),
		middleware.Audit(logger, nil),
	)

	var (
		patientRepo    patient.PatientRepository
		assessmentRepo pain.AssessmentRepository
		feedbackRepo   feedback.Repository
	)
	if pool != nil {
		patientRepo = patient.NewPatientRepo(pool)
		assessmentRepo = pain.NewAssessmentRepo(pool)
		feedbackRepo = feedback.NewRepo(pool)
	} else {
		patientRepo = patient.NewMemoryPatientRepo()
		assessmentRepo = pain.NewMemoryAssessmentRepo()
		feedbackRepo = feedback.NewMemoryRepo()
	}

	patientSvc := patient.NewService(patientRepo, logger)
	painSvc := pain.NewService(assessmentRepo, patientSvc, cfg.SafetyCacheTTL, logger)

	var issues feedback.IssueCreator
	if cfg.GitHubEnabled() {
		gh, err := github.NewClient(github.Config{
			BaseURL: cfg.GitHubAPIURL,
			Token:   cfg.GitHubToken,
			Owner:   cfg.GitHubOwner,
			Repo:    cfg.GitHubRepo,
		})
		if err != nil {
			return nil, fmt.Errorf("github client: %w", err)
		}
		issues = gh
		logger.Info().Str("repo", gh.Repository()).Bool("auto_issue", cfg.GitHubAutoIssue).Msg("github issue filing enabled")
	}
	feedbackSvc := feedback.NewService(feedbackRepo, issues, cfg.GitHubAutoIssue, logger.With().Str("component", "feedback").Logger())

	api := e.Group("/api", scoped...)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	pain.NewHandler(painSvc).RegisterRoutes(api)
	feedback.NewHandler(feedbackSvc).RegisterRoutes(api)

	cds := fhir.NewCDSHooksHandler()
	painSvc.RegisterCDSService(cds)
	cds.RegisterRoutes(e, append(scoped, auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RolePharmacist))...)

	return e, nil
}
