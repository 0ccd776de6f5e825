package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/config"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/collection"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/crossmatch"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/donor"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/equipment"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/issue"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/lookback"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/serology"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/transfer"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/audit"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/auth"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/db"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/events"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/metrics"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/middleware"
	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/sweep"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bloodbank-server",
		Short: "Blood bank API server",
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
		Short: "Start the blood bank API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Event publisher. Without brokers events are dropped, never queued.
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to kafka")
		}
		publisher = kp
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("event publishing enabled")
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set; domain events are disabled")
	}
	defer publisher.Close()

	m := metrics.New()
	auditor := audit.NewRecorder(pool, logger)
	runTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.RunInTx(ctx, pool, fn)
	}

	returnWindow := time.Duration(cfg.ReturnTimeoutHours) * time.Hour
	crossmatchValidity := time.Duration(cfg.CrossmatchValidityHours) * time.Hour
	reservationTimeout := time.Duration(cfg.ReservationTimeoutHours) * time.Hour

	// Repositories
	donorRepo := donor.NewDonorRepoPG(pool)
	collectionRepo := collection.NewCollectionRepoPG(pool)
	serologyRepo := serology.NewSerologyRepoPG(pool)
	unitRepo := unit.NewUnitRepoPG(pool)
	equipmentRepo := equipment.NewEquipmentRepoPG(pool)
	crossmatchRepo := crossmatch.NewCrossmatchRepoPG(pool)
	issueRepo := issue.NewIssueRepoPG(pool)
	lookbackRepo := lookback.NewLookbackRepoPG(pool)
	transferRepo := transfer.NewTransferRepoPG(pool)

	// Services. Wired bottom-up: the unit ledger first, then the services
	// that gate state changes on it.
	donorSvc := donor.NewService(donorRepo, auditor)
	unitSvc := unit.NewService(unitRepo, auditor, publisher, m)
	collectionSvc := collection.NewService(collectionRepo, donorSvc, unitSvc, runTx, auditor)
	lookbackSvc := lookback.NewService(lookbackRepo, unitSvc, collectionSvc, runTx, auditor, publisher, m, logger, cfg.LookbackWindowDays)
	serologySvc := serology.NewService(serologyRepo, unitSvc, collectionSvc, lookbackSvc, runTx, auditor, logger)
	equipmentSvc := equipment.NewService(equipmentRepo, unitSvc, runTx, auditor, publisher, m, logger)
	crossmatchSvc := crossmatch.NewService(crossmatchRepo, unitSvc, serologySvc, runTx, auditor, crossmatchValidity)
	issueSvc := issue.NewService(issueRepo, unitSvc, crossmatchSvc, collectionSvc, lookbackSvc, runTx, auditor, publisher, m, logger, returnWindow)
	transferSvc := transfer.NewService(transferRepo, unitSvc, runTx, auditor, publisher, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	e.GET("/health", db.HealthHandler(pool))
	e.GET("/metrics", m.Handler())

	apiV1 := e.Group("/api/v1")

	donor.NewHandler(donorSvc).RegisterRoutes(apiV1)
	collection.NewHandler(collectionSvc).RegisterRoutes(apiV1)
	serology.NewHandler(serologySvc).RegisterRoutes(apiV1)
	unit.NewHandler(unitSvc, returnWindow).RegisterRoutes(apiV1)
	equipment.NewHandler(equipmentSvc).RegisterRoutes(apiV1)
	crossmatch.NewHandler(crossmatchSvc).RegisterRoutes(apiV1)
	issue.NewHandler(issueSvc).RegisterRoutes(apiV1)
	lookback.NewHandler(lookbackSvc).RegisterRoutes(apiV1)
	transfer.NewHandler(transferSvc).RegisterRoutes(apiV1)

	// Background sweeps: expire overdue units, release stale reservations.
	runner := sweep.NewRunner(
		time.Duration(cfg.SweepIntervalMinutes)*time.Minute,
		logger,
		unit.NewExpiryJob(unitRepo, m),
		unit.NewReservationTimeoutJob(unitRepo, reservationTimeout, m),
	)
	sweepCtx, sweepCancel := context.WithCancel(ctx)
	defer sweepCancel()
	runner.Start(sweepCtx)
	defer runner.Stop()

	// Start server with graceful shutdown
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

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
