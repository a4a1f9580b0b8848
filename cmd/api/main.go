package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/labpulse/internal/application"
	apprecords "github.com/bryanwahyu/labpulse/internal/application/records"
	"github.com/bryanwahyu/labpulse/internal/config"
	"github.com/bryanwahyu/labpulse/internal/domain/procerrors"
	"github.com/bryanwahyu/labpulse/internal/domain/records"
	openaiclient "github.com/bryanwahyu/labpulse/internal/infra/ai/openai"
	"github.com/bryanwahyu/labpulse/internal/infra/crypto"
	mysqlp "github.com/bryanwahyu/labpulse/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/labpulse/internal/infra/db/postgres"
	"github.com/bryanwahyu/labpulse/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/labpulse/internal/infra/storage"
	"github.com/bryanwahyu/labpulse/internal/middleware"
	"github.com/bryanwahyu/labpulse/internal/pkg/logger"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	baseLog, err := logger.New(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer baseLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// connect database; repos implement the same ports either way
	var (
		repo     records.Repository
		profiles records.Profiles
		failures procerrors.Repository
		dbCheck  middleware.HealthChecker
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			baseLog.Fatal("postgres connect error", "error", err)
		}
		defer db.Close()
		repo = postgresp.NewRecordRepository(db)
		dbCheck = &middleware.DatabaseHealthChecker{DB: db}
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			baseLog.Fatal("mysql connect error", "error", err)
		}
		defer db.Close()
		repo = mysqlp.NewRecordRepository(db)
		profiles = mysqlp.NewProfileRepository(db)
		failures = mysqlp.NewProcessingErrorRepository(db)
		dbCheck = &middleware.DatabaseHealthChecker{DB: db}
	}

	// init minio document store
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		baseLog.Fatal("minio init error", "error", err)
	}

	// init raw-text sealer
	sealer, err := crypto.NewSealer(cfg.Encryption.Key)
	if err != nil {
		baseLog.Fatal("encryption key error", "error", err)
	}

	// init extraction client
	extractor := openaiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)

	// init service
	svc := &apprecords.Service{
		Repo:           repo,
		Files:          store,
		Extractor:      extractor,
		Sealer:         sealer,
		Profiles:       profiles,
		Failures:       failures,
		Clock:          application.SystemClock{},
		Log:            baseLog.With("component", "records"),
		ExtractTimeout: cfg.ExtractTimeout(),
	}

	// start worker pool + watchdog
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerCount(); i++ {
		w := &apprecords.Worker{
			Svc:          svc,
			Log:          baseLog.With("component", "worker", "worker", i),
			PollInterval: cfg.PollInterval(),
			BatchSize:    cfg.Worker.BatchSize,
		}
		g.Go(func() error { return w.Run(gctx) })
	}
	sweeper := &apprecords.Worker{
		Svc:           svc,
		Log:           baseLog.With("component", "watchdog"),
		SweepInterval: cfg.SweepInterval(),
		StaleAfter:    cfg.StaleAfter(),
	}
	g.Go(func() error { return sweeper.RunSweeper(gctx) })

	// init router
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware(baseLog.With("component", "http")))
	mux.Use(middleware.MetricsMiddleware)
	if len(cfg.Auth.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	}
	mux.Use(middleware.RateLimitMiddleware(60, 2))
	mux.Get("/healthz", middleware.HealthHandler(map[string]middleware.HealthChecker{"database": dbCheck}))
	mux.Mount("/", httpserver.NewRouter(svc))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		baseLog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			baseLog.Fatal("server error", "error", err)
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	baseLog.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		baseLog.Warn("shutdown error", "error", err)
	}
	_ = g.Wait()
}
