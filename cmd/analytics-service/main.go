package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/derive"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/views"
	"github.com/synaptica-ai/hospital-analytics/pkg/cache"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/config"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/database"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/kafka"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/deid"
	"github.com/synaptica-ai/hospital-analytics/pkg/gateway/auth"
	"github.com/synaptica-ai/hospital-analytics/pkg/gateway/middleware"
	"github.com/synaptica-ai/hospital-analytics/pkg/gateway/routes"
	"github.com/synaptica-ai/hospital-analytics/pkg/intake"
	"github.com/synaptica-ai/hospital-analytics/pkg/observability/metrics"
	"github.com/synaptica-ai/hospital-analytics/pkg/snapshot"
	"github.com/synaptica-ai/hospital-analytics/pkg/store/backend"
)

func main() {
	logger.Init("analytics-service")
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open record store")
	}

	schemes, err := derive.LoadSchemes(cfg.BucketSchemeFile)
	if err != nil {
		logger.Log.WithError(err).WithField("file", cfg.BucketSchemeFile).Fatal("failed to load bucket schemes")
	}
	reference, err := views.ParseReferenceDate(cfg.DefaultReferenceDate)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid DEFAULT_REFERENCE_DATE")
	}
	svc := views.NewService(st, views.WithSchemes(schemes), views.WithDefaultReference(reference))
	metrics.Init(views.ReportNames())

	reports := reportCache(cfg)

	producer := kafka.NewProducer(cfg.KafkaFeedbackTopic)
	defer producer.Close()

	var intakeOpts []intake.Option
	if cfg.PseudonymSalt != "" {
		intakeOpts = append(intakeOpts, intake.WithPseudonymizer(deid.NewPseudonymizer(cfg.PseudonymSalt)))
	} else {
		logger.Log.Warn("PSEUDONYM_SALT not set; feedback events carry raw patient IDs")
	}
	intakeSvc := intake.NewService(intake.NewValidator(svc.Options()), st, producer, reports, intakeOpts...)

	materializer := snapshot.NewMaterializer(snapshotRepository(cfg), svc, cfg.SnapshotWorkers, cfg.GatewayRequestTimeout)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.Instrument)
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.RateLimit(cfg.GatewayRateLimitRPS, cfg.GatewayRateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	routes.NewHealthHandler(st, cfg.StoreTimeout).Register(router)

	api := router.NewRoute().Subrouter()
	if cfg.OIDCIssuer != "" {
		oidcAuth, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCUserInfoURL, nil)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to configure OIDC")
		}
		api.Use(middleware.Authenticate(oidcAuth))
	} else {
		logger.Log.Warn("OIDC authentication not configured, running without auth")
	}
	routes.NewAnalyticsHandler(svc, reports).Register(api)
	routes.NewChatHandler().Register(api)
	routes.NewSnapshotHandler(materializer).Register(api)
	intake.NewHTTPHandler(intakeSvc, cfg.MaxRequestBody).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":  cfg.ServerHost,
			"port":  cfg.ServerPort,
			"store": cfg.StoreDriver,
		}).Info("Analytics Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Analytics Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}
	materializer.Wait()
	if err := st.Close(shutdownCtx); err != nil {
		logger.Log.WithError(err).Warn("failed to close record store")
	}
	_ = database.CloseRedis()
	_ = database.ClosePostgres()

	logger.Log.Info("Analytics Service stopped")
}

func reportCache(cfg *config.Config) cache.ReportCache {
	switch cfg.ReportCache {
	case config.CacheRedis:
		return cache.NewRedis(database.GetRedis(), cfg.ReportCacheTTL)
	case config.CacheMemory:
		return cache.NewMemory(cfg.ReportCacheTTL)
	default:
		logger.Log.WithField("cache", cfg.ReportCache).Info("Report cache disabled")
		return cache.Nop{}
	}
}

func snapshotRepository(cfg *config.Config) snapshot.Repository {
	if !cfg.SnapshotsEnabled {
		return snapshot.NewMemoryRepository()
	}
	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Warn("Postgres unavailable; snapshots kept in memory")
		return snapshot.NewMemoryRepository()
	}
	repo := snapshot.NewGormRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate snapshot table")
	}
	return repo
}
