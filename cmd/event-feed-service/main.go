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

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/hospital-analytics/pkg/cache"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/config"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/database"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/kafka"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/feed"
	"github.com/synaptica-ai/hospital-analytics/pkg/gateway/routes"
	"github.com/synaptica-ai/hospital-analytics/pkg/store/backend"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger.Init("event-feed-service")
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open record store")
	}

	// Only a shared cache is worth invalidating from this process.
	var reports cache.ReportCache = cache.Nop{}
	if cfg.ReportCache == config.CacheRedis {
		reports = cache.NewRedis(database.GetRedis(), cfg.ReportCacheTTL)
	}

	handler := feed.NewHandler(st, reports)
	consumer := kafka.NewConsumer(cfg.KafkaEventsTopic, cfg.KafkaGroupID)

	router := mux.NewRouter()
	routes.NewHealthHandler(st, cfg.StoreTimeout).Register(router)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	logger.Log.WithFields(map[string]interface{}{
		"topic": cfg.KafkaEventsTopic,
		"group": cfg.KafkaGroupID,
		"port":  cfg.ServerPort,
	}).Info("Event Feed Service started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := consumer.Consume(gctx, handler.Handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.WithError(err).Error("Event Feed Service exited with error")
	}

	logger.Log.Info("Shutting down Event Feed Service...")
	if err := consumer.Close(); err != nil {
		logger.Log.WithError(err).Warn("failed to close consumer")
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.Close(closeCtx); err != nil {
		logger.Log.WithError(err).Warn("failed to close record store")
	}
	_ = database.CloseRedis()
	logger.Log.Info("Event Feed Service stopped")
}
