package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/hnreader/internal/api"
	"github.com/LJTian/hnreader/internal/collector"
	"github.com/LJTian/hnreader/internal/config"
	"github.com/LJTian/hnreader/internal/ingest"
	"github.com/LJTian/hnreader/internal/scheduler"
	"github.com/LJTian/hnreader/internal/storage"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	config.ConfigureLogging(cfg.LogLevel)

	store, err := storage.NewStore(cfg.DBDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	defer store.Close()
	store.SetClock(config.Now)

	fetcher := collector.NewCollyFetcher(
		collector.WithUserAgent(cfg.UserAgent),
		collector.WithTimeout(cfg.HTTPTimeout),
	)
	svc := ingest.New(fetcher, ingest.Options{BaseURL: cfg.BaseURL, TTL: cfg.CacheTTL, Now: config.Now})

	s, err := scheduler.New(svc, store, cfg.WarmCronSpec, cfg.SweepCronSpec)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	api.NewServer(svc, store).RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", addr).Info("starting api server...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exit: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown failed")
	}
}
