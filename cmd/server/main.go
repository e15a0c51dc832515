package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"price-tracker/config"
	"price-tracker/internal/api"
	"price-tracker/internal/broker"
	"price-tracker/internal/redisclient"
	"price-tracker/internal/scheduler"
	"price-tracker/internal/scraper"
	"price-tracker/internal/service"
	"price-tracker/internal/store"
	"price-tracker/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		panic(err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	tp, err := util.InitTracer("price-tracker", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Warn("failed to initialize tracer", zap.Error(err))
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	st, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer st.Close()

	rdb, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPriceEvent)
	defer producer.Close()
	events := broker.NewEventPublisher(producer)

	timeout := time.Duration(cfg.Scrape.RequestTimeoutSecs) * time.Second
	registry := scraper.NewRegistry(
		scraper.NewBonpreuScraper(cfg.Sources.Bonpreu, cfg.Scrape.ConcurrentRequests, timeout),
		scraper.NewMercadonaScraper(cfg.Sources.Mercadona, cfg.Scrape.ConcurrentRequests, timeout),
	)

	queues := service.NewQueueService(st)
	prices := service.NewPriceService(st)
	scrapes := service.NewScrapeService(st, rdb, events, registry, queues, prices, cfg.Scrape)

	sched := scheduler.New(scrapes, cfg.Scheduler)
	if err := sched.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(scrapes, queues, prices, sched, cfg.Scrape)
	router := handler.SetupRouter()

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
