package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"upsell-service/config"
	"upsell-service/internal/api"
	"upsell-service/internal/broker"
	"upsell-service/internal/redisclient"
	"upsell-service/internal/service"
	"upsell-service/internal/store"
	"upsell-service/internal/util"
	"upsell-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// backend is the storage surface the services need from either driver
type backend interface {
	service.RuleRepository
	service.EventStore
	service.CatalogWriter
	api.Pinger
	Close() error
}

func openBackend(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (backend, error) {
	if cfg.Driver == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	}

	db, err := store.NewStore(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database schema applied")
	}
	return db, nil
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting upsell service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("upsell-service", cfg.Observ.JaegerEndpoint, cfg.Observ.TracingEnabled)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()

	db, err := openBackend(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Store ready", zap.String("driver", cfg.Database.Driver))

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CartTTL)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

	var publisher service.Publisher = broker.NopPublisher{}
	var eventPublisher *broker.EventPublisher
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOfferEvents)
		defer producer.Close()
		eventPublisher = broker.NewEventPublisher(producer, cfg.Kafka.PublishQueueSize, cfg.Kafka.PublishTimeout)
		publisher = eventPublisher
		logger.Info("Kafka producer initialized",
			zap.String("topic", cfg.Kafka.TopicOfferEvents),
			zap.Int("queue_size", cfg.Kafka.PublishQueueSize))
	}

	recorder := service.NewEventRecorder(db, publisher, logger)
	offerService := service.NewOfferService(db, db, redisClient, recorder, cfg.Offers, logger)
	ruleService := service.NewRuleService(db, db, logger)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(offerService, ruleService, recorder, service.NewCatalogService(db), map[string]api.Pinger{
		"database": db,
		"redis":    redisClient,
	})
	handler.UseRateLimiter(api.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	if eventPublisher != nil {
		g.Go(func() error {
			return eventPublisher.Run(gctx)
		})
	}

	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderEvents, cfg.Kafka.ConsumerGroup)
		conversionWorker := worker.NewConversionWorker(consumer, offerService)
		g.Go(func() error {
			defer conversionWorker.Stop()
			if err := conversionWorker.Start(gctx); err != nil && gctx.Err() == nil {
				return errors.Wrap(err, "conversion worker")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}
