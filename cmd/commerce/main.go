package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/commerce-core/internal/cart/cache"
	cartrepo "github.com/fjod/commerce-core/internal/cart/repository"
	"github.com/fjod/commerce-core/internal/catalog"
	"github.com/fjod/commerce-core/internal/config"
	h "github.com/fjod/commerce-core/internal/http"
	ordersrepo "github.com/fjod/commerce-core/internal/orders/repository"
	"github.com/fjod/commerce-core/internal/payment"
	"github.com/fjod/commerce-core/internal/service"
	"github.com/fjod/commerce-core/internal/webhook"
	"github.com/fjod/commerce-core/pkg/logger"
	"github.com/fjod/commerce-core/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("commerce", "info")
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(cfg.ServiceName, cfg.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("core", reg)

	ctx := context.Background()

	// Cart store: MongoDB with a Redis read cache
	mongoDB, err := cartrepo.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	cartRepository := cartrepo.NewMongoRepository(mongoDB)
	if err := cartrepo.CreateIndexes(ctx, cartRepository); err != nil {
		log.Fatal().Err(err).Msg("failed to create cart indexes")
	}
	log.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	cartCache := cache.NewRedisCache(redisClient, cfg.CartCacheTTL)

	// Catalog: SQLite
	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open catalog")
	}
	if err := catalogRepo.RunMigrations(cfg.CatalogMigration); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate catalog")
	}

	// Orders, payment accounts, webhook subscriptions: PostgreSQL
	ordersRepo, err := ordersrepo.NewRepository(cfg.OrdersCredentials())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	if err := ordersRepo.RunMigrations(cfg.OrdersCredentials()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate orders database")
	}

	// Webhooks: Kafka job queue, delivery worker and dead letters
	jobWriter := webhook.NewWriter(webhook.DeliveriesTopic, cfg.KafkaBrokers...)
	dlqWriter := webhook.NewWriter(webhook.DeadLetterTopic, cfg.KafkaBrokers...)
	jobReader := webhook.NewReader(webhook.DeliveriesTopic, cfg.WebhookDeliveryGroup, cfg.KafkaBrokers...)

	dispatcher := webhook.NewDispatcher(ordersRepo, webhook.NewKafkaQueue(jobWriter), webhook.DispatcherConfig{
		BufferSize:     cfg.WebhookBufferSize,
		Workers:        cfg.WebhookWorkers,
		EnqueueTimeout: cfg.WebhookEnqueueTimeout,
	}, log, m)
	deliverer := webhook.NewDeliverer(jobReader, dlqWriter, ordersRepo, webhook.DelivererConfig{
		MaxAttempts:    cfg.WebhookMaxAttempts,
		RequestTimeout: cfg.WebhookRequestTimeout,
	}, log, m)

	// Services
	paymentClient := payment.NewClient(cfg.PaymentAPIURL, cfg.PaymentAPIKey, log)
	cartService := service.NewCartService(cartRepository, cartCache, cfg.CartMaxRetries, log, m)
	hydrator := service.NewHydrator(catalogRepo, cfg.HydrationConcurrency)
	checkoutService := service.NewCheckoutService(
		cartService,
		hydrator,
		ordersRepo,
		service.NewPaymentHandler(paymentClient, cfg.PaymentTimeout),
		service.CheckoutConfig{FeeRate: cfg.FeeRate, Environment: cfg.Environment},
		log,
		m,
	)
	fulfillmentService := service.NewFulfillmentService(ordersRepo, catalogRepo, dispatcher, cfg.TransitionMaxRetries, log, m)

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		dispatcher.Run(workersCtx)
	}()
	go func() {
		defer workers.Done()
		deliverer.Run(workersCtx)
	}()

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}, h.Deps{
		Carts:    cartService,
		Hydrator: hydrator,
		Checkout: checkoutService,
		Orders:   fulfillmentService,
		Gate:     cfg.Gate,
		Log:      log,
		Metrics:  m,
		Gatherer: reg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// gRPC health for orchestrators
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	go func() {
		log.Info().Str("port", cfg.GRPCPort).Msg("gRPC health server starting")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("failed to serve gRPC")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
	grpcServer.GracefulStop()

	// no request can publish anymore; let the dispatcher drain its buffer
	stopWorkers()
	workers.Wait()

	closeAll(log,
		closer{"job writer", jobWriter.Close},
		closer{"dlq writer", dlqWriter.Close},
		closer{"job reader", jobReader.Close},
		closer{"redis", redisClient.Close},
		closer{"catalog", catalogRepo.Close},
		closer{"orders", ordersRepo.Close},
		closer{"mongo", func() error { return mongoDB.Client().Disconnect(shutdownCtx) }},
	)

	log.Info().Msg("stopped")
}
