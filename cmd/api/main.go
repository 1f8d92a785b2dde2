package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/event-bookings-and-payouts/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/event-bookings-and-payouts/internal/adapters/redis"
	"github.com/robertarktes/event-bookings-and-payouts/internal/auth"
	"github.com/robertarktes/event-bookings-and-payouts/internal/config"
	httphandler "github.com/robertarktes/event-bookings-and-payouts/internal/http"
	"github.com/robertarktes/event-bookings-and-payouts/internal/idempotency"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robertarktes/event-bookings-and-payouts/internal/ratelimit"
	"github.com/robertarktes/event-bookings-and-payouts/internal/service"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(ctx, cfg.Observability, "api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.Observability.LogLevel)

	pool, err := crdb.NewPool(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	store := crdb.NewStore(pool, crdb.Config{TxTimeout: cfg.Database.TxTimeout, TxRetries: cfg.Database.TxRetries})
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.Mongo.Database)
	if err := mongoadapter.EnsureIndexes(ctx, mongoDB); err != nil {
		log.Fatalf("failed to create mongo indexes: %v", err)
	}
	documents, err := mongoadapter.NewDocumentStore(mongoDB)
	if err != nil {
		log.Fatalf("failed to open document store: %v", err)
	}
	activity := mongoadapter.NewActivityLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	broadcaster := redisadapter.NewAdminBroadcaster(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.Redis.IdempotencyTTL)
	rl := ratelimit.NewRateLimiter(redisClient)

	authn, err := auth.NewAuthenticator(cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatalf("failed to setup auth: %v", err)
	}
	signer, err := auth.NewFeedbackSigner(authn, cfg.Policy.FeedbackBaseURL, cfg.Auth.FeedbackTokenTTL)
	if err != nil {
		log.Fatalf("failed to setup feedback links: %v", err)
	}

	policy, err := service.PolicyFromConfig(cfg)
	if err != nil {
		log.Fatalf("invalid policy: %v", err)
	}
	svc := service.New(service.Deps{
		Store:     store,
		Notifier:  broadcaster,
		Activity:  activity,
		Snapshots: mongoadapter.NewSnapshotRepository(mongoDB, logger),
		Documents: documents,
		Cache:     redisadapter.NewCache(redisClient),
		Links:     signer,
		Feedback:  signer,
		Logger:    logger,
		Policy:    policy,
	})

	handlers := httphandler.NewHandlers(svc, activity, broadcaster,
		store.Ping,
		func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	)
	r := httphandler.SetupRouter(httphandler.RouterDeps{
		Handlers:    handlers,
		Logger:      logger,
		Tokens:      authn,
		RateLimiter: rl,
		Limits: httphandler.RateLimit{
			PerUser: cfg.Redis.RateLimitPerMinute,
			PerIP:   cfg.Redis.RateLimitPerMinute * 5,
			Period:  time.Minute,
		},
		Idempotency: idemp,
	})

	// No WriteTimeout: the admin notification stream is long-lived.
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}

	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}
	logger.Info("Server exiting")
}
