package main

import (
	"context"
	"log"
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
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robertarktes/event-bookings-and-payouts/internal/scheduler"
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

	shutdownOtel, err := observability.SetupOTel(ctx, cfg.Observability, "scheduler")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.Observability.LogLevel).WithField("service", "scheduler")

	pool, err := crdb.NewPool(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	store := crdb.NewStore(pool, crdb.Config{TxTimeout: cfg.Database.TxTimeout, TxRetries: cfg.Database.TxRetries})

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.Mongo.Database)

	redisClient := redisclient.NewClient(&redisclient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

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
		Notifier:  redisadapter.NewAdminBroadcaster(redisClient),
		Activity:  mongoadapter.NewActivityLogger(mongoDB, logger),
		Snapshots: mongoadapter.NewSnapshotRepository(mongoDB, logger),
		Cache:     redisadapter.NewCache(redisClient),
		Links:     signer,
		Logger:    logger,
		Policy:    policy,
	})

	sched := scheduler.New(policy.Location, logger, cfg.Scheduler.MaxRetries)
	for _, j := range []struct {
		name string
		spec string
		run  func(ctx context.Context, now time.Time) error
	}{
		{"status_tick", cfg.Scheduler.StatusTickSpec, func(ctx context.Context, now time.Time) error {
			res, err := svc.Lifecycle.Tick(ctx, now)
			logger.WithField("job", "status_tick").WithField("ongoing", res.Ongoing).WithField("completed", res.Completed).Info("tick done")
			return err
		}},
		{"payment_sweep", cfg.Scheduler.PaymentSweepSpec, func(ctx context.Context, now time.Time) error {
			res, err := svc.Payments.SweepPending(ctx, now)
			logger.WithField("job", "payment_sweep").WithField("reminded", res.Reminded).WithField("cancelled", res.Cancelled).Info("sweep done")
			return err
		}},
		{"escrow_sweep", cfg.Scheduler.EscrowSweepSpec, func(ctx context.Context, _ time.Time) error {
			n, err := svc.Escrow.Sweep(ctx)
			logger.WithField("job", "escrow_sweep").WithField("released", n).Info("sweep done")
			return err
		}},
	} {
		if err := sched.Add(scheduler.Job{Name: j.name, Spec: j.spec, Run: j.run}); err != nil {
			log.Fatalf("invalid schedule for %s: %v", j.name, err)
		}
	}

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("scheduler started")
	if err := sched.Run(runCtx); err != nil {
		logger.WithError(err).Error("scheduler stopped")
	}
	logger.Info("Shutdown scheduler")
}
