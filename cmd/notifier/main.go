package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/crdb"
	"github.com/robertarktes/event-bookings-and-payouts/internal/adapters/rabbit"
	"github.com/robertarktes/event-bookings-and-payouts/internal/config"
	"github.com/robertarktes/event-bookings-and-payouts/internal/notify"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robertarktes/event-bookings-and-payouts/internal/outbox"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(ctx, cfg.Observability, "notifier")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.Observability.LogLevel).WithField("service", "notifier")

	pool, err := crdb.NewPool(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	store := crdb.NewStore(pool, crdb.Config{TxTimeout: cfg.Database.TxTimeout, TxRetries: cfg.Database.TxRetries})

	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	pub, err := rabbit.NewPublisher(conn, cfg.Rabbit.Exchange)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	consumer, err := rabbit.NewConsumer(conn, cfg.Rabbit.Exchange, cfg.Rabbit.Queue, "email.#")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	relay := outbox.NewRelay(store, pub, logger, cfg.Scheduler.OutboxBatch, cfg.Rabbit.RelayInterval)
	dispatcher := notify.NewDispatcher(notify.NewLogMailer(os.Stdout), logger)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error {
		deliveries, err := consumer.Consume(gctx)
		if err != nil {
			return err
		}
		return dispatcher.Run(gctx, deliveries)
	})

	logger.Info("notifier started")
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("notifier stopped")
	}
	logger.Info("Shutdown notifier")
}
