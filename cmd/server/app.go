package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	checkinmetrics "entrypass/internal/checkin/metrics"
	checkinservice "entrypass/internal/checkin/service"
	checkinstore "entrypass/internal/checkin/store"
	"entrypass/internal/credential"
	"entrypass/internal/credential/blob"
	"entrypass/internal/events"
	eventmetrics "entrypass/internal/events/metrics"
	"entrypass/internal/events/outbox"
	"entrypass/internal/events/publisher"
	"entrypass/internal/events/relay"
	jwttoken "entrypass/internal/jwt_token"
	"entrypass/internal/payment/gateway"
	"entrypass/internal/payment/lock"
	paymetrics "entrypass/internal/payment/metrics"
	payservice "entrypass/internal/payment/service"
	paystore "entrypass/internal/payment/store"
	"entrypass/internal/platform/config"
	"entrypass/internal/platform/kafka"
	httpmetrics "entrypass/internal/platform/metrics"
	"entrypass/internal/platform/postgres"
	redisclient "entrypass/internal/platform/redis"
	ratemetrics "entrypass/internal/ratelimit/metrics"
	ratemw "entrypass/internal/ratelimit/middleware"
	ratemodels "entrypass/internal/ratelimit/models"
	ratestore "entrypass/internal/ratelimit/store"
	"entrypass/internal/registration/fee"
	regmetrics "entrypass/internal/registration/metrics"
	"entrypass/internal/registration/models"
	regservice "entrypass/internal/registration/service"
	regstore "entrypass/internal/registration/store"
	"entrypass/pkg/platform/tx"
)

// registrationStore is everything the services need from registration storage.
type registrationStore interface {
	regservice.Store
	payservice.Registrations
	credential.RefStore
}

type outboxStore interface {
	relay.Store
	Append(ctx context.Context, event events.Event) error
}

type app struct {
	logger        *slog.Logger
	db            *sql.DB
	redis         *redisclient.Client
	producer      *kafka.Producer
	registrations *regservice.Service
	payments      *payservice.Service
	gate          *checkinservice.Service
	relay         *relay.Relay
	validator     *jwttoken.ActorValidator
	httpMetrics   *httpmetrics.Metrics
	limiter       *ratemw.Middleware
}

// newApp wires storage and services. Without a database URL every store is
// in memory; Redis and Kafka are optional.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger, httpMetrics: httpmetrics.New()}

	var (
		registrations registrationStore
		records       payservice.Records
		checkins      checkinservice.Store
		eventLog      outboxStore
		runner        tx.Runner
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		registrations = regstore.NewPostgres(db)
		records = paystore.NewPostgres(db)
		checkins = checkinstore.NewPostgres(db)
		eventLog = outbox.NewPostgres(db)
		runner = postgres.NewTxRunner(db, cfg.Database.TxTimeout)
	} else {
		logger.Warn("no database configured; using in-memory stores")
		registrations = regstore.NewInMemory()
		records = paystore.NewInMemory()
		checkins = checkinstore.NewInMemory()
		eventLog = outbox.NewInMemory()
		runner = tx.NewInMemoryRunner()
	}

	var (
		blobs  credential.Blobs = blob.NewInMemory()
		locker lock.Locker      = lock.NewInMemory()
		limits ratemw.Store     = ratestore.NewInMemory()
	)
	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rc != nil {
		a.redis = rc
		blobs = blob.NewRedis(rc.Client)
		locker = lock.NewRedis(rc.Client)
		limits = ratestore.NewRedis(rc.Client)
	}
	a.limiter = ratemw.New(limits, logger,
		ratemw.WithMetrics(ratemetrics.New()),
		ratemw.WithLimit(ratemodels.ClassAPI, ratemodels.Limit{Requests: cfg.RateLimit.APIRequests, Window: cfg.RateLimit.Window}),
		ratemw.WithLimit(ratemodels.ClassWebhook, ratemodels.Limit{Requests: cfg.RateLimit.WebhookRequests, Window: cfg.RateLimit.Window}),
	)

	var sink relay.Publisher = publisher.NewLog(logger)
	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		a.Close()
		return nil, err
	}
	if producer != nil {
		a.producer = producer
		if err := producer.EnsureTopic(ctx, cfg.Kafka.Partitions); err != nil {
			a.Close()
			return nil, err
		}
		sink = publisher.NewKafka(producer)
	}

	gw := gateway.NewPayMongo(cfg.PayMongo.BaseURL, cfg.PayMongo.SecretKey, cfg.PayMongo.Timeout,
		gateway.WithLogger(logger))
	a.payments = payservice.New(
		registrations,
		records,
		eventLog,
		gw,
		gateway.NewWebhookParser(cfg.PayMongo.WebhookSecret),
		locker,
		runner,
		payservice.WithLogger(logger),
		payservice.WithMetrics(paymetrics.New()),
	)

	issuer := credential.NewIssuer(blobs, registrations, credential.WithLogger(logger))
	a.registrations = regservice.New(
		registrations,
		fee.NewCalculator(registrations, models.Amount(cfg.Fee.MinOnlineAmount)),
		a.payments,
		issuer,
		eventLog,
		runner,
		regservice.WithLogger(logger),
		regservice.WithMetrics(regmetrics.New()),
		regservice.WithRosterPolicy(models.RosterPolicy{
			MaxGroupSize:    cfg.Fee.MaxGroupSize,
			DomesticCountry: cfg.Venue.DomesticCountry,
		}),
	)

	loc, err := cfg.Venue.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.gate = checkinservice.New(a.registrations, checkins, eventLog, runner, loc,
		checkinservice.WithLogger(logger),
		checkinservice.WithMetrics(checkinmetrics.New()),
	)

	a.relay = relay.New(eventLog, sink, runner,
		relay.WithLogger(logger),
		relay.WithMetrics(eventmetrics.New()),
		relay.WithInterval(cfg.Kafka.RelayInterval),
		relay.WithBatchSize(cfg.Kafka.RelayBatch),
	)

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	a.validator = jwttoken.NewActorValidator(jwt)
	return a, nil
}

// Health reports the first unreachable dependency.
func (a *app) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *app) Close() {
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
