package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/pennyrush/pennyrush/go/internal/auction"
	"github.com/pennyrush/pennyrush/go/internal/auction/repository"
	"github.com/pennyrush/pennyrush/go/internal/clients"
	"github.com/pennyrush/pennyrush/go/internal/clock"
	"github.com/pennyrush/pennyrush/go/internal/dedup"
	"github.com/pennyrush/pennyrush/go/internal/gateway"
	"github.com/pennyrush/pennyrush/go/internal/ledger"
	"github.com/pennyrush/pennyrush/go/internal/outbox"
)

type Services struct {
	Ledger  *ledger.App
	Auction *auction.App
	Engine  *clock.Engine
	Sweeper *clock.Sweeper

	OutboxWorker *outbox.Worker

	ConnManager   *gateway.ConnectionManager
	GameHandler   *gateway.GameHandler
	WSHandler     *gateway.WebSocketHandler
	EventConsumer *gateway.EventConsumer // nil without NATS

	natsConn *nats.Conn
}

func setupServices(ctx context.Context, pool *pgxpool.Pool, cfg Config, rules auction.Rules) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Gateway layer

	// Ledger
	ledgerRepo := ledger.NewRepository(pool)
	ledgerApp := ledger.NewApp(ledgerRepo)

	// Outbox storage shares the pool so event inserts join game transactions
	outboxRepo := outbox.NewRepository(pool)

	// Auction
	gameRepo := repository.NewRepository(pool, ledgerRepo, outboxRepo)
	guard := setupDedupGuard(cfg)
	identity := setupIdentity(cfg)
	auctionApp := auction.NewApp(gameRepo, guard, identity, rules)

	// Clock
	engine := clock.NewEngine(rules)
	sweeper := clock.NewSweeper(auctionApp, int32(getEnvAsInt("SWEEP_BATCH_SIZE", 50)))

	svc := &Services{
		Ledger:  ledgerApp,
		Auction: auctionApp,
		Engine:  engine,
		Sweeper: sweeper,
	}

	// Outbox relay
	publisher, err := svc.setupPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc.OutboxWorker = outbox.NewWorker(outboxRepo, publisher, outbox.DefaultConfig())

	// Gateway
	svc.ConnManager = gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	svc.WSHandler = gateway.NewWebSocketHandler(svc.ConnManager)
	svc.GameHandler = gateway.NewGameHandler(auctionApp, engine, clients.NewCatalogClient(cfg.CatalogURL))

	if cfg.NATSUrl != "" {
		consumerCfg := gateway.DefaultJetStreamConsumerConfig()
		consumerCfg.URL = cfg.NATSUrl
		consumerCfg.StreamName = cfg.StreamName
		consumerCfg.SubjectFilter = cfg.SubjectPrefix + ".>"
		consumer, err := gateway.NewEventConsumer(svc.ConnManager, consumerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		svc.EventConsumer = consumer
	}

	return svc, nil
}

func setupDedupGuard(cfg Config) auction.DedupGuard {
	if cfg.RedisAddr == "" {
		log.Warn().Msg("REDIS_ADDR not set, using in-process dedup guard")
		return dedup.NewMemoryGuard(10 * time.Second)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	log.Info().Str("addr", cfg.RedisAddr).Msg("using redis dedup guard")
	return dedup.NewRedisGuard(client, 10*time.Second)
}

func setupIdentity(cfg Config) auction.IdentityClient {
	if cfg.IdentityURL == "" {
		log.Warn().Msg("IDENTITY_URL not set, using static identity resolution")
		return &clients.StaticIdentity{}
	}
	return clients.NewIdentityClient(cfg.IdentityURL)
}

func (s *Services) setupPublisher(ctx context.Context, cfg Config) (outbox.EventPublisher, error) {
	if cfg.NATSUrl == "" {
		log.Warn().Msg("NATS_URL not set, outbox events will only be logged")
		return outbox.NewLogPublisher(), nil
	}

	nc, err := nats.Connect(cfg.NATSUrl,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s.natsConn = nc

	publisher, err := outbox.NewNATSPublisher(nc, cfg.SubjectPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}
	if err := publisher.EnsureStream(ctx, cfg.StreamName); err != nil {
		return nil, fmt.Errorf("failed to ensure event stream: %w", err)
	}
	return publisher, nil
}

// Close releases external connections held by the service graph.
func (s *Services) Close() {
	if s.EventConsumer != nil {
		if err := s.EventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}
	if s.natsConn != nil {
		s.natsConn.Close()
	}
}
