package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"procurex-bidding-engine/internal/adapters/broadcaster"
	"procurex-bidding-engine/internal/adapters/db"
	"procurex-bidding-engine/internal/adapters/redis"
	"procurex-bidding-engine/internal/adapters/scheduler"
	"procurex-bidding-engine/internal/adapters/ws"
	"procurex-bidding-engine/internal/app"
	"procurex-bidding-engine/internal/config"
	"procurex-bidding-engine/internal/domain/ranking"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	initLogging(cfg)

	log.Info().Msg("Starting Procurex Bidding Engine...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection and schema
	dbConn, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	if err := dbConn.Migrate(cfg.Database.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	log.Info().Msg("Database connection established")

	// Create repositories
	repoFactory := db.NewRepositoryFactory(dbConn, cfg)
	auctionRepo := repoFactory.GetAuctionRepository()
	bidRepo := repoFactory.GetBidRepository()
	itemRepo := repoFactory.GetItemRepository()
	userRepo := repoFactory.GetUserRepository()
	auditRepo := repoFactory.GetAuditRepository()
	summaryRepo := repoFactory.GetSummaryRepository()

	log.Info().Msg("Database repositories initialized")

	// Create Redis client
	redisClient := redis.NewClient(cfg)
	if err := redis.PingRedis(redisClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	log.Info().Msg("Redis connection established")

	// Create Redis broadcaster
	redisBroadcaster := broadcaster.NewBroadcaster(broadcaster.RedisBroadcasterParams{
		RedisClient: redisClient,
		Logger:      log.Logger,
	})
	log.Info().Msg("Redis broadcaster initialized")

	// Create business services
	rankingEngine := ranking.NewEngine()

	auctionService := app.NewAuctionService(app.AuctionServiceParams{
		AuctionRepo: auctionRepo,
		ItemRepo:    itemRepo,
		UserRepo:    userRepo,
		SummaryRepo: summaryRepo,
		AuditRepo:   auditRepo,
		Broadcaster: redisBroadcaster,
		Logger:      log.Logger,
	})
	bidService := app.NewBidService(app.BidServiceParams{
		BidRepo:     bidRepo,
		AuctionRepo: auctionRepo,
		ItemRepo:    itemRepo,
		UserRepo:    userRepo,
		Broadcaster: redisBroadcaster,
		Engine:      rankingEngine,
		Config:      cfg,
		Logger:      log.Logger,
	})

	log.Info().Msg("Business services initialized")

	// Warm the ranking views so reads do not hit a cold projection. Serving
	// with a half-warmed projection risks wrong best offers, so a failure
	// here is fatal.
	if err := bidService.WarmLiveAuctions(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to warm ranking views")
	}

	// Create lifecycle sweeper
	lifecycleSweeper := scheduler.NewLifecycleSweeper(scheduler.LifecycleSweeperParams{
		RedisClient: redisClient,
		Service:     auctionService,
		Config:      cfg,
		Logger:      log.Logger,
	})

	lifecycleSweeper.Start()
	log.Info().Msg("Lifecycle sweeper started")

	auctionService.SetSweeper(lifecycleSweeper)

	wsServer := ws.NewServer(ws.ServerParams{
		Config:         cfg,
		AuctionService: auctionService,
		BidService:     bidService,
		Broadcaster:    redisBroadcaster,
		Logger:         log.Logger,
	})

	log.Info().Msg("WebSocket server initialized")

	go func() {
		if err := wsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start WebSocket server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	lifecycleSweeper.Stop()
	log.Info().Msg("Lifecycle sweeper stopped")

	if err := wsServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping WebSocket server")
	}

	if err := redisBroadcaster.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing Redis broadcaster")
	}

	log.Info().Msg("Graceful shutdown completed")
}

func initLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &log.Logger
}
