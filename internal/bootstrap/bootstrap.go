package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sync-server/internal/config"
	"sync-server/internal/observability"
	"sync-server/internal/platforms"
	"sync-server/internal/store"
	"sync-server/internal/synclock"

	kafkaClient "sync-server/internal/clients/kafka"
	redisClient "sync-server/internal/clients/redis"
	integrationHandler "sync-server/internal/integrations/handler"
	integrationProcessor "sync-server/internal/integrations/processor"
	"sync-server/internal/jobs/scheduler"
	"sync-server/internal/jobs/scheduler/jobs"
	oauthHandler "sync-server/internal/oauth/handler"
	oauthProcessor "sync-server/internal/oauth/processor"
	syncHandler "sync-server/internal/sync/handler"
	syncProcessor "sync-server/internal/sync/processor"
	webhookConsumer "sync-server/internal/webhooks/consumer"
	webhookHandler "sync-server/internal/webhooks/handler"
	webhookProcessor "sync-server/internal/webhooks/processor"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Store
	Logger *observability.Logger

	// Handlers
	IntegrationHandler integrationHandler.Handler
	SyncHandler        syncHandler.Handler
	OAuthHandler       oauthHandler.Handler
	WebhookHandler     webhookHandler.Handler

	// Background workers
	Scheduler       *scheduler.Scheduler
	WebhookConsumer *webhookConsumer.Consumer

	// Clients (for cleanup)
	Redis         *redisClient.Client
	KafkaProducer *kafkaClient.Producer
	KafkaConsumer *kafkaClient.Consumer
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	var err error
	deps.Store, err = store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize platform adapter registry
	registry := platforms.NewRegistry()
	registry.Register(platforms.NewFacebookAdapter(
		cfg.Platforms.Facebook.ClientID, cfg.Platforms.Facebook.ClientSecret, logger))
	registry.Register(platforms.NewTikTokAdapter(
		cfg.Platforms.TikTok.ClientID, cfg.Platforms.TikTok.ClientSecret, logger))
	registry.Register(platforms.NewLineAdapter(
		cfg.Platforms.Line.ClientID, cfg.Platforms.Line.ClientSecret, logger))
	registry.Register(platforms.NewShopeeAdapter(
		cfg.Platforms.Shopee.ClientID, cfg.Platforms.Shopee.ClientSecret, logger))
	registry.Register(platforms.NewGoogleAnalyticsAdapter(
		cfg.Platforms.GoogleAnalytics.ClientID, cfg.Platforms.GoogleAnalytics.ClientSecret, logger))

	// Initialize redis for the per-integration sync lease
	deps.Redis, err = redisClient.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	locker := synclock.New(deps.Redis, 15*time.Minute, logger)

	// Initialize Kafka clients when event streaming is enabled
	var publisher webhookProcessor.Publisher
	if cfg.Kafka.Enabled {
		brokerList := strings.Split(cfg.Kafka.Brokers, ",")
		deps.KafkaProducer = kafkaClient.NewProducer(kafkaClient.ProducerConfig{
			Brokers: brokerList,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		deps.KafkaConsumer = kafkaClient.NewConsumer(kafkaClient.ConsumerConfig{
			Brokers: brokerList,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.ConsumerGroup,
		}, logger)
		publisher = deps.KafkaProducer
	}

	// Initialize integration processor and handler
	integrationProc := integrationProcessor.New(&deps.Store, registry, logger)
	deps.IntegrationHandler = integrationHandler.New(integrationProc, logger)

	// Initialize sync processor and handler
	syncProc := syncProcessor.New(&deps.Store, registry, cfg.Platforms.WebAppURI, logger)
	deps.SyncHandler = syncHandler.New(syncProc, logger)

	// Initialize oauth processor and handler
	oauthProc := oauthProcessor.New(&deps.Store, registry, logger)
	deps.OAuthHandler = oauthHandler.New(oauthProc, cfg.Platforms.FailureRedirectURI, logger)

	// Initialize webhook dispatcher, processor and handler
	dispatcher := webhookProcessor.NewDispatcher(logger)
	webhookProcessor.RegisterDefaultHandlers(dispatcher, &deps.Store, logger)
	webhookProc := webhookProcessor.New(&deps.Store, dispatcher, publisher, map[string]string{
		store.PlatformFacebook: cfg.Platforms.Facebook.WebhookSecret,
		store.PlatformTikTok:   cfg.Platforms.TikTok.WebhookSecret,
		store.PlatformLine:     cfg.Platforms.Line.WebhookSecret,
		store.PlatformShopee:   cfg.Platforms.Shopee.WebhookSecret,
	}, logger)
	deps.WebhookHandler = webhookHandler.New(webhookProc, cfg.Platforms.WebhookVerifyToken, logger)

	// Initialize webhook event consumer when Kafka is enabled
	if cfg.Kafka.Enabled {
		deps.WebhookConsumer = webhookConsumer.New(deps.KafkaConsumer, &webhookProc, cfg.Scheduler.DispatchWorkers, logger)
	}

	// Initialize the scheduler with the sync and oauth purge jobs
	deps.Scheduler = scheduler.New(logger)
	deps.Scheduler.Register(jobs.NewIntegrationSyncJob(
		&deps.Store, &syncProc, locker, cfg.Scheduler.Interval, cfg.Scheduler.MaxConcurrency, logger))
	deps.Scheduler.Register(jobs.NewOAuthStatePurgeJob(&oauthProc, 1*time.Hour, logger))

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.KafkaProducer != nil {
		d.KafkaProducer.Close()
	}
	if d.KafkaConsumer != nil {
		d.KafkaConsumer.Close()
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
}
