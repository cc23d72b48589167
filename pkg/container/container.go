package container

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/infrastructure/cache"
	"bloom-api/internal/infrastructure/contentful"
	"bloom-api/internal/infrastructure/metrics"
	"bloom-api/internal/infrastructure/parse"
	"bloom-api/internal/infrastructure/queue"
	"bloom-api/internal/infrastructure/storage"

	actionHandler "bloom-api/internal/domains/action/handler"
	actionJob "bloom-api/internal/domains/action/job"
	actionModel "bloom-api/internal/domains/action/model"
	actionService "bloom-api/internal/domains/action/service"
	bookHandler "bloom-api/internal/domains/book/handler"
	bookJob "bloom-api/internal/domains/book/job"
	bookRepo "bloom-api/internal/domains/book/repository"
	bookService "bloom-api/internal/domains/book/service"
	permissionService "bloom-api/internal/domains/permission/service"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container chứa toàn bộ dependencies của API và worker.
// Cả hai binary dùng chung graph; mỗi bên chỉ dùng phần của mình.
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	Config      *config.Config
	Cache       *cache.RedisCache
	Parse       parse.Clients
	Contentful  *contentful.Client
	Gateways    *storage.EnvironmentResolver
	QueueClient *asynq.Client
	Inspector   *asynq.Inspector

	// ========================================
	// REPOSITORY + SERVICE LAYER
	// ========================================
	BookRepo      bookRepo.Repository
	Permissions   *permissionService.Checker
	UploadService *bookService.UploadService
	ActionService *actionService.ActionService

	// ========================================
	// HANDLER LAYER (HTTP + asynq)
	// ========================================
	BookHandler         *bookHandler.Handler
	StatusHandler       *actionHandler.Handler
	Executor            *actionJob.Executor
	DeletePrefixHandler *bookJob.DeletePrefixHandler
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer builds the dependency graph in order:
// config → infrastructure → repositories → services → handlers.
func NewContainer() (*Container, error) {
	log.Info().Msg("Initializing DI container")

	c := &Container{}

	// ========================================
	// STEP 1: LOAD CONFIGURATION
	// ========================================
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	log.Info().
		Str("app_env", cfg.App.Environment).
		Str("default_env", cfg.DefaultEnvironment.String()).
		Str("storage", cfg.Storage.Driver).
		Interface("parse_envs", cfg.ConfiguredEnvironments()).
		Msg("Config loaded")

	// ========================================
	// STEP 2: INFRASTRUCTURE
	// ========================================
	if err := c.initInfrastructure(); err != nil {
		c.Cleanup()
		return nil, err
	}

	// ========================================
	// STEP 3: DOMAINS
	// ========================================
	c.initDomains()

	metrics.Register()

	log.Info().Msg("DI container ready")
	return c, nil
}

func (c *Container) initInfrastructure() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Redis: cache + asynq broker
	c.Cache = cache.NewRedisCache(c.Config.Redis.Host, c.Config.Redis.Password, c.Config.Redis.DB)
	if err := c.Cache.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}

	redisOpt := queue.RedisOpt(c.Config.Redis)
	c.QueueClient = asynq.NewClient(redisOpt)
	c.Inspector = asynq.NewInspector(redisOpt)

	c.Parse = parse.NewClients(c.Config.Parse)
	c.Contentful = contentful.NewClient(c.Config.Contentful)

	var factory storage.GatewayFactory
	switch c.Config.Storage.Driver {
	case config.StorageDriverMinIO:
		factory = storage.NewMinIOGatewayFactory(c.Config.Storage.MinIO)
	default:
		f, err := storage.NewS3GatewayFactory(ctx, c.Config.Storage)
		if err != nil {
			return fmt.Errorf("failed to init S3: %w", err)
		}
		factory = f
	}
	c.Gateways = storage.NewEnvironmentResolver(factory)

	return nil
}

func (c *Container) initDomains() {
	// Repository
	c.BookRepo = bookRepo.NewParseRepository(c.Parse, c.Cache)

	// Services
	c.Permissions = permissionService.NewChecker(c.Parse, c.Contentful, c.Cache)
	c.UploadService = bookService.NewUploadService(
		c.BookRepo,
		c.Permissions,
		c.Gateways,
		bookService.NewQueueCleanupScheduler(c.QueueClient),
	)
	c.ActionService = actionService.NewActionService(c.QueueClient, c.Inspector, c.Config.Worker)

	// HTTP handlers
	c.BookHandler = bookHandler.NewHandler(c.ActionService)
	c.StatusHandler = actionHandler.NewHandler(c.ActionService)

	// asynq handlers
	c.Executor = actionJob.NewExecutor()
	c.Executor.Register(actionModel.UploadStart, bookJob.NewUploadStartStep(c.UploadService))
	c.Executor.Register(actionModel.UploadFinish, bookJob.NewUploadFinishStep(c.UploadService))
	c.DeletePrefixHandler = bookJob.NewDeletePrefixHandler(c.Gateways)
}

// HealthCheck pings Redis and the default environment's Parse server and bucket.
func (c *Container) HealthCheck(ctx context.Context) map[string]string {
	status := map[string]string{
		"redis":   "ok",
		"parse":   "ok",
		"storage": "ok",
	}

	if err := c.Cache.Ping(ctx); err != nil {
		status["redis"] = "error: " + err.Error()
	}

	env := c.Config.DefaultEnvironment
	if client, err := c.Parse.For(env); err != nil {
		status["parse"] = "error: " + err.Error()
	} else if err := client.HealthCheck(ctx); err != nil {
		status["parse"] = "error: " + err.Error()
	}

	if gw, err := c.Gateways.Gateway(env); err != nil {
		status["storage"] = "error: " + err.Error()
	} else if err := gw.HealthCheck(ctx); err != nil {
		status["storage"] = "error: " + err.Error()
	}

	return status
}

// ========================================
// CLEANUP
// ========================================

// Cleanup đóng các kết nối; gọi khi shutdown
func (c *Container) Cleanup() {
	log.Info().Msg("Cleaning up resources")

	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close asynq client")
		}
	}
	if c.Inspector != nil {
		if err := c.Inspector.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close asynq inspector")
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis")
		}
	}

	log.Info().Msg("Cleanup completed")
}
