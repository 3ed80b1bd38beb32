package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/maintenance-service/internal/api/http"
	"github.com/spec-kit/maintenance-service/internal/api/http/handlers"
	"github.com/spec-kit/maintenance-service/internal/auth"
	"github.com/spec-kit/maintenance-service/internal/cedar"
	"github.com/spec-kit/maintenance-service/internal/config"
	"github.com/spec-kit/maintenance-service/internal/events"
	"github.com/spec-kit/maintenance-service/internal/lifecycle"
	"github.com/spec-kit/maintenance-service/internal/observability"
	"github.com/spec-kit/maintenance-service/internal/persistence"
	"github.com/spec-kit/maintenance-service/internal/repository"
	"github.com/spec-kit/maintenance-service/internal/service"
	"github.com/spec-kit/maintenance-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	cedarDB, err := persistence.NewCedar(ctx, cfg.Cedar, logger)
	if err != nil {
		logger.Fatal("failed to configure cedar connection", zap.Error(err))
	}
	defer cedarDB.Close()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	ruleRepo := repository.NewApprovalRuleRepository(pool)
	logRepo := repository.NewIntegrationLogRepository(pool)

	var engineDB cedar.DB
	if cedarPool := cedarDB.PoolHandle(); cedarPool != nil {
		engineDB = cedarPool
	}
	engine, err := cedar.NewEngine(
		engineDB,
		cedar.DefaultMappingTable(cfg.Cedar.MappingVersion),
		cedar.Options{
			WorkflowTemplate:  cfg.Cedar.WorkflowTemplate,
			WorkflowFirstStep: cfg.Cedar.WorkflowFirstStep,
			SourceSystem:      cfg.Cedar.SourceSystemCode,
			CallTimeout:       cfg.Cedar.CallTimeout(),
		},
		logRepo,
		logger,
	)
	if err != nil {
		logger.Fatal("invalid cedar status mapping", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()

	machine := lifecycle.NewStateMachine(lifecycle.GuardLevels{
		Accept:      cfg.Approval.AcceptLevel,
		Escalate:    cfg.Approval.EscalateLevel,
		Review:      cfg.Approval.ReviewLevel,
		Complete:    cfg.Approval.CompleteLevel,
		Close:       cfg.Approval.CloseLevel,
		Reject:      cfg.Approval.RejectLevel,
		RejectFinal: cfg.Approval.RejectFinalLevel,
		Reopen:      cfg.Approval.ReopenLevel,
	})

	approvalService := service.NewApprovalService(service.ApprovalDependencies{
		RuleRepo: ruleRepo,
		Cache:    redis.ClientHandle(),
		CacheTTL: cfg.Approval.CacheTTL(),
		Logger:   logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Machine:    machine,
		Authorizer: approvalService,
		Syncer:     engine,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	syncService := service.NewSyncService(service.SyncDependencies{
		TicketRepo: ticketRepo,
		LogRepo:    logRepo,
		Gateway:    engine,
		Logger:     logger,
	})
	notificationService := service.NewNotificationService(dispatcher, logger)
	worker.StartNotificationWorker(notificationService)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewMiddleware(tokenManager)

	metrics := observability.NewMetrics()
	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, engine.MappingVersion(), pg, cedarDB, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Approvals:      handlers.NewApprovalsHandler(approvalService),
		Sync:           handlers.NewSyncHandler(syncService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
