package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/adjustment"
	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/expense"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/purchasing"
	"github.com/meridian-erp/meridian-erp/internal/reports"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
	"github.com/meridian-erp/meridian-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.NewPool(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	runner := db.PoolRunner{Pool: pool}
	auditLogger := shared.NewAuditLogger(pool, logger)
	guard := shared.IdempotencyGuard{}
	mappingRepo := ledger.NewMappingRepository()

	sequenceService := sequence.NewService(sequence.NewRepository())
	stockService := stock.NewService(stock.NewRepository())
	ledgerService := ledger.NewService(ledger.NewRepository(), sequenceService, runner, pool, auditLogger)

	salesService := sales.NewService(sales.NewRepository(), runner, sequenceService, stockService, ledgerService, mappingRepo, guard, auditLogger)
	purchasingService := purchasing.NewService(purchasing.NewRepository(), runner, sequenceService, stockService, ledgerService, mappingRepo, guard, auditLogger)
	expenseService := expense.NewService(expense.NewRepository(), runner, sequenceService, ledgerService, mappingRepo, guard, auditLogger)
	adjustmentService := adjustment.NewService(adjustment.NewRepository(), runner, sequenceService, stockService, ledgerService, mappingRepo, guard, auditLogger)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reports.NewService(ledgerService, reportCache)
	if err := reportCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("report cache invalidation listener", slog.Any("error", err))
	}

	// Every posting path bumps the report cache version once its transaction
	// commits, so cached trial balances never outlive the ledger they summarise.
	ledgerService.WithReportInvalidator(reportService)
	salesService.WithReportInvalidator(reportService)
	purchasingService.WithReportInvalidator(reportService)
	expenseService.WithReportInvalidator(reportService)
	adjustmentService.WithReportInvalidator(reportService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           observability.NewMetrics(),
		LedgerHandler:     ledger.NewHandler(logger, ledgerService),
		SalesHandler:      sales.NewHandler(logger, salesService),
		PurchasingHandler: purchasing.NewHandler(logger, purchasingService),
		ExpenseHandler:    expense.NewHandler(logger, expenseService),
		AdjustmentHandler: adjustment.NewHandler(logger, adjustmentService),
		StockHandler:      stock.NewHandler(logger, stock.NewRepository(), pool),
		ReportsHandler:    reports.NewHandler(logger, reportService),
		JobsHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
