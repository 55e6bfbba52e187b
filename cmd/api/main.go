package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"answering-platform/internal/access"
	"answering-platform/internal/audit"
	"answering-platform/internal/auth"
	"answering-platform/internal/billing"
	"answering-platform/internal/calls"
	"answering-platform/internal/config"
	"answering-platform/internal/disputes"
	"answering-platform/internal/httpapi"
	"answering-platform/internal/leads"
	"answering-platform/internal/notify"
	"answering-platform/internal/provider"
	"answering-platform/internal/reporting"
	"answering-platform/internal/tenant"
	"answering-platform/internal/webhook"
	"answering-platform/pkg/logger"
	"answering-platform/pkg/metrics"
	"answering-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := metrics.New()

	// Services, wired bottom-up.
	tenants := tenant.NewRepository(db)
	resolver := tenant.NewResolver(tenants, log)
	checker := access.NewChecker(tenants)
	recorder := calls.NewRecorder(db)
	leadRepo := leads.NewPostgresRepository(db)
	extractor := leads.NewExtractor(leadRepo)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	var charger billing.OverageCharger
	if cfg.Billing.StripeSecretKey != "" {
		charger = billing.NewStripeCharger(cfg.Billing.StripeSecretKey)
	}
	biller := billing.NewBiller(db, cfg.Billing, charger)

	disputeSvc := disputes.NewService(disputes.NewPostgresRepository(db), biller, auditSvc)

	reports := reporting.NewService(reporting.NewPostgresRepo(db),
		func(ctx context.Context, organizationID string) (int, error) {
			org, err := tenants.GetOrganization(ctx, organizationID)
			if err != nil {
				return 0, err
			}
			return biller.IncludedCalls(org.Plan), nil
		})

	notifier := notify.NewDispatcher(notify.NewSMSSender(cfg.SMS), notify.NewWorkflowTrigger(), log, reg)

	hooks := &webhook.Handler{
		Resolver:      resolver,
		Tenants:       tenants,
		Checker:       checker,
		Recorder:      recorder,
		Extractor:     extractor,
		Biller:        biller,
		Control:       provider.NewCallControl(cfg.Provider),
		Notifier:      notifier,
		Audit:         auditSvc,
		Redis:         rdb,
		Metrics:       reg,
		WebhookSecret: cfg.Provider.WebhookSecret,
	}

	api := httpapi.Handlers{
		Auth:     authManager,
		Tenants:  tenants,
		Recorder: recorder,
		Leads:    leadRepo,
		Biller:   biller,
		Disputes: disputeSvc,
		Reports:  reports,
		Audit:    auditSvc,
	}

	reconciler := billing.NewReconciler(db, tenants, log)
	if err := reconciler.Start(); err != nil {
		log.Error("reconciler init failed", "err", err)
		os.Exit(1)
	}
	defer reconciler.Stop()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, hooks, api, reg, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
