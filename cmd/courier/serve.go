package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/courier/common/id"
	"basegraph.app/courier/common/logger"
	"basegraph.app/courier/common/otel"
	"basegraph.app/courier/core/config"
	"basegraph.app/courier/internal/http/handler/webhook"
	"basegraph.app/courier/internal/http/middleware"
	httprouter "basegraph.app/courier/internal/http/router"
	"basegraph.app/courier/internal/ledger"
	"basegraph.app/courier/internal/store"
	"basegraph.app/courier/internal/worker"
)

var nodeID int64

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and notification poller",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int64Var(&nodeID, "node-id", 1, "Snowflake node id for run ids")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		return err
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "courier starting",
		"env", cfg.Env,
		"handle", cfg.Bot.Handle,
		"control_repo", cfg.Workflow.ControlRepo,
		"ledger_driver", cfg.Ledger.Driver)

	if err := id.Init(nodeID); err != nil {
		return err
	}

	ledgerStore, err := store.NewLedgerStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening ledger store: %w", err)
	}
	defer ledgerStore.Close()

	dispatched, err := ledger.New(ctx, ledgerStore)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "ledger loaded", "dispatched_ids", dispatched.Len())

	github, pipelines, err := buildPipelines(cfg)
	if err != nil {
		return err
	}

	processor := worker.NewProcessor(pipelines, github, dispatched, cfg.Workflow, cfg.Poll.NotificationTimeout)
	w := worker.New(github, processor, worker.Config{
		Interval:         cfg.Poll.Interval,
		RateLimitBackoff: cfg.Poll.RateLimitBackoff,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg, w),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	runCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	pollDone := make(chan struct{})
	if cfg.Poll.Enabled {
		go func() {
			defer close(pollDone)
			if err := w.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.ErrorContext(ctx, "poller stopped", "error", err)
			}
		}()
	} else {
		close(pollDone)
		slog.InfoContext(ctx, "polling disabled, serving webhooks only")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Poll.NotificationTimeout+10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	stopPolling()
	<-pollDone

	drained := make(chan struct{})
	go func() {
		w.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		slog.InfoContext(shutdownCtx, "in-flight notifications drained")
	case <-shutdownCtx.Done():
		slog.WarnContext(shutdownCtx, "gave up waiting for in-flight notifications")
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
	return nil
}

func setupRouter(cfg config.Config, submitter webhook.Submitter) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	routes := httprouter.RouterConfig{
		ServiceName:   cfg.OTel.ServiceName,
		GitHubWebhook: webhook.NewGitHubWebhookHandler(cfg.GitHub.WebhookSecret, cfg.Bot.Handle, submitter),
	}
	if cfg.GitLab.Enabled() {
		routes.GitLabWebhook = webhook.NewGitLabWebhookHandler(cfg.GitLab.WebhookToken, cfg.Bot.Handle, submitter)
	}
	httprouter.SetupRoutes(router, routes)

	return router
}
