// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LavonTMCQ/spear-agents/internal/approval"
	"github.com/LavonTMCQ/spear-agents/internal/config"
	"github.com/LavonTMCQ/spear-agents/internal/engine"
	"github.com/LavonTMCQ/spear-agents/internal/knowledge"
	"github.com/LavonTMCQ/spear-agents/internal/logging"
	"github.com/LavonTMCQ/spear-agents/internal/persistence/postgres"
	"github.com/LavonTMCQ/spear-agents/internal/repository"
	"github.com/LavonTMCQ/spear-agents/internal/spearapi"
	"github.com/LavonTMCQ/spear-agents/internal/tools"
	httptransport "github.com/LavonTMCQ/spear-agents/internal/transport/http"
	"github.com/LavonTMCQ/spear-agents/internal/workflow/checkin"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	var (
		runStore      engine.RunStore
		approvalStore approval.Store
		health        httptransport.HealthChecker
	)

	// Without a DATABASE_URL the service runs on in-process stores; runs and
	// approvals then do not survive a restart.
	var retriever *knowledge.Retriever
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer pool.Close()

		if cfg.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
				log.Fatalf("schema bootstrap failed: %v", err)
			}
		}

		runStore = repository.NewRunRepo(pool)
		approvalStore = repository.NewApprovalRepo(pool)
		health = postgres.NewSchemaHealthChecker(pool)

		var embedder knowledge.Embedder
		if cfg.EmbedURL != "" {
			embedder = knowledge.NewHTTPEmbedder(cfg.EmbedURL, cfg.EmbedModel, cfg.SpearAPIKey)
		}
		retriever = knowledge.NewRetriever(pool, embedder, cfg.RAGTopK, logger)
	} else {
		logger.Warn("no DATABASE_URL configured, using in-memory stores")
		runStore = engine.NewMemoryRunStore()
		approvalStore = approval.NewMemoryStore()
		retriever = knowledge.NewRetriever(nil, nil, cfg.RAGTopK, logger)
	}

	spearClient := spearapi.New(spearapi.Config{
		BaseURL: cfg.SpearAPIURL,
		APIKey:  cfg.SpearAPIKey,
		Logger:  logger,
	})

	toolDeps := tools.Deps{API: spearClient, Knowledge: retriever}
	gate := approval.NewGate(approvalStore, logger)
	gate.Register(tools.Customer(toolDeps)...)
	gate.Register(tools.Admin(toolDeps)...)

	checkinEngine, err := checkin.New(spearClient, runStore, logger)
	if err != nil {
		log.Fatalf("build workflow: %v", err)
	}

	handler := httptransport.NewRouter(httptransport.Deps{
		Checkin:    checkinEngine,
		Tools:      gate,
		Knowledge:  retriever,
		Health:     health,
		Logger:     logger,
		AdminToken: cfg.AdminToken,
		Version:    Version,
		Commit:     Commit,
		BuildDate:  BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
