// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/LavonTMCQ/spear-agents/internal/approval"
	"github.com/LavonTMCQ/spear-agents/internal/config"
	"github.com/LavonTMCQ/spear-agents/internal/logging"
	"github.com/LavonTMCQ/spear-agents/internal/persistence/postgres"
	"github.com/LavonTMCQ/spear-agents/internal/repository"
	"github.com/LavonTMCQ/spear-agents/internal/spearapi"
	"github.com/LavonTMCQ/spear-agents/internal/sweeper"
	"github.com/LavonTMCQ/spear-agents/internal/workflow/checkin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("sweeper requires DATABASE_URL; in-memory stores have nothing to sweep across processes")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	runRepo := repository.NewRunRepo(pool)
	approvalRepo := repository.NewApprovalRepo(pool)

	spearClient := spearapi.New(spearapi.Config{
		BaseURL: cfg.SpearAPIURL,
		APIKey:  cfg.SpearAPIKey,
		Logger:  logger,
	})

	gate := approval.NewGate(approvalRepo, logger)

	checkinEngine, err := checkin.New(spearClient, runRepo, logger)
	if err != nil {
		log.Fatalf("build workflow: %v", err)
	}

	s := sweeper.New(gate, checkinEngine, runRepo, cfg.ApprovalTTL, logger)

	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		if err := s.SweepOnce(ctx); err != nil {
			logger.Error("sweep failed", "error", err)
		}
	}); err != nil {
		log.Fatalf("invalid SWEEP_SCHEDULE %q: %v", cfg.SweepSchedule, err)
	}

	logger.Info("sweeper started",
		"schedule", cfg.SweepSchedule,
		"approval_ttl", cfg.ApprovalTTL.String(),
	)
	c.Start()

	<-ctx.Done()
	logger.Info("sweeper stopping")
	<-c.Stop().Done()
}
