// SPDX-License-Identifier: Apache-2.0

// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"dev"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	AdminToken string `env:"ADMIN_TOKEN"`

	SpearAPIURL string `env:"SPEAR_API_URL" envDefault:"https://www.spear-global.com/api"`
	SpearAPIKey string `env:"SPEAR_API_KEY"`

	EmbedURL   string `env:"SPEAR_EMBED_URL"`
	EmbedModel string `env:"SPEAR_EMBED_MODEL" envDefault:"text-embedding-3-small"`
	RAGTopK    int    `env:"SPEAR_RAG_TOP_K" envDefault:"5"`

	ApprovalTTL   time.Duration `env:"APPROVAL_TTL" envDefault:"168h"`
	SweepSchedule string        `env:"SWEEP_SCHEDULE" envDefault:"@every 15m"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.ApprovalTTL <= 0 {
		return Config{}, fmt.Errorf("APPROVAL_TTL must be positive, got %s", cfg.ApprovalTTL)
	}
	return cfg, nil
}

func (c Config) Production() bool {
	return c.Env == "prod" || c.Env == "production"
}
