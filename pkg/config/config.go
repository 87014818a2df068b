// Package config aggregates every subsystem's environment configuration
// into one struct decoded and validated at startup.
package config

import (
	"fmt"

	"github.com/joeshaw/envdecode"

	"github.com/aifeedco/aifeed/pkg/api"
	"github.com/aifeedco/aifeed/pkg/api/auth"
	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/digest"
	"github.com/aifeedco/aifeed/pkg/enrich"
	"github.com/aifeedco/aifeed/pkg/lib"
	"github.com/aifeedco/aifeed/pkg/lib/log"
	"github.com/aifeedco/aifeed/pkg/llms"
	"github.com/aifeedco/aifeed/pkg/qa"
	"github.com/aifeedco/aifeed/pkg/search"
	"github.com/aifeedco/aifeed/pkg/social"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

type Config struct {
	Log       log.Config       `env:""`
	API       api.Config       `env:""`
	Auth      auth.Config      `env:""`
	DB        postgres.Config  `env:""`
	LLM       llms.Config      `env:""`
	Collector collector.Config `env:""`
	Enrich    enrich.Config    `env:""`
	Search    search.Config    `env:""`
	QA        qa.Config        `env:""`
	Social    social.Config    `env:""`
	Digest    digest.Config    `env:""`
}

func Load() (*Config, error) {
	var cfg Config

	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := lib.ValidateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
