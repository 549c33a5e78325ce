// Package pipelineconfig loads the ini-format configuration file that
// describes the pipeline's MySQL connection, table lock order, and
// per-stage tuning knobs. A missing stage section falls back to documented
// defaults with a warning log rather than aborting startup; a missing or
// unreadable file, or a missing or invalid [MySQL] section, is an error.
package pipelineconfig

import (
	"log/slog"
	"time"

	"gopkg.in/ini.v1"

	"github.com/keirindata/pipeline/internal/store"
)

const (
	defaultMaxWorkers      = 3
	defaultMaxWorkersStage5 = 5
	defaultRateLimitWait   = 1 * time.Second
	defaultRequestInterval = 1 * time.Second
)

// StageTuning holds per-stage worker pool and throttling knobs.
type StageTuning struct {
	MaxWorkers      int
	RateLimitWait   time.Duration
	RequestInterval time.Duration
}

// Config is the fully-resolved pipeline configuration: MySQL connection
// parameters plus per-stage tuning. Lock order is loaded separately via
// store.LoadLockOrder, since Savers consume it directly.
type Config struct {
	MySQL  *store.Config
	Stages map[string]StageTuning
	// LineOverridePath is the optional YAML file of manual line-formation
	// corrections consumed by the race card stage. Empty means no overrides.
	LineOverridePath string
}

// defaultStageTuning returns the documented defaults for a stage name.
// Stage 5 defaults to a larger worker pool than the others.
func defaultStageTuning(stage string) StageTuning {
	workers := defaultMaxWorkers
	if stage == "step5" {
		workers = defaultMaxWorkersStage5
	}
	return StageTuning{
		MaxWorkers:      workers,
		RateLimitWait:   defaultRateLimitWait,
		RequestInterval: defaultRequestInterval,
	}
}

// Load reads path and returns a Config. A missing or unreadable file is
// returned as an error, and so is a missing or invalid [MySQL] section —
// without connection parameters the pipeline has nothing to talk to and
// refuses to start, per the fatal-config-error error kind. A missing stage
// section falls back to that stage's documented defaults.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := &Config{
		Stages: map[string]StageTuning{
			"step2": defaultStageTuning("step2"),
			"step3": defaultStageTuning("step3"),
			"step4": defaultStageTuning("step4"),
			"step5": defaultStageTuning("step5"),
		},
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	mysqlSection, err := file.GetSection("MySQL")
	if err != nil {
		return nil, err
	}

	host := mysqlSection.Key("host").String()
	user := mysqlSection.Key("user").String()
	password := mysqlSection.Key("password").String()
	database := mysqlSection.Key("database").String()
	port := mysqlSection.Key("port").MustInt(0)

	mysqlConfig := store.NewConfig(host, port, user, password, database)
	if poolSize := mysqlSection.Key("pool_size").MustInt(0); poolSize > 0 {
		mysqlConfig.PoolSize = poolSize
	}
	mysqlConfig.PoolName = mysqlSection.Key("pool_name").String()
	if err := mysqlConfig.Validate(); err != nil {
		return nil, err
	}
	cfg.MySQL = mysqlConfig

	for _, name := range []string{"step2", "step3", "step4", "step5"} {
		section, err := file.GetSection(name)
		if err != nil {
			logger.Warn("pipeline config missing stage section, using defaults", "stage", name)
			continue
		}
		tuning := cfg.Stages[name]
		if v := section.Key("max_workers").MustInt(0); v > 0 {
			tuning.MaxWorkers = v
		}
		if v := section.Key("rate_limit_wait").MustFloat64(-1); v >= 0 {
			tuning.RateLimitWait = time.Duration(v * float64(time.Second))
		}
		if v := section.Key("request_interval").MustFloat64(-1); v >= 0 {
			tuning.RequestInterval = time.Duration(v * float64(time.Second))
		}
		cfg.Stages[name] = tuning
	}

	if section, err := file.GetSection("lineoverride"); err == nil {
		cfg.LineOverridePath = section.Key("path").String()
	}

	return cfg, nil
}
