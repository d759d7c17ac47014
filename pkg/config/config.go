// Package config builds the per-run configuration: environment settings plus the
// protocol registry file. A Config is constructed once at startup and handed to
// every component; nothing in this repository reads settings from globals.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/canopy-network/defisnap/pkg/utils"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

const (
	DefaultBlockfrostURL = "https://cardano-mainnet.blockfrost.io/api/v0"
	DefaultKoiosURL      = "https://api.koios.rest/api/v1"
	DefaultProtocolsFile = "config/protocols.yaml"
)

// Job names accepted in JOBS.
const (
	JobPrices    = "prices"
	JobTVL       = "tvl"
	JobWallets   = "wallets"
	JobAPY       = "apy"
	JobRisk      = "risk"
	JobRetention = "retention"
)

// AllJobs is the execution order used when JOBS is unset or "all".
// Retention is last so it never races freshly inserted rows.
var AllJobs = []string{JobPrices, JobTVL, JobWallets, JobAPY, JobRisk, JobRetention}

// ProviderConfig holds the external data provider settings.
type ProviderConfig struct {
	BlockfrostURL       string
	BlockfrostProjectID string
	KoiosURL            string
	// Timeout bounds every single provider call.
	Timeout time.Duration
	RPS     float64
	Burst   int
	// MaxAttempts includes the first attempt.
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

// RedisConfig controls the optional run-event publisher.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type Config struct {
	PostgresURL    string
	Provider       ProviderConfig
	FetchWorkers   int
	RetentionDays  int
	StagingMode    bool
	DryRun         bool
	Jobs           []string
	Protocols      []string
	ProtocolsFile  string
	Redis          RedisConfig
	PushgatewayURL string

	Registry *Registry
}

// Load reads the environment and the registry file and validates the result.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	reg, err := LoadRegistry(cfg.ProtocolsFile)
	if err != nil {
		return nil, err
	}
	cfg.Registry = reg

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envReader collects every malformed variable so one startup error names them all.
type envReader struct {
	errs []error
}

func (r *envReader) int(key string, def int) int {
	n, err := utils.EnvInt(key, def)
	r.note(err)
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	f, err := utils.EnvFloat(key, def)
	r.note(err)
	return f
}

func (r *envReader) bool(key string, def bool) bool {
	b, err := utils.EnvBool(key, def)
	r.note(err)
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	d, err := utils.EnvDuration(key, def)
	r.note(err)
	return d
}

func (r *envReader) note(err error) {
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

// FromEnv reads environment settings only; the registry is left nil. A value that does
// not parse is an error wrapping ErrInvalid, never a silent fallback to the default.
func FromEnv() (*Config, error) {
	jobs := utils.EnvList("JOBS")
	if len(jobs) == 0 || (len(jobs) == 1 && strings.EqualFold(jobs[0], "all")) {
		jobs = append([]string(nil), AllJobs...)
	}

	protocols := utils.EnvList("PROTOCOLS")
	if len(protocols) == 1 && strings.EqualFold(protocols[0], "all") {
		protocols = nil
	}

	env := &envReader{}
	cfg := &Config{
		PostgresURL: utils.Env("POSTGRES_URL", ""),
		Provider: ProviderConfig{
			BlockfrostURL:       utils.Env("BLOCKFROST_URL", DefaultBlockfrostURL),
			BlockfrostProjectID: utils.Env("BLOCKFROST_PROJECT_ID", ""),
			KoiosURL:            utils.Env("KOIOS_URL", DefaultKoiosURL),
			Timeout:             env.duration("PROVIDER_TIMEOUT", 10*time.Second),
			RPS:                 env.float("PROVIDER_RPS", 10),
			Burst:               env.int("PROVIDER_BURST", 10),
			MaxAttempts:         env.int("PROVIDER_MAX_ATTEMPTS", 4),
			BackoffMin:          env.duration("PROVIDER_BACKOFF_MIN", 500*time.Millisecond),
			BackoffMax:          env.duration("PROVIDER_BACKOFF_MAX", 5*time.Second),
		},
		FetchWorkers:  env.int("FETCH_WORKERS", 8),
		RetentionDays: env.int("RETENTION_DAYS", 0),
		StagingMode:   env.bool("STAGING_MODE", false),
		DryRun:        env.bool("DRY_RUN", false),
		Jobs:          jobs,
		Protocols:     protocols,
		ProtocolsFile: utils.Env("PROTOCOLS_FILE", DefaultProtocolsFile),
		Redis: RedisConfig{
			Enabled:  env.bool("REDIS_ENABLED", false),
			Host:     utils.Env("REDIS_HOST", "localhost"),
			Port:     utils.Env("REDIS_PORT", "6379"),
			Password: utils.Env("REDIS_PASSWORD", ""),
			DB:       env.int("REDIS_DB", 0),
		},
		PushgatewayURL: utils.Env("PUSHGATEWAY_URL", ""),
	}
	if len(env.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(env.errs...))
	}
	return cfg, nil
}

// Validate checks credentials, job names and the registry. Every error wraps ErrInvalid.
func (c *Config) Validate() error {
	if c.PostgresURL == "" && !c.DryRun {
		return fmt.Errorf("%w: POSTGRES_URL is required unless DRY_RUN=true", ErrInvalid)
	}

	for _, j := range c.Jobs {
		if !utils.ContainsFold(AllJobs, j) {
			return fmt.Errorf("%w: unknown job %q", ErrInvalid, j)
		}
	}

	if c.Provider.MaxAttempts < 1 {
		return fmt.Errorf("%w: PROVIDER_MAX_ATTEMPTS must be >= 1", ErrInvalid)
	}
	if c.Provider.RPS <= 0 {
		return fmt.Errorf("%w: PROVIDER_RPS must be > 0", ErrInvalid)
	}
	if c.Provider.Burst < 1 {
		return fmt.Errorf("%w: PROVIDER_BURST must be >= 1", ErrInvalid)
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("%w: PROVIDER_TIMEOUT must be > 0", ErrInvalid)
	}
	if c.Provider.BackoffMin <= 0 || c.Provider.BackoffMax < c.Provider.BackoffMin {
		return fmt.Errorf("%w: PROVIDER_BACKOFF_MIN must be > 0 and <= PROVIDER_BACKOFF_MAX", ErrInvalid)
	}
	if c.FetchWorkers < 1 {
		return fmt.Errorf("%w: FETCH_WORKERS must be >= 1", ErrInvalid)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("%w: REDIS_DB must be >= 0", ErrInvalid)
	}

	if c.Registry == nil {
		return fmt.Errorf("%w: protocol registry not loaded", ErrInvalid)
	}
	if err := c.Registry.Validate(); err != nil {
		return err
	}

	for _, name := range c.Protocols {
		if _, ok := c.Registry.Protocol(name); !ok {
			return fmt.Errorf("%w: PROTOCOLS references unknown protocol %q", ErrInvalid, name)
		}
	}

	if c.Provider.BlockfrostProjectID == "" {
		if who := c.blockfrostUser(); who != "" {
			return fmt.Errorf("%w: BLOCKFROST_PROJECT_ID is required by %s", ErrInvalid, who)
		}
	}

	return nil
}

// RunsJob reports whether job is part of this run.
func (c *Config) RunsJob(job string) bool {
	return utils.ContainsFold(c.Jobs, job)
}

// SelectedProtocols returns the registry protocols this run covers, in registry order.
func (c *Config) SelectedProtocols() []ProtocolSpec {
	if c.Registry == nil {
		return nil
	}
	if len(c.Protocols) == 0 {
		return c.Registry.Protocols
	}
	var out []ProtocolSpec
	for _, p := range c.Registry.Protocols {
		if utils.ContainsFold(c.Protocols, p.Name) {
			out = append(out, p)
		}
	}
	return out
}

// blockfrostUser names the first part of this run that needs Blockfrost credentials.
func (c *Config) blockfrostUser() string {
	for _, p := range c.SelectedProtocols() {
		if c.RunsJob(JobTVL) && p.Provider == ProviderBlockfrost {
			return fmt.Sprintf("protocol %q", p.Name)
		}
		if c.RunsJob(JobWallets) && p.Wallets != nil {
			return fmt.Sprintf("top wallets of %q", p.Name)
		}
		if c.RunsJob(JobAPY) && len(p.LendingPools) > 0 && !c.StagingMode {
			return fmt.Sprintf("APY of %q", p.Name)
		}
	}
	if c.RunsJob(JobPrices) {
		for _, a := range c.Registry.Assets {
			if !a.IsLovelace() {
				return fmt.Sprintf("metadata of asset %q", a.Symbol)
			}
		}
	}
	return ""
}
