package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"signalperf/internal/backtest"
	"signalperf/internal/model"
	"signalperf/internal/perf"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Infrastructure. An empty RedisAddr disables the report cache.
	SQLitePath    string        `yaml:"sqlite_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	ReportTTL     time.Duration `yaml:"report_ttl"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	FeedAddr      string        `yaml:"feed_addr"`
	LogLevel      string        `yaml:"log_level"`

	// Scheduling
	RefreshCron string `yaml:"refresh_cron"` // with seconds field
	KeepReports int    `yaml:"keep_reports"` // per (symbol, tf, rule), 0 keeps all

	// Alerts on refresh failures; empty URL logs them instead.
	AlertWebhookURL string `yaml:"alert_webhook_url"`
	AlertCritAfter  int    `yaml:"alert_crit_after"`

	Backtest Backtest `yaml:"backtest"`
	Jobs     []Job    `yaml:"jobs"`
}

// Backtest holds the metrics engine and runner settings.
type Backtest struct {
	RiskFree       float64 `yaml:"risk_free"` // annual, fraction
	PeriodsPerYear int     `yaml:"periods_per_year"`
	FeePerTrade    float64 `yaml:"fee_per_trade"` // percent per round trip
	MCIterations   int     `yaml:"mc_iterations"`
	MCWorkers      int     `yaml:"mc_workers"`
	MCSeed         uint64  `yaml:"mc_seed"`
	Workers        int     `yaml:"workers"`
	CloseAtEnd     bool    `yaml:"close_at_end"`
}

// Job is one series and the rules swept over it, in CLI rule form
// ("MACD:fast=12,slow=26").
type Job struct {
	Symbol string   `yaml:"symbol"`
	TF     int      `yaml:"tf"`
	Point  float64  `yaml:"point"`
	Rules  []string `yaml:"rules"`
}

// RuleIdentities parses the job's rules.
func (j Job) RuleIdentities() []model.RuleIdentity {
	out := make([]model.RuleIdentity, 0, len(j.Rules))
	for _, r := range j.Rules {
		out = append(out, model.ParseRuleIdentity(r))
	}
	return out
}

// Load reads .env (if present) and the YAML file at path (if present), then
// applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env: %v", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.SQLitePath, "SQLITE_PATH")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.FeedAddr, "FEED_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.RefreshCron, "REFRESH_CRON")
	setString(&c.AlertWebhookURL, "ALERT_WEBHOOK_URL")

	if v := os.Getenv("MC_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MC_SEED: %w", err)
		}
		c.Backtest.MCSeed = n
	}
	if v := os.Getenv("MC_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MC_ITERATIONS: %w", err)
		}
		c.Backtest.MCIterations = n
	}
	if v := os.Getenv("RISK_FREE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RISK_FREE: %w", err)
		}
		c.Backtest.RiskFree = f
	}
	if v := os.Getenv("FEE_PER_TRADE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("FEE_PER_TRADE: %w", err)
		}
		c.Backtest.FeePerTrade = f
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.SQLitePath == "" {
		c.SQLitePath = "data/signalperf.db"
	}
	if c.ReportTTL == 0 {
		c.ReportTTL = 24 * time.Hour
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.FeedAddr == "" {
		c.FeedAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "0 */15 * * * *"
	}

	def := perf.DefaultConfig()
	if c.Backtest.PeriodsPerYear == 0 {
		c.Backtest.PeriodsPerYear = def.PeriodsPerYear
	}
	if c.Backtest.MCIterations == 0 {
		c.Backtest.MCIterations = def.MonteCarlo.Iterations
	}
	if c.Backtest.MCWorkers == 0 {
		c.Backtest.MCWorkers = def.MonteCarlo.Workers
	}
	if c.Backtest.MCSeed == 0 {
		c.Backtest.MCSeed = def.MonteCarlo.Seed
	}
	if c.Backtest.Workers == 0 {
		c.Backtest.Workers = 4
	}
	for i := range c.Jobs {
		if c.Jobs[i].TF == 0 {
			c.Jobs[i].TF = 3600
		}
	}
}

// Validate fails fast on settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Backtest.MCIterations <= 0 {
		errs = append(errs, errors.New("mc_iterations must be > 0"))
	}
	if c.Backtest.PeriodsPerYear <= 0 {
		errs = append(errs, errors.New("periods_per_year must be > 0"))
	}
	if c.Backtest.FeePerTrade < 0 {
		errs = append(errs, errors.New("fee_per_trade must be >= 0"))
	}
	if c.KeepReports < 0 {
		errs = append(errs, errors.New("keep_reports must be >= 0"))
	}
	for i, j := range c.Jobs {
		if strings.TrimSpace(j.Symbol) == "" {
			errs = append(errs, fmt.Errorf("jobs[%d]: symbol is required", i))
		}
		if j.TF <= 0 {
			errs = append(errs, fmt.Errorf("jobs[%d]: tf must be > 0", i))
		}
		if len(j.Rules) == 0 {
			errs = append(errs, fmt.Errorf("jobs[%d]: at least one rule is required", i))
		}
		for _, r := range j.RuleIdentities() {
			if r.Name == "" {
				errs = append(errs, fmt.Errorf("jobs[%d]: empty rule name", i))
			}
		}
	}
	return errors.Join(errs...)
}

// PerfConfig returns the metrics engine settings.
func (c *Config) PerfConfig() perf.Config {
	return perf.Config{
		RiskFree:       c.Backtest.RiskFree,
		PeriodsPerYear: c.Backtest.PeriodsPerYear,
		FeePerTrade:    c.Backtest.FeePerTrade,
		MonteCarlo: perf.MonteCarloConfig{
			Iterations: c.Backtest.MCIterations,
			Workers:    c.Backtest.MCWorkers,
			Seed:       c.Backtest.MCSeed,
		},
	}
}

// RunnerConfig returns the backtest runner settings.
func (c *Config) RunnerConfig() backtest.Config {
	return backtest.Config{
		Extractor: backtest.ExtractorConfig{CloseAtEnd: c.Backtest.CloseAtEnd},
		Workers:   c.Backtest.Workers,
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
