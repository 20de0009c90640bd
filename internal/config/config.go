// Package config loads and validates the CometLocal TOML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like
// "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root CometLocal configuration (spec §1, §4, §6).
type Config struct {
	General    General               `toml:"general"`
	Tenants    map[string]Tenant     `toml:"tenants"`
	Browser    Browser               `toml:"browser"`
	Temporal   Temporal              `toml:"temporal"`
	API        API                   `toml:"api"`
	Matching   Matching              `toml:"matching"`
	Guardrail  Guardrail             `toml:"guardrail"`
}

// General holds process-wide defaults.
type General struct {
	Environment     string   `toml:"environment"` // "dev", "staging", "prod"
	LogLevel        string   `toml:"log_level"`
	DataDir         string   `toml:"data_dir"`
	ConfirmSecretEnv string  `toml:"confirm_secret_env"` // env var holding the HMAC secret
	RunTimeout      Duration `toml:"run_timeout"`
}

// Tenant is one (own_company) tenant's coordination surface.
type Tenant struct {
	Enabled            bool     `toml:"enabled"`
	OwnCompany         string   `toml:"own_company"`
	Platforms          []string `toml:"platforms"`
	CoordinatedCompanies []string `toml:"coordinated_companies"`
}

// Browser controls the per-run browser host.
type Browser struct {
	Image            string   `toml:"image"`
	HeadlessByDefault bool    `toml:"headless_by_default"`
	NavigationTimeout Duration `toml:"navigation_timeout"`
	MaxSearchPages   int      `toml:"max_search_pages"`
	MaxItemsPerPage  int      `toml:"max_items_per_page"`
}

// Temporal configures the workflow client/worker connection.
type Temporal struct {
	HostPort  string `toml:"host_port"`
	Namespace string `toml:"namespace"`
	TaskQueue string `toml:"task_queue"`
}

// API configures the HTTP surface.
type API struct {
	Bind string `toml:"bind"`
}

// Matching configures thresholds the matcher and decision engine use.
type Matching struct {
	MinConfidence             float64 `toml:"min_confidence"`
	ExpiringSoonThresholdDays int     `toml:"expiring_soon_threshold_days"`
}

// Guardrail configures the real-upload guardrails (spec §4.11).
type Guardrail struct {
	RequireHeaderToken bool `toml:"require_header_token"`
	MaxUploads         int  `toml:"max_uploads"`
}

// Clone returns a deep-enough copy safe to hand to a reader while a
// writer mutates the original (mirrors the teacher's RWMutexManager
// pattern, internal/config/manager.go).
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	out := *cfg
	out.Tenants = make(map[string]Tenant, len(cfg.Tenants))
	for k, v := range cfg.Tenants {
		v.Platforms = cloneStringSlice(v.Platforms)
		v.CoordinatedCompanies = cloneStringSlice(v.CoordinatedCompanies)
		out.Tenants[k] = v
	}
	return &out
}

func cloneStringSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Load reads, defaults, and validates a CometLocal TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.Environment == "" {
		cfg.General.Environment = "dev"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.DataDir == "" {
		cfg.General.DataDir = "data"
	}
	if cfg.General.ConfirmSecretEnv == "" {
		cfg.General.ConfirmSecretEnv = "COMETLOCAL_CONFIRM_SECRET"
	}
	if cfg.General.RunTimeout.Duration == 0 {
		cfg.General.RunTimeout.Duration = 30 * time.Minute
	}
	if cfg.Browser.NavigationTimeout.Duration == 0 {
		cfg.Browser.NavigationTimeout.Duration = 60 * time.Second
	}
	if cfg.Browser.MaxSearchPages == 0 {
		cfg.Browser.MaxSearchPages = 10
	}
	if cfg.Browser.MaxItemsPerPage == 0 {
		cfg.Browser.MaxItemsPerPage = 200
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "cometlocal-executor"
	}
	if cfg.API.Bind == "" {
		cfg.API.Bind = "127.0.0.1:8088"
	}
	if cfg.Matching.MinConfidence == 0 {
		cfg.Matching.MinConfidence = 0.80
	}
	if cfg.Matching.ExpiringSoonThresholdDays == 0 {
		cfg.Matching.ExpiringSoonThresholdDays = 30
	}
	if cfg.Guardrail.MaxUploads == 0 {
		cfg.Guardrail.MaxUploads = 1
	}
}

func validate(cfg *Config) error {
	switch cfg.General.Environment {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("general.environment must be one of dev, staging, prod, got %q", cfg.General.Environment)
	}
	if cfg.Matching.MinConfidence < 0 || cfg.Matching.MinConfidence > 1 {
		return fmt.Errorf("matching.min_confidence must be within [0,1], got %v", cfg.Matching.MinConfidence)
	}
	if cfg.Guardrail.MaxUploads != 1 {
		return fmt.Errorf("guardrail.max_uploads must be exactly 1 (spec invariant), got %d", cfg.Guardrail.MaxUploads)
	}
	for name, t := range cfg.Tenants {
		if strings.TrimSpace(t.OwnCompany) == "" {
			return fmt.Errorf("tenants.%s.own_company must not be empty", name)
		}
	}
	return nil
}

// ConfirmSecret reads the HMAC secret for confirm_token signing from
// the configured environment variable.
func (cfg *Config) ConfirmSecret() ([]byte, error) {
	v := os.Getenv(cfg.General.ConfirmSecretEnv)
	if v == "" {
		return nil, fmt.Errorf("config: environment variable %s is unset", cfg.General.ConfirmSecretEnv)
	}
	return []byte(v), nil
}
