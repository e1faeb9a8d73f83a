package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"liquidityhub/observability/logging"
	"liquidityhub/observability/otel"
)

const (
	defaultListen        = ":8443"
	defaultRatePerMinute = 600
	defaultBurst         = 60
	defaultClockSkew     = 2 * time.Minute
	defaultJournalPage   = 500
)

// Storage backends understood by ledgerd.
const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config captures the runtime settings for the ledger daemon.
type Config struct {
	ListenAddress string             `yaml:"listen"`
	Environment   string             `yaml:"environment"`
	LedgerConfig  string             `yaml:"ledger_config"`
	Storage       StorageConfig      `yaml:"storage"`
	Auth          AuthConfig         `yaml:"auth"`
	RateLimit     RateLimitConfig    `yaml:"rate_limit"`
	Logging       logging.FileConfig `yaml:"logging"`
	Telemetry     otel.Config        `yaml:"telemetry"`
	Export        ExportConfig       `yaml:"export"`
	Stream        StreamConfig       `yaml:"stream"`
}

// StorageConfig selects the persistence backend for ledger records.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	// Path is the on-disk location for leveldb, bolt and sqlite.
	Path string `yaml:"path"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`
}

// AuthConfig configures bearer token verification. Tokens are HMAC signed
// JWTs whose subject names the calling participant.
type AuthConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
	// AdminSubjects may list assets and configure participants.
	AdminSubjects []string `yaml:"admin_subjects"`
}

// RateLimitConfig bounds requests per authenticated subject.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// ExportConfig controls the parquet journal export.
type ExportConfig struct {
	Directory string `yaml:"directory"`
	PageSize  int    `yaml:"page_size"`
}

// StreamConfig tunes the websocket event stream.
type StreamConfig struct {
	Buffer int `yaml:"buffer"`
	// OriginPatterns lists browser origins allowed to open the stream.
	OriginPatterns []string `yaml:"origin_patterns"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
		Storage:       StorageConfig{Backend: BackendMemory},
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.LedgerConfig = strings.TrimSpace(cfg.LedgerConfig)
	cfg.Storage.normalize()
	cfg.Auth.normalize()
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = defaultRatePerMinute
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}
	cfg.Export.Directory = strings.TrimSpace(cfg.Export.Directory)
	if cfg.Export.PageSize <= 0 {
		cfg.Export.PageSize = defaultJournalPage
	}
	if cfg.Stream.Buffer <= 0 {
		cfg.Stream.Buffer = 64
	}
	cfg.Telemetry.ServiceName = "ledgerd"
	cfg.Telemetry.Environment = cfg.Environment
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if err := cfg.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0, 1]")
	}
	return nil
}

func (cfg *StorageConfig) normalize() {
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	cfg.Path = strings.TrimSpace(cfg.Path)
	cfg.DSN = strings.TrimSpace(cfg.DSN)
}

func (cfg StorageConfig) validate() error {
	switch cfg.Backend {
	case BackendMemory:
		return nil
	case BackendLevelDB, BackendBolt, BackendSQLite:
		if cfg.Path == "" {
			return fmt.Errorf("%s backend requires path", cfg.Backend)
		}
		return nil
	case BackendPostgres:
		if cfg.DSN == "" {
			return fmt.Errorf("postgres backend requires dsn")
		}
		return nil
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Durable reports whether the backend survives a restart.
func (cfg StorageConfig) Durable() bool {
	return cfg.Backend != BackendMemory
}

func (cfg *AuthConfig) normalize() {
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = defaultClockSkew
	}
	subjects := make([]string, 0, len(cfg.AdminSubjects))
	for _, subject := range cfg.AdminSubjects {
		if trimmed := strings.TrimSpace(subject); trimmed != "" {
			subjects = append(subjects, trimmed)
		}
	}
	cfg.AdminSubjects = subjects
}

func (cfg AuthConfig) validate() error {
	if cfg.HMACSecret == "" {
		return fmt.Errorf("hmac_secret is required")
	}
	if len(cfg.HMACSecret) < 32 {
		return fmt.Errorf("hmac_secret must be at least 32 bytes")
	}
	return nil
}

// IsAdmin reports whether subject may perform administrative operations.
func (cfg AuthConfig) IsAdmin(subject string) bool {
	for _, admin := range cfg.AdminSubjects {
		if admin == subject {
			return true
		}
	}
	return false
}
