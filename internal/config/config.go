package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Addr        string        `yaml:"addr"`
	Environment string        `yaml:"environment"`
	LogLevel    string        `yaml:"log_level"`
	DB          DB            `yaml:"db"`
	Moderation  Moderation    `yaml:"moderation"`
	Storage     Storage       `yaml:"storage"`
	Auth        Auth          `yaml:"auth"`
	RateLimits  RateLimits    `yaml:"rate_limits"`
	Tracing     Tracing       `yaml:"tracing"`
	CORSOrigins []string      `yaml:"cors_origins"`
	ShutdownTTL time.Duration `yaml:"shutdown_timeout"`

	// path is the YAML file the config was read from, if any.
	path string
}

type DB struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type Moderation struct {
	BaseURL string        `yaml:"base_url"`
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
	// Breaker settings for calls to the moderation service.
	BreakerMaxRequests  uint32        `yaml:"breaker_max_requests"`
	BreakerInterval     time.Duration `yaml:"breaker_interval"`
	BreakerTimeout      time.Duration `yaml:"breaker_timeout"`
	BreakerMinRequests  uint32        `yaml:"breaker_min_requests"`
	BreakerFailureRatio float64       `yaml:"breaker_failure_ratio"`
}

type Storage struct {
	Backend        string `yaml:"backend"`
	Dir            string `yaml:"dir"`
	PublicBaseURL  string `yaml:"public_base_url"`
	SupabaseURL    string `yaml:"supabase_url"`
	SupabaseKey    string `yaml:"supabase_key"`
	Bucket         string `yaml:"bucket"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type RateLimits struct {
	SubmitPerMinute int `yaml:"submit_per_minute"`
	VotePerMinute   int `yaml:"vote_per_minute"`
	UploadPerMinute int `yaml:"upload_per_minute"`
}

type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Addr:        ":8080",
		Environment: EnvDevelopment,
		LogLevel:    "info",
		DB: DB{
			Driver: "sqlite",
			Path:   "stackit.db",
		},
		Moderation: Moderation{
			BaseURL:             "http://localhost:8000",
			Enabled:             true,
			Timeout:             30 * time.Second,
			BreakerMaxRequests:  3,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      30 * time.Second,
			BreakerMinRequests:  5,
			BreakerFailureRatio: 0.6,
		},
		Storage: Storage{
			Backend:        "disk",
			Dir:            "uploads",
			PublicBaseURL:  "http://localhost:8080/uploads",
			Bucket:         "stackit",
			MaxUploadBytes: 10 << 20,
		},
		Auth: Auth{
			JWTSecret: "dev-jwt-secret",
			Issuer:    "stackit",
			TokenTTL:  24 * time.Hour,
		},
		RateLimits: RateLimits{
			SubmitPerMinute: 20,
			VotePerMinute:   120,
			UploadPerMinute: 10,
		},
		Tracing: Tracing{
			ServiceName: "stackit",
			SampleRate:  1.0,
		},
		CORSOrigins: []string{"*"},
		ShutdownTTL: 10 * time.Second,
	}
}

// Load layers defaults, the YAML file named by STACKIT_CONFIG and STACKIT_*
// environment variables, then validates the result.
func Load() (Config, error) {
	return LoadFile(os.Getenv("STACKIT_CONFIG"))
}

func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.path = path
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Path is the YAML file backing this config, or "".
func (c Config) Path() string {
	return c.path
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	cfg.Addr = envString("STACKIT_ADDR", cfg.Addr)
	cfg.Environment = envString("STACKIT_ENV", cfg.Environment)
	cfg.LogLevel = envString("STACKIT_LOG_LEVEL", cfg.LogLevel)

	cfg.DB.Driver = envString("STACKIT_DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Path = envString("STACKIT_DB", cfg.DB.Path)
	cfg.DB.DSN = envString("STACKIT_DB_DSN", cfg.DB.DSN)

	cfg.Moderation.BaseURL = envString("STACKIT_MODERATION_URL", cfg.Moderation.BaseURL)
	cfg.Moderation.Enabled = envBool("STACKIT_MODERATION_ENABLED", cfg.Moderation.Enabled)
	cfg.Moderation.Timeout = envDuration("STACKIT_MODERATION_TIMEOUT", cfg.Moderation.Timeout)

	cfg.Storage.Backend = envString("STACKIT_STORAGE", cfg.Storage.Backend)
	cfg.Storage.Dir = envString("STACKIT_UPLOAD_DIR", cfg.Storage.Dir)
	cfg.Storage.PublicBaseURL = envString("STACKIT_UPLOAD_BASE_URL", cfg.Storage.PublicBaseURL)
	cfg.Storage.SupabaseURL = envString("SUPABASE_URL", cfg.Storage.SupabaseURL)
	cfg.Storage.SupabaseKey = envString("SUPABASE_KEY", cfg.Storage.SupabaseKey)
	cfg.Storage.Bucket = envString("STACKIT_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.MaxUploadBytes = int64(envInt("STACKIT_MAX_UPLOAD_BYTES", int(cfg.Storage.MaxUploadBytes)))

	cfg.Auth.JWTSecret = envString("STACKIT_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = envString("STACKIT_JWT_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.TokenTTL = envDuration("STACKIT_TOKEN_TTL", cfg.Auth.TokenTTL)

	cfg.RateLimits.SubmitPerMinute = envInt("STACKIT_RL_SUBMIT_PER_MIN", cfg.RateLimits.SubmitPerMinute)
	cfg.RateLimits.VotePerMinute = envInt("STACKIT_RL_VOTE_PER_MIN", cfg.RateLimits.VotePerMinute)
	cfg.RateLimits.UploadPerMinute = envInt("STACKIT_RL_UPLOAD_PER_MIN", cfg.RateLimits.UploadPerMinute)

	cfg.Tracing.Enabled = envBool("STACKIT_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)

	if origins := os.Getenv("STACKIT_CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			errs = append(errs, errors.New("db.path is required for sqlite"))
		}
	case "postgres":
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("db.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db driver %q", c.DB.Driver))
	}
	if c.Moderation.Timeout <= 0 {
		errs = append(errs, errors.New("moderation.timeout must be positive"))
	}
	if c.Moderation.Enabled && c.Moderation.BaseURL == "" {
		errs = append(errs, errors.New("moderation.base_url is required when moderation is enabled"))
	}
	switch c.Storage.Backend {
	case "disk":
	case "supabase":
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			errs = append(errs, errors.New("supabase url and key are required for the supabase backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Storage.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("storage.max_upload_bytes must be positive"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.IsProduction() && c.Auth.JWTSecret == Defaults().Auth.JWTSecret {
		errs = append(errs, errors.New("auth.jwt_secret must be changed in production"))
	}
	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
