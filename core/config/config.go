package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"basegraph.app/courier/core/db"
)

type Config struct {
	OTel     OTelConfig
	GitHub   GitHubConfig
	GitLab   GitLabConfig
	Bot      BotConfig
	Workflow WorkflowConfig
	Limits   LimitsConfig
	Poll     PollConfig
	Ledger   LedgerConfig
	Env      string
	Port     string
	DB       db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type GitHubConfig struct {
	APIURL        string
	GraphQLURL    string
	BotToken      string // reads notifications, marks threads read
	Token         string // GraphQL, diffs, workflow dispatch
	WebhookSecret string
	RatePerSec    float64
	HTTPTimeout   time.Duration
}

type GitLabConfig struct {
	URL          string
	Token        string
	WebhookToken string
}

type BotConfig struct {
	Handle       string
	AllowedUsers []string
}

type WorkflowConfig struct {
	ControlRepo string
	File        string
	Ref         string
}

// LimitsConfig bounds what is handed to the downstream workflow.
// ContextMaxChars and DiffMaxChars count characters, ContextMaxBytes counts
// bytes of the serialized context.
type LimitsConfig struct {
	ContextMaxChars int
	DiffMaxChars    int
	ContextMaxBytes int
	TaskMaxChars    int
}

type PollConfig struct {
	Enabled             bool
	Interval            time.Duration
	RateLimitBackoff    time.Duration
	NotificationTimeout time.Duration
}

type LedgerDriver string

const (
	LedgerDriverFile     LedgerDriver = "file"
	LedgerDriverSQLite   LedgerDriver = "sqlite"
	LedgerDriverPostgres LedgerDriver = "postgres"
	LedgerDriverRedis    LedgerDriver = "redis"
)

type LedgerConfig struct {
	Driver   LedgerDriver
	Path     string
	RedisURL string
	RedisKey string
}

// Load loads configuration from environment variables.
// In development, a local .env file is loaded first when present.
func Load() (Config, error) {
	if getEnv("COURIER_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:  getEnv("COURIER_ENV", "development"),
		Port: getEnv("PORT", "8000"),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 4),
			MinConns: getEnvInt32("DB_MIN_CONNS", 1),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "courier"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		GitHub: GitHubConfig{
			APIURL:        strings.TrimSuffix(getEnv("GITHUB_API_URL", "https://api.github.com"), "/"),
			GraphQLURL:    getEnv("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql"),
			BotToken:      strings.TrimSpace(getEnv("BOT_TOKEN", "")),
			Token:         strings.TrimSpace(getEnv("GITHUB_TOKEN", "")),
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
			RatePerSec:    getEnvFloat("FORGE_RATE_PER_SEC", 5),
			HTTPTimeout:   getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		},
		GitLab: GitLabConfig{
			URL:          getEnv("GITLAB_URL", ""),
			Token:        getEnv("GITLAB_TOKEN", ""),
			WebhookToken: getEnv("GITLAB_WEBHOOK_TOKEN", ""),
		},
		Bot: BotConfig{
			Handle:       getEnv("BOT_HANDLE", ""),
			AllowedUsers: getEnvList("ALLOWED_USERS"),
		},
		Workflow: WorkflowConfig{
			ControlRepo: getEnv("CONTROL_REPO", ""),
			File:        getEnv("WORKFLOW_FILE", "llm-bot-runner.yml"),
			Ref:         getEnv("WORKFLOW_REF", "main"),
		},
		Limits: LimitsConfig{
			ContextMaxChars: getEnvInt("CONTEXT_MAX_CHARS", 15000),
			DiffMaxChars:    getEnvInt("DIFF_MAX_CHARS", 4000),
			ContextMaxBytes: getEnvInt("CONTEXT_MAX_BYTES", 60000),
			TaskMaxChars:    getEnvInt("TASK_MAX_CHARS", 2000),
		},
		Poll: PollConfig{
			Enabled:             getEnvBool("POLL_ENABLED", true),
			Interval:            getEnvDuration("POLL_INTERVAL", 60*time.Second),
			RateLimitBackoff:    getEnvDuration("POLL_RATE_LIMIT_BACKOFF", 5*time.Minute),
			NotificationTimeout: getEnvDuration("NOTIFICATION_TIMEOUT", 2*time.Minute),
		},
		Ledger: LedgerConfig{
			Driver:   LedgerDriver(getEnv("LEDGER_DRIVER", string(LedgerDriverFile))),
			Path:     getEnv("LEDGER_PATH", "processed_ids.txt"),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisKey: getEnv("LEDGER_REDIS_KEY", "courier:dispatched"),
		},
	}

	if h := strings.TrimSpace(cfg.Bot.Handle); h != "" && !strings.HasPrefix(h, "@") {
		cfg.Bot.Handle = "@" + h
	}

	if cfg.GitHub.BotToken == "" {
		cfg.GitHub.BotToken = cfg.GitHub.Token
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Bot.Handle == "" {
		return fmt.Errorf("BOT_HANDLE is required")
	}
	if c.GitHub.Token == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	if c.Workflow.ControlRepo == "" {
		return fmt.Errorf("CONTROL_REPO is required")
	}
	switch c.Ledger.Driver {
	case LedgerDriverFile, LedgerDriverSQLite:
		if c.Ledger.Path == "" {
			return fmt.Errorf("LEDGER_PATH is required for the %s ledger", c.Ledger.Driver)
		}
	case LedgerDriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres ledger")
		}
	case LedgerDriverRedis:
		if c.Ledger.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis ledger")
		}
	default:
		return fmt.Errorf("unknown LEDGER_DRIVER %q", c.Ledger.Driver)
	}
	if c.Limits.ContextMaxChars <= 0 || c.Limits.ContextMaxBytes <= 0 || c.Limits.TaskMaxChars <= 0 {
		return fmt.Errorf("context and task limits must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c GitLabConfig) Enabled() bool {
	return c.Token != ""
}

// IsAllowed reports whether user may trigger a dispatch. An empty allow-list allows everyone.
func (c BotConfig) IsAllowed(user string) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, u := range c.AllowedUsers {
		if u == user {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
