package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// TipIndicator is the emoji token whose repeated count in a message encodes
// the tip quantity.
const TipIndicator = ":taco:"

// Config is built once in main and passed explicitly into every component.
type Config struct {
	Port          string
	MetricsListen string

	DBHost     string `validate:"required"`
	DBUser     string `validate:"required"`
	DBPassword string `validate:"required"`
	DBName     string `validate:"required"`

	BoltPath string `validate:"required"`

	SlackClientID      string `validate:"required"`
	SlackClientSecret  string `validate:"required"`
	SlackSigningSecret string `validate:"required"`
	SlackStateSecret   string `validate:"required"`

	EngineURL         string `validate:"required,url"`
	EngineAccessToken string `validate:"required"`

	ChainID             int64  `validate:"gt=0"`
	AccountFactory      string `validate:"required,eth_addr"`
	AccountFactoryAdmin string `validate:"required,eth_addr"`
	BackendWallet       string `validate:"required,eth_addr"`
	BackendEOAWallet    string `validate:"required,eth_addr"`
	TipToken            string `validate:"required,eth_addr"`

	ExplorerURL  string `validate:"required,url"`
	ExplorerName string `validate:"required"`

	GhostAPIURL string `validate:"omitempty,url"`
	GhostAPIKey string

	// DedupTTL bounds the duplicate-event window; PendingTTL must exceed the
	// relay's worst-case mine latency or callbacks lose their context.
	DedupTTL   time.Duration
	PendingTTL time.Duration
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// Load reads .env (when present), builds the Config and validates it.
func Load() (*Config, error) {
	// Same behavior as a missing .env in production: real env vars win.
	_ = godotenv.Load()

	cfg := &Config{
		Port:          envStr("PORT", "8080"),
		MetricsListen: os.Getenv("METRICS_LISTEN"),

		DBHost:     envStr("DB_HOST", "db"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		BoltPath: envStr("BOLT_PATH", "data/tacotip.db"),

		SlackClientID:      os.Getenv("SLACK_CLIENT_ID"),
		SlackClientSecret:  os.Getenv("SLACK_CLIENT_SECRET"),
		SlackSigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		SlackStateSecret:   os.Getenv("SLACK_STATE_SECRET"),

		EngineURL:         os.Getenv("ENGINE_URL"),
		EngineAccessToken: os.Getenv("ENGINE_ACCESS_TOKEN"),

		ChainID:             envInt64("CHAIN_ID", 84532),
		AccountFactory:      os.Getenv("ACCOUNT_FACTORY"),
		AccountFactoryAdmin: os.Getenv("ACCOUNT_FACTORY_ADMIN"),
		BackendWallet:       os.Getenv("BACKEND_WALLET"),
		BackendEOAWallet:    os.Getenv("BACKEND_EOA_WALLET"),
		TipToken:            os.Getenv("TIP_TOKEN"),

		ExplorerURL:  envStr("EXPLORER_URL", "https://sepolia.basescan.org"),
		ExplorerName: envStr("EXPLORER_NAME", "Basescan"),

		GhostAPIURL: os.Getenv("GHOST_API_URL"),
		GhostAPIKey: os.Getenv("GHOST_API_KEY"),

		DedupTTL:   envSeconds("DEDUP_TTL_SECONDS", 5*time.Minute),
		PendingTTL: envSeconds("PENDING_TTL_SECONDS", 5*time.Minute),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
