package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/brojonat/ptoken/service/analysis"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	LogLevel    string
	MetricsAddr string

	// Database configuration. Analysis history is disabled when empty.
	DatabaseURL string

	// NATS configuration. Event publishing is disabled when empty.
	NATSURL string

	// Solana RPC endpoint pools
	SolanaMainnetRPCURLs []string
	SolanaDevnetRPCURLs  []string
	RPCMaxAttempts       int

	// Fee model
	BaseFeeLamports uint64
	LamportsPerSOL  uint64
	CostTablePath   string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")

	// Optional backends
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Solana endpoint pools
	cfg.SolanaMainnetRPCURLs = parseURLList(getEnvOrDefault("SOLANA_MAINNET_RPC_URLS", "https://api.mainnet-beta.solana.com"))
	cfg.SolanaDevnetRPCURLs = parseURLList(getEnvOrDefault("SOLANA_DEVNET_RPC_URLS", "https://api.devnet.solana.com"))

	attempts, err := parseInt("RPC_MAX_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCMaxAttempts = attempts
	}

	// Fee model
	baseFee, err := parseUint("BASE_FEE_LAMPORTS", 5000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.BaseFeeLamports = baseFee
	}

	lamports, err := parseUint("LAMPORTS_PER_SOL", 1_000_000_000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.LamportsPerSOL = lamports
	}

	cfg.CostTablePath = os.Getenv("COST_TABLE_PATH")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "ptoken-analysis")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SolanaMainnetRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_MAINNET_RPC_URLS must contain at least one URL"))
	}

	if len(c.SolanaDevnetRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_DEVNET_RPC_URLS must contain at least one URL"))
	}

	// A shared endpoint would silently answer devnet queries with mainnet data.
	mainnet := make(map[string]struct{}, len(c.SolanaMainnetRPCURLs))
	for _, u := range c.SolanaMainnetRPCURLs {
		mainnet[u] = struct{}{}
	}
	for _, u := range c.SolanaDevnetRPCURLs {
		if _, ok := mainnet[u]; ok {
			errs = append(errs, fmt.Errorf("RPC URL %q appears in both SOLANA_MAINNET_RPC_URLS and SOLANA_DEVNET_RPC_URLS", u))
		}
	}

	if c.RPCMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RPC_MAX_ATTEMPTS must be at least 1"))
	}

	if c.LamportsPerSOL == 0 {
		errs = append(errs, fmt.Errorf("LAMPORTS_PER_SOL must be greater than 0"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// FeeParams returns the configured fee model.
func (c *Config) FeeParams() analysis.FeeParams {
	return analysis.FeeParams{
		BaseFee:        c.BaseFeeLamports,
		LamportsPerSOL: c.LamportsPerSOL,
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseURLList splits a comma-separated list, dropping blanks and duplicates.
func parseURLList(value string) []string {
	var urls []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(value, ",") {
		u := strings.TrimSpace(part)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseUint parses an unsigned integer from an environment variable or uses a default.
func parseUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return result, nil
}
