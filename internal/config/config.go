package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Default public endpoints for the target network. Overridable via env.
const (
	DefaultNodeURL    = "https://testnet-api.algonode.cloud"
	DefaultIndexerURL = "https://testnet-idx.algonode.cloud"
	DefaultOracleURL  = "https://free-api.vestige.fi"
)

// Config holds all application configuration, assembled once at startup and
// injected into each component. No package reads environment variables on its
// own; this is the only place they are recognized.
type Config struct {
	// AppID is the on-chain application ID of the position contract.
	AppID uint64

	// Network endpoints.
	NodeURL    string
	IndexerURL string
	OracleURL  string

	// Oracle query parameters.
	OracleAssetID  string
	OracleCurrency string

	// Remote position store (PostgreSQL). When Host is empty the store
	// adapter runs entirely on the local fallback cache.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// FallbackDBPath is the on-device cache used when the remote store is
	// unconfigured or unreachable.
	FallbackDBPath string

	// OwnerAddress is the creator identity holding custody rights;
	// AgentAddress is the delegated identity the agent loop signs as.
	OwnerAddress string
	AgentAddress string

	// SignerURL points at the external signing daemon. Required in live
	// mode; without it every submission fails at the gate.
	SignerURL string

	// Fixed-point wire scales. Prices and bounds are encoded x1000,
	// capital x100 (cents).
	PriceScale   uint64
	CapitalScale uint64

	// PollInterval is the reconciliation cadence; AgentInterval is the
	// autonomous agent cycle cadence (~10 blocks on the target network).
	PollInterval  time.Duration
	AgentInterval time.Duration

	// Mode gates transaction submission: "dry-run" (default) or "live".
	Mode string

	WebPort string

	// Decision engine tunables.
	AnnualFeeRate       float64 // projected fee APR on deployed capital
	SwapCostEstimate    float64 // flat per-rebalance cost estimate, quote units
	CostBenefitMargin   float64 // require weekly fees > swapCost * margin
	BufferZonePct       float64 // out-of-range within this % of a bound => HOLD
	RebalanceCooldown   time.Duration
	MinHoursInRange     float64 // predicted hours below this triggers preemptive check
	VolatilityWindowHrs int

	// RangeWidth is the half-width of a freshly centered range: new bounds
	// are price*(1-RangeWidthLower) .. price*(1+RangeWidthUpper).
	RangeWidthLower float64
	RangeWidthUpper float64
}

// Load assembles the Config from environment variables. APP_ID is required;
// everything else has a sane default for the public testnet.
func Load() (*Config, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	appID, err := getEnvAsUint64("APP_ID")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppID:          appID,
		NodeURL:        getEnvOr("ALGOD_URL", DefaultNodeURL),
		IndexerURL:     getEnvOr("INDEXER_URL", DefaultIndexerURL),
		OracleURL:      getEnvOr("ORACLE_URL", DefaultOracleURL),
		OracleAssetID:  getEnvOr("ORACLE_ASSET_ID", "0"),
		OracleCurrency: getEnvOr("ORACLE_CURRENCY", "USD"),
		DBHost:         os.Getenv("DB_HOST"),
		DBPort:         getEnvAsIntOr("DB_PORT", 5432),
		DBUser:         os.Getenv("DB_USER"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         os.Getenv("DB_NAME"),
		DBSSLMode:      getEnvOr("DB_SSLMODE", "disable"),
		FallbackDBPath: getEnvOr("FALLBACK_DB_PATH", "aegis_cache.db"),
		OwnerAddress:   os.Getenv("OWNER_ADDRESS"),
		AgentAddress:   os.Getenv("AGENT_ADDRESS"),
		SignerURL:      os.Getenv("SIGNER_URL"),
		PriceScale:     getEnvAsUint64Or("PRICE_SCALE", 1000),
		CapitalScale:   getEnvAsUint64Or("CAPITAL_SCALE", 100),
		PollInterval:   getEnvAsDurationOr("POLL_INTERVAL", 30*time.Second),
		AgentInterval:  getEnvAsDurationOr("AGENT_INTERVAL", 40*time.Second),
		Mode:           getEnvOr("AEGIS_MODE", "dry-run"),
		WebPort:        getEnvOr("WEB_PORT", "8080"),

		AnnualFeeRate:       getEnvAsFloat64Or("ANNUAL_FEE_RATE", 0.35),
		SwapCostEstimate:    getEnvAsFloat64Or("SWAP_COST_ESTIMATE", 4.20),
		CostBenefitMargin:   getEnvAsFloat64Or("COST_BENEFIT_MARGIN", 1.5),
		BufferZonePct:       getEnvAsFloat64Or("BUFFER_ZONE_PCT", 3.0),
		RebalanceCooldown:   getEnvAsDurationOr("REBALANCE_COOLDOWN", 30*time.Minute),
		MinHoursInRange:     getEnvAsFloat64Or("MIN_HOURS_IN_RANGE", 4),
		VolatilityWindowHrs: getEnvAsIntOr("VOLATILITY_WINDOW_HOURS", 24),

		RangeWidthLower: getEnvAsFloat64Or("RANGE_WIDTH_LOWER", 0.18),
		RangeWidthUpper: getEnvAsFloat64Or("RANGE_WIDTH_UPPER", 0.22),
	}

	if cfg.PriceScale == 0 || cfg.CapitalScale == 0 {
		return nil, errors.New("PRICE_SCALE and CAPITAL_SCALE must be positive")
	}
	if cfg.Mode != "dry-run" && cfg.Mode != "live" {
		return nil, errors.New("AEGIS_MODE must be 'dry-run' or 'live', got: " + cfg.Mode)
	}
	if cfg.Mode == "live" && (cfg.SignerURL == "" || cfg.OwnerAddress == "") {
		return nil, errors.New("live mode requires SIGNER_URL and OWNER_ADDRESS to be set")
	}

	log.Debug().
		Uint64("AppID", cfg.AppID).
		Str("NodeURL", cfg.NodeURL).
		Str("Mode", cfg.Mode).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

// RemoteStoreConfigured reports whether a remote position store was configured.
func (c *Config) RemoteStoreConfigured() bool {
	return c.DBHost != "" && c.DBName != ""
}

// getEnvOr retrieves a string environment variable with a default.
func getEnvOr(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return 0, errors.New("environment variable " + key + " is required but not set")
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsUint64Or(key string, def uint64) uint64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid uint64 env value, using default")
		return def
	}
	return value
}

func getEnvAsIntOr(key string, def int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid int env value, using default")
		return def
	}
	return value
}

func getEnvAsFloat64Or(key string, def float64) float64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid float64 env value, using default")
		return def
	}
	return value
}

func getEnvAsDurationOr(key string, def time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid duration env value, using default")
		return def
	}
	return value
}
