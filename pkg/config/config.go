package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ChainConfig holds the per-chain settings the Chain Adapter (C3) needs to dial and
// operate against one counterparty chain.
type ChainConfig struct {
	StateMachine string // e.g. "EVM-1", "SUBSTRATE-2000", "EVM-728126428" (Tron's EVM-family id)
	// Platform picks the concrete chainadapter.Adapter implementation: "evm", "substrate",
	// or "tron". Tron is EVM-family numerically (§9), so StateMachine alone cannot tell a
	// Tron deployment apart from a real EVM chain — Platform is the explicit discriminator.
	Platform        string
	RPC             string
	HandlerAddress  string
	ChallengePeriod uint64 // seconds
	PalletIndex     uint8  // Substrate-family only
}

// Config holds all configuration for the relayer service.
type Config struct {
	// Hub chain (the Hyperbridge-equivalent consensus/ISMP relay chain)
	HubStateMachine string
	HubRPC          string // websocket endpoint

	// Counterparty chains, keyed by state machine id string (e.g. "EVM-1")
	Chains map[string]ChainConfig

	// Substrate chains hashed with Keccak rather than the chain default Blake2b-256,
	// resolving Open Question 3 (see DESIGN.md).
	KeccakHashedSubstrateChains []string

	// Intent execution
	BundlerURL string

	// Indexer (C4)
	IndexerGraphQLURL string
	IndexerRetryBase  time.Duration
	IndexerRetryMax   int

	// Tracker/executor poll tuning
	PollInterval time.Duration
	BidTimeoutMs int
	MinBids      int

	// Cancellation (C7) hub-submission retry tuning
	HubSubmitRetries int
	HubSubmitBackoff time.Duration

	// Gas-bump tuning (§4.6.3)
	PriorityFeeBumpPercent int
	MaxFeeBumpPercent      int
	ProtocolFeeMarginBps   int // basis points, default 50 (0.5%)
	RelayerFeeMarginBps    int

	// Persistence (§4.8.6) — DatabaseURL empty means "use the in-memory KV store"
	DatabaseURL string

	// Server
	MetricsAddr string

	LogLevel string
}

// Load reads configuration from environment variables using the teacher's
// getEnv/getEnvInt/getEnvBool/getEnvDuration helpers.
//
// Required variables have no defaults and must be explicitly set; call Validate() after
// Load() to enforce that, or ValidateForDevelopment() for relaxed local-testnet runs.
func Load() (*Config, error) {
	cfg := &Config{
		HubStateMachine: getEnv("HUB_STATE_MACHINE", ""),
		HubRPC:          getEnv("HUB_RPC", ""),

		Chains: loadChains(),

		KeccakHashedSubstrateChains: parseCommaList(getEnv("KECCAK_HASHED_SUBSTRATE_CHAINS", "")),

		BundlerURL: getEnv("BUNDLER_URL", ""),

		IndexerGraphQLURL: getEnv("INDEXER_GRAPHQL_URL", ""),
		IndexerRetryBase:  getEnvDuration("INDEXER_RETRY_BASE", time.Second),
		IndexerRetryMax:   getEnvInt("INDEXER_RETRY_MAX_ATTEMPTS", 3),

		PollInterval: getEnvDuration("POLL_INTERVAL", 5*time.Second),
		BidTimeoutMs: getEnvInt("BID_TIMEOUT_MS", 15000),
		MinBids:      getEnvInt("MIN_BIDS", 1),

		HubSubmitRetries: getEnvInt("HUB_SUBMIT_RETRIES", 10),
		HubSubmitBackoff: getEnvDuration("HUB_SUBMIT_BACKOFF", 5*time.Second),

		PriorityFeeBumpPercent: getEnvInt("PRIORITY_FEE_BUMP_PERCENT", 8),
		MaxFeeBumpPercent:      getEnvInt("MAX_FEE_BUMP_PERCENT", 10),
		ProtocolFeeMarginBps:   getEnvInt("PROTOCOL_FEE_MARGIN_BPS", 50),
		RelayerFeeMarginBps:    getEnvInt("RELAYER_FEE_MARGIN_BPS", 50),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		MetricsAddr: getEnv("METRICS_ADDR", "0.0.0.0:9090"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// loadChains reads CHAIN_<N>_* variables for N = 0..CHAIN_COUNT-1, since the chain set
// is per-deployment and cannot be named by a fixed set of env var keys the way the
// teacher's single-Ethereum-endpoint config could.
func loadChains() map[string]ChainConfig {
	count := getEnvInt("CHAIN_COUNT", 0)
	chains := make(map[string]ChainConfig, count)
	for i := 0; i < count; i++ {
		prefix := fmt.Sprintf("CHAIN_%d_", i)
		sm := getEnv(prefix+"STATE_MACHINE", "")
		if sm == "" {
			continue
		}
		chains[sm] = ChainConfig{
			StateMachine:    sm,
			Platform:        getEnv(prefix+"PLATFORM", "evm"),
			RPC:             getEnv(prefix+"RPC", ""),
			HandlerAddress:  getEnv(prefix+"HANDLER_ADDRESS", ""),
			ChallengePeriod: uint64(getEnvInt(prefix+"CHALLENGE_PERIOD", 0)),
			PalletIndex:     uint8(getEnvInt(prefix+"PALLET_INDEX", 0)),
		}
	}
	return chains
}

// Validate checks that all required configuration is present.
// This must be called after Load() before starting the service.
func (c *Config) Validate() error {
	var errs []string

	if c.HubRPC == "" {
		errs = append(errs, "HUB_RPC is required but not set")
	}
	if c.HubStateMachine == "" {
		errs = append(errs, "HUB_STATE_MACHINE is required but not set")
	}
	if len(c.Chains) == 0 {
		errs = append(errs, "at least one CHAIN_<N>_* chain must be configured (CHAIN_COUNT is 0)")
	}
	for sm, chain := range c.Chains {
		if chain.RPC == "" {
			errs = append(errs, fmt.Sprintf("chain %s: RPC is required but not set", sm))
		}
	}
	if c.BundlerURL == "" {
		errs = append(errs, "BUNDLER_URL is required but not set")
	}
	if c.IndexerGraphQLURL == "" {
		errs = append(errs, "INDEXER_GRAPHQL_URL is required but not set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for running against a
// local testnet: only the hub and at least one chain are required.
func (c *Config) ValidateForDevelopment() error {
	var errs []string

	if c.HubRPC == "" {
		errs = append(errs, "HUB_RPC is required")
	}
	if len(c.Chains) == 0 {
		errs = append(errs, "at least one chain must be configured")
	}

	if len(errs) > 0 {
		return fmt.Errorf("development configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Helper functions for environment variable parsing, unchanged in spirit from the
// teacher's pkg/config helpers.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseCommaList splits a comma-separated env var into a trimmed, non-empty string
// slice, generalized from the teacher's parseAttestationPeers helper.
func parseCommaList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
