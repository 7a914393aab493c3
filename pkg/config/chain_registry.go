// Chain registry: an optional YAML file supplementing env-var chain configuration with a
// richer, version-controllable description of each counterparty chain (handler address,
// challenge period, pallet index). Adapted from the teacher's anchor-config YAML loader:
// the ${VAR_NAME}/${VAR_NAME:-default} environment-variable substitution pass and the
// custom yaml.Duration type survive verbatim in spirit, repointed at ChainConfig entries
// instead of CertenAnchor V3's contract/consensus/gas settings.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// ChainRegistry is the YAML document shape: a list of chains plus the Substrate chains
// that use Keccak rather than the chain default Blake2b-256 hasher.
type ChainRegistry struct {
	Chains                      []ChainRegistryEntry `yaml:"chains"`
	KeccakHashedSubstrateChains []string              `yaml:"keccak_hashed_substrate_chains"`
}

// ChainRegistryEntry mirrors ChainConfig in YAML-friendly form, with Duration fields
// expressed as Go duration strings ("30s") rather than raw seconds. It has no Platform
// field: MergeChainRegistry writes every entry with an empty Platform, replacing any
// Platform an env-var entry for the same state machine had.
type ChainRegistryEntry struct {
	StateMachine    string   `yaml:"state_machine"`
	RPC             string   `yaml:"rpc"`
	HandlerAddress  string   `yaml:"handler_address"`
	ChallengePeriod Duration `yaml:"challenge_period"`
	PalletIndex     uint8    `yaml:"pallet_index"`
}

// Duration is a time.Duration that (un)marshals from YAML as a Go duration string
// ("30s", "2m"), matching the teacher's yaml.Duration convention.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// LoadChainRegistry reads a YAML chain-registry file, substituting ${VAR_NAME}/
// ${VAR_NAME:-default} environment references before parsing.
func LoadChainRegistry(path string) (*ChainRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read chain registry %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var reg ChainRegistry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("config: parse chain registry %s: %w", path, err)
	}
	return &reg, nil
}

// MergeChainRegistry overlays a ChainRegistry's entries onto cfg.Chains and
// cfg.KeccakHashedSubstrateChains, with the YAML file taking precedence over any
// env-var-sourced entry for the same state machine id — the registry file is meant to be
// the durable, reviewed source of truth, while env vars exist for quick local overrides.
func (c *Config) MergeChainRegistry(reg *ChainRegistry) {
	if c.Chains == nil {
		c.Chains = make(map[string]ChainConfig, len(reg.Chains))
	}
	for _, e := range reg.Chains {
		c.Chains[e.StateMachine] = ChainConfig{
			StateMachine:    e.StateMachine,
			RPC:             e.RPC,
			HandlerAddress:  e.HandlerAddress,
			ChallengePeriod: uint64(e.ChallengePeriod.Duration().Seconds()),
			PalletIndex:     e.PalletIndex,
		}
	}
	if len(reg.KeccakHashedSubstrateChains) > 0 {
		c.KeccakHashedSubstrateChains = reg.KeccakHashedSubstrateChains
	}
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
