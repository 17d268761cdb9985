package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// LedgerConfiguration controls the transaction status ledger
type LedgerConfiguration struct {
	Name              string `toml:"name"`               // Base filename inside data_dir, ".xid" is appended
	CreateIfMissing   bool   `toml:"create_if_missing"`  // Create a fresh ledger when none exists
	StrictTransitions bool   `toml:"strict_transitions"` // Reject commit/abort of xids that already finished
	StatusCacheSize   int    `toml:"status_cache_size"`  // Cached terminal statuses (0 = disabled)
	VerifyOnOpen      bool   `toml:"verify_on_open"`     // Scan every status byte at startup
}

// AdminConfiguration for the read-only inspection endpoints
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Secret      string `toml:"secret"` // Empty disables authentication
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Ledger     LedgerConfiguration     `toml:"ledger"`
	Admin      AdminConfiguration      `toml:"admin"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin HTTP port (overrides config)")
)

// Default configuration
var Config = &Configuration{
	NodeID:  0, // Auto-generate
	DataDir: "./xidledger-data",

	Ledger: LedgerConfiguration{
		Name:              "xidledger",
		CreateIfMissing:   true,
		StrictTransitions: false,
		StatusCacheSize:   4096,
		VerifyOnOpen:      false,
	},

	Admin: AdminConfiguration{
		Enabled:     true,
		BindAddress: "127.0.0.1",
		Port:        8090,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}

	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("xidledger")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.DataDir == "" {
		return fmt.Errorf("data directory must not be empty")
	}

	if Config.Ledger.Name == "" {
		return fmt.Errorf("ledger name must not be empty")
	}

	if filepath.Base(Config.Ledger.Name) != Config.Ledger.Name {
		return fmt.Errorf("ledger name must be a plain file name: %s", Config.Ledger.Name)
	}

	if Config.Ledger.StatusCacheSize < 0 {
		return fmt.Errorf("status cache size must be >= 0")
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	return nil
}

// LedgerBasePath returns the ledger path without the ".xid" suffix
func LedgerBasePath() string {
	return filepath.Join(Config.DataDir, Config.Ledger.Name)
}

// IsAdminAuthEnabled reports whether admin endpoints require a shared secret
func IsAdminAuthEnabled() bool {
	return Config.Admin.Secret != ""
}
