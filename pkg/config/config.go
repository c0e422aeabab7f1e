package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"datimsync/pkg/dhis2"
	"datimsync/pkg/models"
	"datimsync/pkg/ocl"
	"datimsync/pkg/period"
)

const (
	defaultConcurrency      = 2
	defaultDataDir          = "./data"
	defaultCacheBackend     = "file"
	defaultHTTPTimeout      = 120 * time.Second
	defaultImportPoll       = 5 * time.Second
	defaultImportMaxWait    = 800 * time.Second
	defaultScheduleCron     = "0 3 * * *" // daily at 03:00
	defaultScheduleLockTTL  = 30 * time.Minute
	defaultDatasetEndpoint  = "/orgs/PEPFAR/collections/?verbose=true&limit=200"
	defaultTelemetryBuffer  = 4 * 1024 * 1024 // 4MB
	defaultTelemetryFlushMs = 2000
)

// DefaultBatches is the MER batch: DHIS2 data elements synchronized with the
// PEPFAR MER source and its dataset collections.
func DefaultBatches() []BatchConfig {
	return []BatchConfig{{
		Name:      "MER",
		Owner:     "PEPFAR",
		OwnerType: models.OwnerTypeOrganization,
		Source:    "MER",
		Queries: []dhis2.Query{{
			ID:   "MER",
			Name: "DATIM-DHIS2 MER Indicators",
			Path: dhis2.MERQueryPath,
		}},
		OCLExports:         []string{"/orgs/PEPFAR/sources/MER/"},
		DatasetCollections: true,
	}}
}

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = 8090
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveToFile writes cfg as YAML, used by `datimsync config init`.
func SaveToFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.Sync.Period == "" {
		allowed := c.Sync.AllowedPeriods
		if len(allowed) == 0 {
			allowed = period.Default
		}
		c.Sync.Period = allowed[len(allowed)-1]
	}
	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = defaultConcurrency
	}
	if c.Sync.DataDir == "" {
		c.Sync.DataDir = defaultDataDir
	}
	if len(c.Sync.Batches) == 0 {
		c.Sync.Batches = DefaultBatches()
	}
	for i := range c.Sync.Batches {
		if c.Sync.Batches[i].OwnerType == "" {
			c.Sync.Batches[i].OwnerType = models.OwnerTypeOrganization
		}
	}

	if c.DHIS2.Timeout == 0 {
		c.DHIS2.Timeout = Duration(defaultHTTPTimeout)
	}
	if c.OCL.Timeout == 0 {
		c.OCL.Timeout = Duration(defaultHTTPTimeout)
	}
	if c.OCL.DatasetEndpoint == "" {
		c.OCL.DatasetEndpoint = defaultDatasetEndpoint
	}
	if c.OCL.ActiveAttr == "" {
		c.OCL.ActiveAttr = ocl.DefaultActiveAttr
	}

	if c.Import.PollInterval == 0 {
		c.Import.PollInterval = Duration(defaultImportPoll)
	}
	if c.Import.MaxWait == 0 {
		c.Import.MaxWait = Duration(defaultImportMaxWait)
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = defaultCacheBackend
	}
	if c.Cache.Path == "" {
		switch c.Cache.Backend {
		case "pebble":
			c.Cache.Path = c.Sync.DataDir + "/cache.db"
		default:
			c.Cache.Path = c.Sync.DataDir + "/cache"
		}
	}

	if c.Schedule.Cron == "" {
		c.Schedule.Cron = defaultScheduleCron
	}
	if c.Schedule.LockTTL == 0 {
		c.Schedule.LockTTL = Duration(defaultScheduleLockTTL)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Telemetry.Dir == "" {
		c.Telemetry.Dir = c.Sync.DataDir + "/telemetry"
	}
	if c.Telemetry.BufferSize == 0 {
		c.Telemetry.BufferSize = SizeBytes(defaultTelemetryBuffer)
	}
	if c.Telemetry.FlushInterval == 0 {
		c.Telemetry.FlushInterval = Duration(time.Duration(defaultTelemetryFlushMs) * time.Millisecond)
	}
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("DATIMSYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// EffectiveConfigResult is the merged configuration plus where it came from.
type EffectiveConfigResult struct {
	Config *Config
	Path   string
	Source string // "defaults", "config", "env" or "config+env"
	Env    EnvResult
}

// LoadEffectiveConfig layers defaults, the config file and environment
// overrides, in that order of increasing precedence. A missing file is only
// an error when the path was given explicitly.
func LoadEffectiveConfig(flagPath string, flagSet bool, getenv func(string) string) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	path := ResolveConfigPath(flagPath, flagSet)
	res.Path = path

	cfg := &Config{}
	fileFound := false
	if path != "" {
		fc, err := LoadConfigFile(path)
		switch {
		case err == nil:
			cfg = fc
			fileFound = true
		case errors.Is(err, fs.ErrNotExist) && !flagSet:
		case errors.Is(err, fs.ErrNotExist):
			return res, fmt.Errorf("config file %s not found", path)
		default:
			return res, err
		}
	}

	env := ApplyEnv(cfg, getenv)
	cfg.ApplyDefaults()

	switch {
	case fileFound && env.EnvUsed:
		res.Source = "config+env"
	case fileFound:
		res.Source = "config"
	case env.EnvUsed:
		res.Source = "env"
	default:
		res.Source = "defaults"
	}
	res.Config = cfg
	res.Env = env
	return res, nil
}
