package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"datimsync/pkg/dhis2"
)

// Config is the main configuration struct.
type Config struct {
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
	DHIS2     DHIS2Config     `yaml:"dhis2" json:"dhis2"`
	OCL       OCLConfig       `yaml:"ocl" json:"ocl"`
	Import    ImportConfig    `yaml:"import" json:"import"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Schedule  ScheduleConfig  `yaml:"schedule" json:"schedule"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// SyncConfig controls what one run does.
type SyncConfig struct {
	Period         string   `yaml:"period" json:"period"`
	AllowedPeriods []string `yaml:"allowed_periods" json:"allowed_periods"`
	// ComparePreviousExport skips a batch whose DHIS2 export did not change
	// since the last run. Defaults to true.
	ComparePreviousExport *bool         `yaml:"compare_previous_export" json:"compare_previous_export"`
	RunOffline            bool          `yaml:"run_offline" json:"run_offline"`
	DataCheckOnly         bool          `yaml:"data_check_only" json:"data_check_only"`
	DataDir               string        `yaml:"data_dir" json:"data_dir"`
	Concurrency           int           `yaml:"concurrency" json:"concurrency"`
	Batches               []BatchConfig `yaml:"batches" json:"batches"`
}

func (s SyncConfig) CompareEnabled() bool {
	return s.ComparePreviousExport == nil || *s.ComparePreviousExport
}

// BatchConfig is one import batch: the DHIS2 queries feeding it and the OCL
// repositories it is reconciled with.
type BatchConfig struct {
	Name       string        `yaml:"name" json:"name"`
	Owner      string        `yaml:"owner" json:"owner"`
	OwnerType  string        `yaml:"owner_type" json:"owner_type"`
	Source     string        `yaml:"source" json:"source"`
	Queries    []dhis2.Query `yaml:"queries" json:"queries"`
	OCLExports []string      `yaml:"ocl_exports" json:"ocl_exports"`
	// DatasetCollections adds the export of every active dataset collection
	// to OCLExports.
	DatasetCollections bool `yaml:"dataset_collections" json:"dataset_collections"`
}

type DHIS2Config struct {
	URL      string   `yaml:"url" json:"url"`
	User     string   `yaml:"user" json:"user"`
	Password string   `yaml:"password" json:"-"`
	Timeout  Duration `yaml:"timeout" json:"timeout"`
}

type OCLConfig struct {
	URL   string `yaml:"url" json:"url"`
	Token string `yaml:"token" json:"-"`
	// ExportSuffix is appended to a repository endpoint to fetch its export.
	ExportSuffix    string   `yaml:"export_suffix" json:"export_suffix"`
	DatasetEndpoint string   `yaml:"dataset_endpoint" json:"dataset_endpoint"`
	ActiveAttr      string   `yaml:"active_attr" json:"active_attr"`
	Timeout         Duration `yaml:"timeout" json:"timeout"`
	// DatasetRepos is a static dataset id -> collection id table. When set,
	// the collection listing is not fetched.
	DatasetRepos map[string]string `yaml:"dataset_repos" json:"dataset_repos"`
}

type ImportConfig struct {
	TestMode       bool     `yaml:"test_mode" json:"test_mode"`
	Limit          int      `yaml:"limit" json:"limit"`
	RetireOrphans  bool     `yaml:"retire_orphans" json:"retire_orphans"`
	UpdateIfExists bool     `yaml:"update_if_exists" json:"update_if_exists"`
	PollInterval   Duration `yaml:"poll_interval" json:"poll_interval"`
	MaxWait        Duration `yaml:"max_wait" json:"max_wait"`
}

// CacheConfig selects where the previous run's snapshots are kept.
type CacheConfig struct {
	Backend string `yaml:"backend" json:"backend"` // "file", "pebble" or "none"
	Path    string `yaml:"path" json:"path"`
}

type ScheduleConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Cron    string   `yaml:"cron" json:"cron"`
	LockTTL Duration `yaml:"lock_ttl" json:"lock_ttl"`
}

type ServerConfig struct {
	Address string `yaml:"address" json:"address"`
	Port    int    `yaml:"port" json:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

type TelemetryConfig struct {
	Enabled       bool      `yaml:"enabled" json:"enabled"`
	Dir           string    `yaml:"dir" json:"dir"`
	BufferSize    SizeBytes `yaml:"buffer_size" json:"buffer_size"`
	FlushInterval Duration  `yaml:"flush_interval" json:"flush_interval"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(b []byte) error {
	raw := unquote(b)
	if raw == "" {
		*s = 0
		return nil
	}
	v, err := ParseSize(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) MarshalYAML() (any, error) {
	return int64(s), nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func ParseSize(raw string) (SizeBytes, error) {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration wraps time.Duration so it can be written as "100ms" or as a
// plain number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(b []byte) error {
	raw := unquote(b)
	if raw == "" {
		*d = 0
		return nil
	}
	v, err := ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func ParseDuration(raw string) (Duration, error) {
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

func unquote(b []byte) string {
	return strings.Trim(strings.TrimSpace(string(b)), `"'`)
}
