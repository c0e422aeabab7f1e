package config

import (
	"fmt"

	"github.com/adhocore/gronx"

	"datimsync/pkg/period"
	"datimsync/pkg/syncerr"
)

func invalid(field, value, format string, args ...any) error {
	return &syncerr.ValidationError{Field: field, Value: value, Msg: fmt.Sprintf(format, args...)}
}

// ValidateConfig fails fast on anything that would break a run before any
// export is fetched. Call it after ApplyDefaults.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	if err := period.Validate(cfg.Sync.Period, cfg.Sync.AllowedPeriods); err != nil {
		return err
	}

	if len(cfg.Sync.Batches) == 0 {
		return invalid("sync.batches", "", "at least one import batch is required")
	}
	seen := map[string]bool{}
	for i, b := range cfg.Sync.Batches {
		field := fmt.Sprintf("sync.batches[%d]", i)
		if b.Name == "" {
			return invalid(field+".name", "", "batch name is required")
		}
		if seen[b.Name] {
			return invalid(field+".name", b.Name, "duplicate batch name")
		}
		seen[b.Name] = true
		if b.Owner == "" || b.Source == "" {
			return invalid(field, b.Name, "owner and source are required")
		}
		if len(b.Queries) == 0 {
			return invalid(field+".queries", b.Name, "at least one DHIS2 query is required")
		}
		for j, q := range b.Queries {
			if q.ID == "" || q.Path == "" {
				return invalid(fmt.Sprintf("%s.queries[%d]", field, j), q.ID, "query id and path are required")
			}
		}
	}

	if !cfg.Sync.RunOffline {
		if cfg.DHIS2.URL == "" {
			return invalid("dhis2.url", "", "DHIS2 url is required unless run_offline is set (DHIS2_ENV)")
		}
	}
	if cfg.OCL.URL == "" && (!cfg.Sync.RunOffline || cfg.submits()) {
		return invalid("ocl.url", "", "OCL url is required to fetch exports or submit imports (OCL_ENV)")
	}
	if cfg.submits() && cfg.OCL.Token == "" {
		return invalid("ocl.token", "", "an OCL API token is required to submit imports (OCL_API_TOKEN)")
	}

	if cfg.Import.Limit < 0 {
		return invalid("import.limit", fmt.Sprint(cfg.Import.Limit), "must be 0 (all) or positive")
	}
	if cfg.Import.PollInterval.Duration() <= 0 || cfg.Import.MaxWait.Duration() < cfg.Import.PollInterval.Duration() {
		return invalid("import.max_wait", cfg.Import.MaxWait.Duration().String(), "must be at least poll_interval")
	}

	switch cfg.Cache.Backend {
	case "file", "pebble", "none":
	default:
		return invalid("cache.backend", cfg.Cache.Backend, "must be file, pebble or none")
	}

	if cfg.Schedule.Enabled && !gronx.IsValid(cfg.Schedule.Cron) {
		return invalid("schedule.cron", cfg.Schedule.Cron, "not a valid cron expression")
	}
	return nil
}

// submits reports whether a run with cfg would send an import to OCL.
func (c *Config) submits() bool {
	return !c.Sync.DataCheckOnly && !c.Import.TestMode
}
