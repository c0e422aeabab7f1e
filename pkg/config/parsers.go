package config

import (
	"net"
	"strconv"
	"strings"
)

// EnvResult records which environment overrides were applied.
type EnvResult struct {
	Applied []string
	EnvUsed bool
}

// ApplyEnv overrides cfg with every non-empty variable it knows. The DHIS2_*
// and OCL_* names are the ones the OpenHIM mediator sets.
func ApplyEnv(cfg *Config, getenv func(string) string) EnvResult {
	var res EnvResult
	set := func(name string, apply func(v string)) {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			return
		}
		apply(v)
		res.Applied = append(res.Applied, name)
		res.EnvUsed = true
	}

	set("DHIS2_ENV", func(v string) { cfg.DHIS2.URL = v })
	set("DHIS2_USER", func(v string) { cfg.DHIS2.User = v })
	set("DHIS2_PASS", func(v string) { cfg.DHIS2.Password = v })
	set("OCL_ENV", func(v string) { cfg.OCL.URL = v })
	set("OCL_API_TOKEN", func(v string) { cfg.OCL.Token = v })
	set("COMPARE_PREVIOUS_EXPORT", func(v string) {
		b := parseBool(v)
		cfg.Sync.ComparePreviousExport = &b
	})

	set("DATIMSYNC_PERIOD", func(v string) { cfg.Sync.Period = v })
	set("DATIMSYNC_ALLOWED_PERIODS", func(v string) { cfg.Sync.AllowedPeriods = parseList(v) })
	set("DATIMSYNC_DATA_DIR", func(v string) { cfg.Sync.DataDir = v })
	set("DATIMSYNC_RUN_OFFLINE", func(v string) { cfg.Sync.RunOffline = parseBool(v) })
	set("DATIMSYNC_DATA_CHECK_ONLY", func(v string) { cfg.Sync.DataCheckOnly = parseBool(v) })
	set("DATIMSYNC_CONCURRENCY", func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.Concurrency = n
		}
	})

	set("DATIMSYNC_IMPORT_TEST_MODE", func(v string) { cfg.Import.TestMode = parseBool(v) })
	set("DATIMSYNC_IMPORT_LIMIT", func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Import.Limit = n
		}
	})
	set("DATIMSYNC_RETIRE_ORPHANS", func(v string) { cfg.Import.RetireOrphans = parseBool(v) })
	set("DATIMSYNC_IMPORT_POLL_INTERVAL", func(v string) {
		if d, err := ParseDuration(v); err == nil {
			cfg.Import.PollInterval = d
		}
	})
	set("DATIMSYNC_IMPORT_MAX_WAIT", func(v string) {
		if d, err := ParseDuration(v); err == nil {
			cfg.Import.MaxWait = d
		}
	})

	set("DATIMSYNC_CACHE_BACKEND", func(v string) { cfg.Cache.Backend = strings.ToLower(v) })
	set("DATIMSYNC_CACHE_PATH", func(v string) { cfg.Cache.Path = v })

	set("DATIMSYNC_SCHEDULE_ENABLED", func(v string) { cfg.Schedule.Enabled = parseBool(v) })
	set("DATIMSYNC_SCHEDULE_CRON", func(v string) { cfg.Schedule.Cron = v })
	set("DATIMSYNC_SCHEDULE_LOCK_TTL", func(v string) {
		if d, err := ParseDuration(v); err == nil {
			cfg.Schedule.LockTTL = d
		}
	})

	set("DATIMSYNC_SERVER_ADDR", func(v string) {
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
			return
		}
		cfg.Server.Address = v
	})

	set("DATIMSYNC_LOG_LEVEL", func(v string) { cfg.Logging.Level = v })
	set("DATIMSYNC_LOG_FILE", func(v string) { cfg.Logging.File = v })
	set("DATIMSYNC_TELEMETRY_ENABLED", func(v string) { cfg.Telemetry.Enabled = parseBool(v) })
	set("DATIMSYNC_TELEMETRY_BUFFER_SIZE", func(v string) {
		if s, err := ParseSize(v); err == nil {
			cfg.Telemetry.BufferSize = s
		}
	})
	return res
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func parseList(v string) []string {
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
