package syncer

import (
	"log/slog"
	"time"

	"datimsync/pkg/config"
	"datimsync/pkg/importer"
	"datimsync/pkg/metrics"
	"datimsync/pkg/provider"
	"datimsync/pkg/state"
	"datimsync/pkg/telemetry"
)

// Config is everything one run needs to know, resolved from the
// effective configuration.
type Config struct {
	Period         string
	AllowedPeriods []string
	Batches        []config.BatchConfig

	// DatasetRepos is used as is when non-empty. Otherwise the listing at
	// DatasetEndpoint is fetched from OCL.
	DatasetRepos    map[string]string
	DatasetEndpoint string
	ActiveAttr      string
	ExportSuffix    string

	ComparePrevious bool
	DataCheckOnly   bool
	TestMode        bool
	RetireOrphans   bool
	Limit           int
	Concurrency     int

	PollInterval time.Duration
	MaxWait      time.Duration

	// ExportDir receives converted and cleaned exports, ScriptDir the
	// import scripts. Empty disables writing.
	ExportDir string
	ScriptDir string
}

// FromConfig maps the effective configuration onto a run config.
func FromConfig(cfg *config.Config, paths state.Paths) Config {
	return Config{
		Period:          cfg.Sync.Period,
		AllowedPeriods:  cfg.Sync.AllowedPeriods,
		Batches:         cfg.Sync.Batches,
		DatasetRepos:    cfg.OCL.DatasetRepos,
		DatasetEndpoint: cfg.OCL.DatasetEndpoint,
		ActiveAttr:      cfg.OCL.ActiveAttr,
		ExportSuffix:    cfg.OCL.ExportSuffix,
		ComparePrevious: cfg.Sync.CompareEnabled(),
		DataCheckOnly:   cfg.Sync.DataCheckOnly,
		TestMode:        cfg.Import.TestMode,
		RetireOrphans:   cfg.Import.RetireOrphans,
		Limit:           cfg.Import.Limit,
		Concurrency:     cfg.Sync.Concurrency,
		PollInterval:    cfg.Import.PollInterval.Duration(),
		MaxWait:         cfg.Import.MaxWait.Duration(),
		ExportDir:       paths.Exports,
		ScriptDir:       paths.Scripts,
	}
}

// Deps are the collaborators of an engine. Only DHIS2 and OCL are required;
// Executor is required unless the run never submits.
type Deps struct {
	DHIS2     provider.DHIS2Provider
	OCL       provider.OCLProvider
	Executor  importer.Executor
	Cache     Cache
	Logger    *slog.Logger
	Telemetry *telemetry.Telemetry
	Metrics   *metrics.Metrics
	Failed    *state.FailedItemWriter
	Now       func() time.Time
}
