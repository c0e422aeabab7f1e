package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"datimsync/internal/schedule"
	"datimsync/pkg/config"
	"datimsync/pkg/importer"
	"datimsync/pkg/logger"
	"datimsync/pkg/metrics"
	"datimsync/pkg/provider"
	"datimsync/pkg/state"
	"datimsync/pkg/syncer"
	"datimsync/pkg/telemetry"
)

// App wires the sync engine to its providers, cache, scheduler and HTTP server.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string
	paths     state.Paths

	engine  *syncer.Engine
	metrics *metrics.Metrics
	tel     *telemetry.Telemetry
	failed  *state.FailedItemWriter
	cache   io.Closer

	sched          *schedule.Scheduler
	scheduleCancel context.CancelFunc
	srvFast        *fasthttp.Server

	mu    sync.RWMutex
	state string

	// runCtx parents runs triggered over HTTP; Shutdown cancels it and
	// waits for them.
	runCtx    context.Context
	runCancel context.CancelFunc
	triggered sync.WaitGroup
}

// setState records s unless shutdown has begun; only "stopped" may follow
// "shutting_down".
func (a *App) setState(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case "stopped":
		return
	case "shutting_down":
		if s != "stopped" {
			return
		}
	}
	a.state = s
}

func (a *App) getState() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// New validates the configuration and opens every resource a run needs.
// Nothing is started; call RunOnce or Run.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config

	paths, err := state.Setup(cfg.Sync.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	if err := logger.AttachAuditFileSink(paths.Audit); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err)
	}

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, paths: paths, state: "starting"}
	a.runCtx, a.runCancel = context.WithCancel(context.Background())
	a.metrics = metrics.New()

	if cfg.Telemetry.Enabled {
		tel, err := telemetry.New(cfg.Telemetry.Dir, int(cfg.Telemetry.BufferSize.Int64()), 256,
			cfg.Telemetry.FlushInterval.Duration(), 64*1024*1024)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		a.tel = tel
	}

	cache, closer, err := syncer.OpenCache(cfg.Cache.Backend, cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.cache = closer
	a.failed = state.NewFailedItemWriter(paths.Failed)

	dp, op, exec := providers(cfg, paths)
	engine, err := syncer.New(syncer.FromConfig(cfg, paths), syncer.Deps{
		DHIS2:     dp,
		OCL:       op,
		Executor:  exec,
		Cache:     cache,
		Logger:    logger.Default(),
		Telemetry: a.tel,
		Metrics:   a.metrics,
		Failed:    a.failed,
	})
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	a.engine = engine

	if cfg.Schedule.Enabled {
		a.sched, err = schedule.New(cfg.Schedule.Cron, cfg.Schedule.LockTTL.Duration(), paths.Schedule, a.runJob)
		if err != nil {
			a.Shutdown()
			return nil, err
		}
	}
	logSummary(cfg)
	return a, nil
}

// providers builds the DHIS2 and OCL sources. Offline runs replay exports
// saved under the exports dir; online runs record what they fetch there.
func providers(cfg *config.Config, paths state.Paths) (provider.DHIS2Provider, provider.OCLProvider, importer.Executor) {
	var exec importer.Executor
	if cfg.OCL.URL != "" && cfg.OCL.Token != "" {
		c := provider.NewClient(cfg.OCL.URL, map[string]string{"Authorization": provider.TokenAuth(cfg.OCL.Token)}, cfg.OCL.Timeout.Duration())
		bulk := importer.NewOCLBulkImporter(c)
		bulk.UpdateIfExists = cfg.Import.UpdateIfExists
		exec = bulk
	}
	if cfg.Sync.RunOffline {
		files := &provider.Files{Dir: paths.Exports}
		return files.DHIS2(), files, exec
	}
	dp := &provider.RecordingDHIS2{
		Next: provider.NewDHIS2(cfg.DHIS2.URL, cfg.DHIS2.User, cfg.DHIS2.Password, cfg.DHIS2.Timeout.Duration()),
		Dir:  paths.Exports,
	}
	op := &provider.RecordingOCL{
		Next: provider.NewOCL(cfg.OCL.URL, cfg.OCL.Token, cfg.OCL.Timeout.Duration()),
		Dir:  paths.Exports,
	}
	return dp, op, exec
}

func logSummary(cfg *config.Config) {
	items := []string{
		fmt.Sprintf("period: %s", cfg.Sync.Period),
		fmt.Sprintf("batches: %d", len(cfg.Sync.Batches)),
		fmt.Sprintf("concurrency: %d", cfg.Sync.Concurrency),
		fmt.Sprintf("offline: %t", cfg.Sync.RunOffline),
		fmt.Sprintf("data_check_only: %t", cfg.Sync.DataCheckOnly),
		fmt.Sprintf("import_test_mode: %t", cfg.Import.TestMode),
		fmt.Sprintf("cache: %s", cfg.Cache.Backend),
		fmt.Sprintf("telemetry_buffer: %s", humanize.IBytes(uint64(cfg.Telemetry.BufferSize.Int64()))),
	}
	logger.Info("config_summary", "items", items)
}

// Engine exposes the sync engine, for the CLI and tests.
func (a *App) Engine() *syncer.Engine { return a.engine }

// RunOnce runs a single sync and prints its summary.
func (a *App) RunOnce(ctx context.Context) (*syncer.Report, error) {
	a.setState("running")
	rep, err := a.engine.Run(ctx)
	a.setState("idle")
	if rep != nil {
		logger.LogSummary(os.Stdout, "sync run", rep.SummaryLines())
	}
	return rep, err
}

func (a *App) runJob(ctx context.Context) error {
	_, err := a.RunOnce(ctx)
	return err
}

// Run starts the scheduler and HTTP server and blocks until ctx is done or
// the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()
	if a.sched != nil {
		a.scheduleCancel = a.sched.Start(ctx)
	}
	a.setState("idle")
	errCh := a.startHTTP(ctx)
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
