// Package syncer runs the DHIS2 to OCL pipeline: fetch, transform,
// normalize, diff, build the import script and submit it.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"datimsync/pkg/config"
	"datimsync/pkg/dhis2"
	"datimsync/pkg/diff"
	"datimsync/pkg/importer"
	"datimsync/pkg/logger"
	"datimsync/pkg/ocl"
	"datimsync/pkg/period"
	"datimsync/pkg/script"
	"datimsync/pkg/snapshot"
	"datimsync/pkg/syncerr"
	"datimsync/pkg/telemetry"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned by Run while another run is active.
var ErrRunInProgress = errors.New("sync run already in progress")

type Engine struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	running sync.Mutex
	mu      sync.RWMutex
	last    *Report
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.DHIS2 == nil || deps.OCL == nil {
		return nil, errors.New("syncer: dhis2 and ocl providers are required")
	}
	if deps.Executor == nil && !cfg.DataCheckOnly && !cfg.TestMode {
		return nil, errors.New("syncer: an import executor is required unless data_check_only or test_mode")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 800 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	e := &Engine{cfg: cfg, deps: deps, log: deps.Logger}
	if rs, ok := deps.Cache.(ReportSaver); ok {
		if b, err := rs.LastRunReport(); err == nil && b != nil {
			var r Report
			if json.Unmarshal(b, &r) == nil {
				e.last = &r
			}
		}
	}
	return e, nil
}

// Last returns the report of the most recent run, or nil.
func (e *Engine) Last() *Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Run executes one sync run. Validation errors abort before any fetch. A
// failed batch does not stop the others; its error is joined into the
// returned error and recorded in the report.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if !e.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.running.Unlock()

	rep := &Report{RunID: uuid.NewString(), Period: e.cfg.Period, Started: e.deps.Now()}
	log := e.log.With("run", rep.RunID)
	tr := e.deps.Telemetry.Track("sync_run", "run", rep.RunID)
	defer tr.Finish()

	err := e.run(ctx, rep, log, tr)
	rep.Finished = e.deps.Now()
	if err != nil {
		rep.Error = err.Error()
	}
	if err != nil && len(rep.Batches) == 0 {
		rep.Status = StatusFailed
	} else {
		rep.Status = worst(rep.Batches)
	}
	e.record(rep, log)
	return rep, err
}

func (e *Engine) run(ctx context.Context, rep *Report, log *slog.Logger, tr *telemetry.Trace) error {
	if err := period.Validate(e.cfg.Period, e.cfg.AllowedPeriods); err != nil {
		return err
	}
	if len(e.cfg.Batches) == 0 {
		return &syncerr.ValidationError{Field: "sync.batches", Msg: "no import batches configured"}
	}
	log.Info("sync_run_started", "period", e.cfg.Period, "batches", len(e.cfg.Batches))

	repos, err := e.datasetRepos(ctx)
	if err != nil {
		return fmt.Errorf("resolve dataset repositories: %w", err)
	}
	tr.Mark("dataset_repos")
	log.Info("dataset_repos_resolved", "count", len(repos))

	rep.Batches = make([]BatchReport, len(e.cfg.Batches))
	errs := make([]error, len(e.cfg.Batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i := range e.cfg.Batches {
		i := i
		g.Go(func() error {
			br, err := e.runBatch(gctx, rep.RunID, i, repos, log)
			if err != nil {
				br.Status = StatusFailed
				br.Error = err.Error()
				errs[i] = fmt.Errorf("batch %s: %w", br.Name, err)
			}
			rep.Batches[i] = br
			// only cancellation stops sibling batches
			if errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	gerr := g.Wait()
	tr.Mark("batches")
	sort.Slice(rep.Batches, func(a, b int) bool { return rep.Batches[a].Name < rep.Batches[b].Name })
	if jerr := errors.Join(errs...); jerr != nil {
		return jerr
	}
	return gerr
}

// datasetRepos returns the static table when configured, otherwise the
// active collections listed by OCL. Nothing is fetched when no batch needs it.
func (e *Engine) datasetRepos(ctx context.Context) (map[string]string, error) {
	if len(e.cfg.DatasetRepos) > 0 {
		return e.cfg.DatasetRepos, nil
	}
	need := false
	for _, b := range e.cfg.Batches {
		need = need || b.DatasetCollections
	}
	if !need || e.cfg.DatasetEndpoint == "" {
		return map[string]string{}, nil
	}
	b, err := e.deps.OCL.Fetch(ctx, e.cfg.DatasetEndpoint)
	if err != nil {
		return nil, err
	}
	attr := e.cfg.ActiveAttr
	if attr == "" {
		attr = ocl.DefaultActiveAttr
	}
	return ocl.DatasetRepos(b, attr)
}

func (e *Engine) runBatch(ctx context.Context, runID string, idx int, repos map[string]string, log *slog.Logger) (BatchReport, error) {
	bc := e.cfg.Batches[idx]
	br := BatchReport{Name: bc.Name}
	log = log.With("batch", bc.Name)
	tr := e.deps.Telemetry.Track("sync_batch", "run", runID, "batch", bc.Name)
	defer tr.Finish()

	// dhis2 side
	exp := &dhis2.Export{}
	ids := dhis2.DatasetIDs(repos)
	for _, q := range bc.Queries {
		b, err := e.deps.DHIS2.Fetch(ctx, q, ids)
		if err != nil {
			return br, fmt.Errorf("fetch dhis2 query %s: %w", q.ID, err)
		}
		part, err := dhis2.Parse(b, "dhis2:"+q.ID)
		if err != nil {
			return br, err
		}
		exp.DataElements = append(exp.DataElements, part.DataElements...)
		log.Debug("dhis2_query_fetched", "query", q.ID, "data_elements", len(part.DataElements))
	}
	tr.Mark("fetch_dhis2")

	cur, counts, err := dhis2.Transform(exp, dhis2.Options{
		Batch: bc.Name, Owner: bc.Owner, OwnerType: bc.OwnerType, Source: bc.Source, DatasetRepos: repos,
	})
	if err != nil {
		return br, err
	}
	br.DHIS2 = counts
	for _, u := range counts.Unknown {
		log.Debug("unknown_dataset_skipped", "dataset", u.DatasetID, "key", u.Key)
	}
	if counts.UnknownDatasets > 0 {
		log.Warn("unknown_datasets_skipped", "count", counts.UnknownDatasets)
	}
	tr.Mark("transform")
	e.observeResources(bc.Name, "dhis2", cur)
	f, err := e.writeSnapshot(bc.Name, "dhis2-converted", cur)
	if err != nil {
		return br, err
	}
	br.addFile(f)

	if e.cfg.ComparePrevious && e.deps.Cache != nil {
		prev, ok, err := e.deps.Cache.Load(bc.Name)
		if err != nil {
			log.Warn("cache_load_failed", "error", err)
		} else if ok && unchanged(prev, cur) {
			log.Info("dhis2_export_unchanged", "msg", "skipping batch")
			br.Skipped = true
			br.Status = StatusNoChanges
			return br, nil
		}
		tr.Mark("compare_previous")
	}

	// ocl side
	exports, err := e.fetchOCL(ctx, bc, repos, log)
	if err != nil {
		return br, err
	}
	tr.Mark("fetch_ocl")
	old, stats, err := ocl.Normalize(bc.Name, exports...)
	if err != nil {
		return br, err
	}
	br.OCL = stats
	tr.Mark("normalize")
	e.observeResources(bc.Name, "ocl", old)
	f, err = e.writeSnapshot(bc.Name, "ocl-cleaned", old)
	if err != nil {
		return br, err
	}
	br.addFile(f)

	oldSnap, curSnap := snapshot.New(), snapshot.New()
	oldSnap.Set(bc.Name, old)
	curSnap.Set(bc.Name, cur)
	res := diff.Diff(oldSnap, curSnap)
	br.Diff = res.Summary()
	tr.Mark("diff")
	e.observeDiff(bc.Name, br.Diff)
	log.Info("diff_complete", "create", br.Diff.Create, "update", br.Diff.Update,
		"unchanged", br.Diff.Unchanged, "orphaned", br.Diff.Orphaned)

	if e.cfg.DataCheckOnly {
		br.Status = StatusDataCheckOnly
		return br, nil
	}

	muts, err := script.Build(res, curSnap, oldSnap, script.Options{RetireOrphans: e.cfg.RetireOrphans, Limit: e.cfg.Limit})
	if err != nil {
		return br, err
	}
	if err := script.CheckOrder(muts, script.ExistingKeys(oldSnap)); err != nil {
		return br, fmt.Errorf("import script order: %w", err)
	}
	br.Mutations = len(muts)
	tr.Mark("build_script")
	if e.cfg.ScriptDir != "" {
		f := filepath.Join(e.cfg.ScriptDir, bc.Name+"-import-script.json")
		if err := script.SaveFile(f, muts); err != nil {
			return br, fmt.Errorf("write import script: %w", err)
		}
		br.addFile(f)
	}

	if len(muts) == 0 {
		br.Status = StatusNoChanges
		e.saveCache(bc.Name, cur, log)
		return br, nil
	}
	if e.cfg.TestMode {
		br.Status = StatusTestMode
		log.Info("import_test_mode", "mutations", len(muts))
		return br, nil
	}

	taskID, err := e.deps.Executor.Submit(ctx, muts)
	if err != nil {
		return br, fmt.Errorf("submit import: %w", err)
	}
	br.TaskID = taskID
	e.observeMutations(bc.Name, muts)
	log.Info("import_submitted", "task", taskID, "mutations", len(muts))
	st, err := importer.Wait(ctx, e.deps.Executor, taskID, e.cfg.PollInterval, e.cfg.MaxWait)
	tr.Mark("submit")
	var timeout *syncerr.ExecutorTimeoutError
	if errors.As(err, &timeout) {
		log.Warn("import_status_unknown", "task", taskID, "waited", timeout.Waited)
		br.Status = StatusUnknown
		br.Error = timeout.Error()
		return br, nil
	}
	if err != nil {
		return br, fmt.Errorf("poll import %s: %w", taskID, err)
	}
	if st.State == importer.StateFailed {
		return br, fmt.Errorf("import task %s failed", taskID)
	}
	br.FailedItems = st.Failed()
	if n, werr := e.deps.Failed.Write(runID, bc.Name, st); werr != nil {
		log.Error("failed_items_write_error", "error", werr, "written", n)
	}
	br.Status = StatusComplete
	if br.FailedItems == 0 {
		e.saveCache(bc.Name, cur, log)
	} else {
		log.Warn("import_items_failed", "task", taskID, "failed", br.FailedItems)
	}
	log.Info("import_complete", "task", taskID, "items", len(st.Items), "failed", br.FailedItems)
	return br, nil
}

// fetchOCL returns the exports of the batch repositories, followed by the
// export of every active dataset collection in id order.
func (e *Engine) fetchOCL(ctx context.Context, bc config.BatchConfig, repos map[string]string, log *slog.Logger) ([]*ocl.Export, error) {
	endpoints := append([]string(nil), bc.OCLExports...)
	if bc.DatasetCollections {
		cols := make([]string, 0, len(repos))
		for _, c := range repos {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			endpoints = append(endpoints, "/orgs/"+bc.Owner+"/collections/"+c+"/")
		}
	}
	out := make([]*ocl.Export, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = exportEndpoint(ep, e.cfg.ExportSuffix)
		b, err := e.deps.OCL.Fetch(ctx, ep)
		if err != nil {
			return nil, fmt.Errorf("fetch ocl export %s: %w", ep, err)
		}
		exp, err := ocl.ParseExport(b, "ocl:"+ep)
		if err != nil {
			return nil, err
		}
		log.Debug("ocl_export_fetched", "endpoint", ep, "concepts", len(exp.Concepts), "mappings", len(exp.Mappings))
		out = append(out, exp)
	}
	return out, nil
}

func exportEndpoint(endpoint, suffix string) string {
	if suffix == "" {
		return endpoint
	}
	return strings.TrimSuffix(endpoint, "/") + "/" + strings.TrimPrefix(suffix, "/")
}

// unchanged reports whether two partitions hold the same records.
func unchanged(prev, cur *snapshot.Partition) bool {
	pr := diff.DiffPartition(prev, cur)
	c := pr.Summary()
	return c.Create == 0 && c.Update == 0 && c.Orphaned == 0
}

func (e *Engine) writeSnapshot(batch, kind string, p *snapshot.Partition) (string, error) {
	if e.cfg.ExportDir == "" {
		return "", nil
	}
	s := snapshot.New()
	s.Set(batch, p)
	f := filepath.Join(e.cfg.ExportDir, batch+"-"+kind+".json")
	if err := snapshot.SaveFile(f, s); err != nil {
		return "", fmt.Errorf("write %s: %w", kind, err)
	}
	return f, nil
}

func (e *Engine) saveCache(batch string, p *snapshot.Partition, log *slog.Logger) {
	if e.deps.Cache == nil {
		return
	}
	if err := e.deps.Cache.Save(batch, p); err != nil {
		log.Warn("cache_save_failed", "error", err)
	}
}

func (e *Engine) record(rep *Report, log *slog.Logger) {
	e.mu.Lock()
	e.last = rep
	e.mu.Unlock()

	if m := e.deps.Metrics; m != nil {
		m.Runs.WithLabelValues(string(rep.Status)).Inc()
		for _, b := range rep.Batches {
			m.Batches.WithLabelValues(b.Name, string(b.Status)).Inc()
		}
		m.LastRun.Set(float64(rep.Finished.Unix()))
		m.Duration.Observe(rep.Duration().Seconds())
	}
	if rs, ok := e.deps.Cache.(ReportSaver); ok {
		if b, err := json.Marshal(rep); err == nil {
			if err := rs.PutRunReport(b); err != nil {
				log.Warn("run_report_save_failed", "error", err)
			}
		}
	}
	logger.AuditLogger().Info("sync_run", "run", rep.RunID, "status", rep.Status, "batches", len(rep.Batches), "error", rep.Error)
	log.Info("sync_run_finished", "status", rep.Status, "duration", rep.Duration().String())
}

func (e *Engine) observeResources(batch, side string, p *snapshot.Partition) {
	if e.deps.Metrics == nil {
		return
	}
	e.deps.Metrics.Resources.WithLabelValues(batch, side).Set(float64(p.Total()))
}

func (e *Engine) observeDiff(batch string, c diff.Counts) {
	if e.deps.Metrics == nil {
		return
	}
	e.deps.Metrics.Diff.WithLabelValues(batch, "create").Set(float64(c.Create))
	e.deps.Metrics.Diff.WithLabelValues(batch, "update").Set(float64(c.Update))
	e.deps.Metrics.Diff.WithLabelValues(batch, "unchanged").Set(float64(c.Unchanged))
	e.deps.Metrics.Diff.WithLabelValues(batch, "orphaned").Set(float64(c.Orphaned))
}

func (e *Engine) observeMutations(batch string, muts []script.Mutation) {
	if e.deps.Metrics == nil {
		return
	}
	for _, m := range muts {
		e.deps.Metrics.Mutations.WithLabelValues(batch, string(m.ResourceType), string(m.Operation)).Inc()
	}
}
