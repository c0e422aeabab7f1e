package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"datimsync/pkg/config"
	"datimsync/pkg/provider"
	"datimsync/pkg/syncer"
)

const merExport = `{"dataElements":[{
  "id":"de1","code":"TX_NEW","name":"New on ART",
  "categoryCombo":{"id":"cc1","categoryOptionCombos":[{"id":"coc1","code":"Age_15+","name":"15+"}]},
  "dataSetElements":[{"dataSet":{"id":"dsA"}}]
}]}`

func offlineConfig(t *testing.T) config.EffectiveConfigResult {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Sync.RunOffline = true
	cfg.Sync.DataCheckOnly = true
	cfg.Sync.DataDir = dir
	cfg.Cache.Backend = "none"
	cfg.OCL.DatasetRepos = map[string]string{"dsA": "COL1"}
	cfg.ApplyDefaults()
	return config.EffectiveConfigResult{Config: cfg, Source: "defaults"}
}

func seedExports(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		provider.DHIS2Filename("MER"):                     merExport,
		provider.OCLFilename("/orgs/PEPFAR/sources/MER/"):     `{"type":"Source","id":"MER","owner":"PEPFAR","owner_type":"Organization"}`,
		provider.OCLFilename("/orgs/PEPFAR/collections/COL1/"): `{"type":"Collection","id":"COL1","owner":"PEPFAR","owner_type":"Organization"}`,
	}
	require.NoError(t, os.MkdirAll(dir, 0o700))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(offlineConfig(t), "test", "none", "unknown")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })
	return a
}

func serve(a *App, method, path string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	a.routes().Handler(&ctx)
	return &ctx
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	eff := offlineConfig(t)
	eff.Config.Sync.Batches = nil
	_, err := New(eff, "test", "", "")
	require.Error(t, err)

	_, err = New(config.EffectiveConfigResult{}, "test", "", "")
	require.Error(t, err)
}

func TestNew_CreatesDataLayout(t *testing.T) {
	a := newTestApp(t)
	for _, dir := range []string{a.paths.Exports, a.paths.Scripts, a.paths.Audit, a.paths.Failed} {
		fi, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, fi.IsDir())
	}
}

func TestRunOnce_OfflineDataCheck(t *testing.T) {
	a := newTestApp(t)
	seedExports(t, a.paths.Exports)

	rep, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Batches, 1)
	b := rep.Batches[0]
	assert.Equal(t, syncer.StatusDataCheckOnly, b.Status)
	assert.Equal(t, 1, b.DHIS2.Indicators)
	assert.Equal(t, 1, b.DHIS2.Disaggregates)
	assert.Equal(t, 0, b.OCL.Concepts)
	assert.Equal(t, syncer.StatusDataCheckOnly, rep.Status)

	_, err = os.Stat(filepath.Join(a.paths.Exports, "MER-dhis2-converted.json"))
	assert.NoError(t, err)
	assert.Same(t, rep, a.Engine().Last())
}

func TestRunOnce_MissingExportFailsBatch(t *testing.T) {
	a := newTestApp(t)
	rep, err := a.RunOnce(context.Background())
	require.Error(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, syncer.StatusFailed, rep.Status)
}

func TestRoutes(t *testing.T) {
	a := newTestApp(t)
	a.setState("idle")

	ctx := serve(a, "GET", "/healthz")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = serve(a, "GET", "/readyz")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var ready map[string]string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &ready))
	assert.Equal(t, "idle", ready["state"])
	assert.Equal(t, "test", ready["version"])

	ctx = serve(a, "GET", "/status")
	assert.JSONEq(t, `{"status":"never_run"}`, string(ctx.Response.Body()))

	ctx = serve(a, "GET", "/nope")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "not found")

	ctx = serve(a, "GET", "/run")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())

	ctx = serve(a, "GET", "/metrics")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, strings.Contains(string(ctx.Response.Body()), "datimsync_"))
}

func TestTriggeredRun_ShutdownWaitsAndCancels(t *testing.T) {
	a := newTestApp(t)
	seedExports(t, a.paths.Exports)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			serve(a, "GET", "/readyz")
		}
	}()
	ctx := serve(a, "POST", "/run")
	assert.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())
	<-done

	require.NoError(t, a.Shutdown())
	assert.ErrorIs(t, a.runCtx.Err(), context.Canceled)
	require.NotNil(t, a.Engine().Last(), "shutdown returns after the triggered run is recorded")

	ctx = serve(a, "POST", "/run")
	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
}

func TestSetState_ShutdownIsSticky(t *testing.T) {
	a := newTestApp(t)
	a.setState("shutting_down")
	a.setState("idle")
	assert.Equal(t, "shutting_down", a.getState())
	a.setState("stopped")
	a.setState("running")
	assert.Equal(t, "stopped", a.getState())
}

func TestReadyz_AfterShutdown(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.Shutdown())
	ctx := serve(a, "GET", "/readyz")
	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
}
