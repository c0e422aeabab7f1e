package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"datimsync/pkg/config/banner"
	"datimsync/pkg/logger"
	"datimsync/pkg/router"
	"datimsync/pkg/utils"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(os.Stdout, a.eff, verStr)
}

func (a *App) healthzHandlerFast(ctx *fasthttp.RequestCtx) {
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) readyzHandlerFast(ctx *fasthttp.RequestCtx) {
	state := a.getState()
	if a.engine == nil || state == "shutting_down" || state == "stopped" {
		_ = utils.JSONWriteFast(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]string{"status": "ok", "state": state, "version": ver})
}

// statusHandlerFast returns the last run report.
func (a *App) statusHandlerFast(ctx *fasthttp.RequestCtx) {
	rep := a.engine.Last()
	if rep == nil {
		_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]string{"status": "never_run"})
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, rep)
}

// runHandlerFast starts a run in the background and returns 202. The run is
// cancelled by Shutdown.
func (a *App) runHandlerFast(ctx *fasthttp.RequestCtx) {
	a.mu.Lock()
	if a.state == "shutting_down" || a.state == "stopped" {
		a.mu.Unlock()
		utils.JSONErrorFast(ctx, fasthttp.StatusServiceUnavailable, errors.New("shutting down"))
		return
	}
	a.triggered.Add(1)
	a.mu.Unlock()
	go func() {
		defer a.triggered.Done()
		var err error
		if a.sched != nil {
			err = a.sched.RunNow(a.runCtx)
		} else {
			_, err = a.RunOnce(a.runCtx)
		}
		if err != nil {
			logger.Error("triggered_run_failed", "error", err)
		}
	}()
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusAccepted, map[string]string{"status": "started"})
}

func requestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)
		next(ctx)
	}
}

// wrapHTTPHandler adapts a net/http handler to fasthttp.
func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

func (a *App) routes() *router.Router {
	r := router.New()
	r.Use(requestLogger)
	r.GET("/healthz", a.healthzHandlerFast)
	r.GET("/readyz", a.readyzHandlerFast)
	r.GET("/status", a.statusHandlerFast)
	r.POST("/run", a.runHandlerFast)
	r.GET("/metrics", wrapHTTPHandler(a.metrics.Handler()))
	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, errors.New("not found"))
	})
	return r
}

// startHTTP builds and starts the fasthttp server, returning a channel that delivers errors.
func (a *App) startHTTP(_ context.Context) <-chan error {
	const (
		readTimeout  = 10 * time.Second
		writeTimeout = 10 * time.Second
		idleTimeout  = 30 * time.Second
	)
	a.srvFast = &fasthttp.Server{
		Handler:      a.routes().Handler,
		Name:         "datimsync",
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	errCh := make(chan error, 1)
	addr := a.eff.Config.Addr()
	go func() {
		logger.Info("http_listening", "addr", addr)
		errCh <- a.srvFast.ListenAndServe(addr)
	}()
	return errCh
}

