package shutdown

import (
	"context"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"datimsync/pkg/logger"
	"datimsync/pkg/telemetry"

	"github.com/valyala/fasthttp"
)

// Components are the long-lived pieces stopped on shutdown. Nil fields are skipped.
type Components struct {
	Server         *fasthttp.Server
	ScheduleCancel context.CancelFunc
	Cache          io.Closer
	Failed         io.Closer
	Telemetry      *telemetry.Telemetry
}

// ShutdownApp stops the server first so no new runs can be triggered, then
// the scheduler, then flushes on-disk state.
func ShutdownApp(c Components) error {
	logger.Info("shutdown_requested")

	if c.Server != nil {
		logger.Info("shutdown_stopping_server")
		if err := c.Server.Shutdown(); err != nil {
			logger.Error("shutdown_server_error", "error", err)
		}
	}

	if c.ScheduleCancel != nil {
		logger.Info("shutdown_stopping_scheduler")
		c.ScheduleCancel()
	}

	if c.Cache != nil {
		logger.Info("shutdown_closing_cache")
		if err := c.Cache.Close(); err != nil {
			logger.Error("shutdown_cache_close_error", "error", err)
		}
	}

	if c.Failed != nil {
		if err := c.Failed.Close(); err != nil {
			logger.Error("shutdown_failed_items_close_error", "error", err)
		}
	}

	logger.Info("shutdown_closing_telemetry")
	c.Telemetry.Close()

	logger.Info("shutdown_complete")
	return nil
}

// SetupSignalHandler installs handlers for SIGINT/SIGTERM and SIGPIPE and
// returns a context cancelled when any of them arrives.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()

	// dump goroutine stacks on SIGPIPE
	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		select {
		case s := <-sigpipe:
			logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigpipe)
	}()

	return ctx, cancel
}
