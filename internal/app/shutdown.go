package app

import (
	"datimsync/pkg/state/shutdown"
)

// Shutdown stops the server and scheduler and flushes on-disk state.
func (a *App) Shutdown() error {
	a.setState("shutting_down")
	if a.runCancel != nil {
		a.runCancel()
	}
	a.triggered.Wait()
	err := shutdown.ShutdownApp(shutdown.Components{
		Server:         a.srvFast,
		ScheduleCancel: a.scheduleCancel,
		Cache:          a.cache,
		Failed:         a.failed,
		Telemetry:      a.tel,
	})
	if err == nil {
		a.setState("stopped")
	}
	return err
}
