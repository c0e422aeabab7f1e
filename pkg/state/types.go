package state

import "path/filepath"

// Paths is the layout of a datimsync data directory.
type Paths struct {
	Data      string
	Exports   string // raw and converted exports, one file per endpoint
	Scripts   string // import scripts
	Cache     string // previous snapshots (json files or pebble)
	State     string
	Audit     string
	Schedule  string // scheduler lease
	Tel       string
	Logs      string
	Failed    string // failed import items
	Crash     string
}

func PathsFor(dataDir string) Paths {
	statePath := filepath.Join(dataDir, "state")
	return Paths{
		Data: dataDir,

		Exports: filepath.Join(dataDir, "exports"),
		Scripts: filepath.Join(dataDir, "scripts"),
		Cache:   filepath.Join(dataDir, "cache"),

		State:    statePath,
		Audit:    filepath.Join(statePath, "audit"),
		Schedule: filepath.Join(statePath, "schedule"),
		Tel:      filepath.Join(statePath, "telemetry"),
		Logs:     filepath.Join(statePath, "logs"),
		Failed:   filepath.Join(statePath, "failed"),
		Crash:    filepath.Join(statePath, "crash"),
	}
}

func (p Paths) all() []string {
	return []string{p.Exports, p.Scripts, p.Cache, p.Audit, p.Schedule, p.Tel, p.Logs, p.Failed, p.Crash}
}
