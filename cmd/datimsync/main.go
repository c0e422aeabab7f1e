package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"

	"datimsync/internal/cli"
	"datimsync/pkg/state"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	defer func() {
		if r := recover(); r != nil {
			state.Crash("panic", fmt.Errorf("%v", r))
		}
	}()

	runtime.GOMAXPROCS(runtime.NumCPU())
	os.Exit(cli.Execute(cli.BuildInfo{Version: version, Commit: commit, BuildDate: buildDate}))
}
