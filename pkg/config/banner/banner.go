package banner

import (
	"fmt"
	"io"
	"strings"

	"datimsync/pkg/config"
)

const banner = `
     _       _   _                                
  __| | __ _| |_(_)_ __ ___  ___ _   _ _ __   ___ 
 / _' |/ _' | __| | '_ ' _ \/ __| | | | '_ \ / __|
| (_| | (_| | |_| | | | | | \__ \ |_| | | | | (__ 
 \__,_|\__,_|\__|_|_| |_| |_|___/\__, |_| |_|\___|
                                 |___/            
`

// PrintWithEff prints the banner and a summary of the effective config.
func PrintWithEff(w io.Writer, eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	src := eff.Source
	if src == "" {
		src = "defaults"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	if cfg != nil {
		fmt.Fprintf(w, "Listen:   %s\n", cfg.Addr())
		fmt.Fprintf(w, "Data dir: %s\n", cfg.Sync.DataDir)
	}
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	if eff.Path != "" && strings.Contains(src, "config") {
		fmt.Fprintf(w, "Config:   %s (%s)\n", src, eff.Path)
	} else {
		fmt.Fprintf(w, "Config:   %s\n", src)
	}
	if cfg == nil {
		return
	}

	fmt.Fprintln(w, "\n== Sync =======================================================")
	names := make([]string, 0, len(cfg.Sync.Batches))
	for _, b := range cfg.Sync.Batches {
		names = append(names, b.Name)
	}
	fmt.Fprintf(w, "- Batches: %s\n", strings.Join(names, ", "))
	if cfg.Sync.RunOffline {
		fmt.Fprintln(w, "- Exports: offline (cached files)")
	} else {
		fmt.Fprintf(w, "- DHIS2: %s\n", orMissing(cfg.DHIS2.URL))
		fmt.Fprintf(w, "- OCL: %s\n", orMissing(cfg.OCL.URL))
	}
	if cfg.OCL.Token != "" {
		fmt.Fprintln(w, "- OCL token: OK")
	} else {
		fmt.Fprintln(w, "- OCL token: MISSING (required to submit imports)")
	}
	switch {
	case cfg.Sync.DataCheckOnly:
		fmt.Fprintln(w, "- Mode: data check only")
	case cfg.Import.TestMode:
		fmt.Fprintln(w, "- Mode: import test mode (script is built, not submitted)")
	default:
		fmt.Fprintln(w, "- Mode: import")
	}
	if cfg.Import.Limit > 0 {
		fmt.Fprintf(w, "- Import limit: %d\n", cfg.Import.Limit)
	}
	fmt.Fprintf(w, "- Cache: %s (%s)\n", cfg.Cache.Backend, cfg.Cache.Path)
	if cfg.Schedule.Enabled {
		fmt.Fprintf(w, "- Schedule: enabled (cron=%s)\n", cfg.Schedule.Cron)
	} else {
		fmt.Fprintln(w, "- Schedule: disabled")
	}
}

func orMissing(s string) string {
	if s == "" {
		return "MISSING"
	}
	return s
}
