package app

import (
	"fmt"

	"datimsync/pkg/config"
)

// validateConfig runs the config checks plus the ones that only matter
// once the app owns a data directory and a listener.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.Config == nil {
		return fmt.Errorf("no configuration loaded")
	}
	if err := config.ValidateConfig(eff.Config); err != nil {
		return err
	}
	if eff.Config.Sync.DataDir == "" {
		return fmt.Errorf("data directory is empty: set --data-dir, DATIMSYNC_DATA_DIR, or sync.data_dir in config")
	}
	if p := eff.Config.Server.Port; p < 0 || p > 65535 {
		return fmt.Errorf("server.port out of range: %d", p)
	}
	return nil
}
