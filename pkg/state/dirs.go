package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDirs creates the data directory layout. Every directory must be a
// real, writable directory and never a symlink.
func EnsureDirs(p Paths) error {
	for _, dir := range p.all() {
		if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", dir, err)
		}

		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", dir)
			}
		}

		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", dir, err)
		}

		tmp, err := os.CreateTemp(dir, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", dir, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	return nil
}

// PathsVar is the layout of the active data directory, set by Setup.
var PathsVar Paths

// Setup resolves dataDir, creates its layout and makes it the active one.
func Setup(dataDir string) (Paths, error) {
	path := strings.TrimSpace(dataDir)
	if path == "" {
		path = "./data"
	}
	p := PathsFor(filepath.Clean(path))
	if err := EnsureDirs(p); err != nil {
		return Paths{}, err
	}
	PathsVar = p
	return p, nil
}
