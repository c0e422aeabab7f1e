package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"datimsync/pkg/logger"
)

var errNotOwner = errors.New("lease: not owner")

// FileLease is a lock file so only one process runs the scheduled sync
// against a data directory.
type FileLease struct {
	path string
	now  func() time.Time
}

type leaseFile struct {
	Owner   string `json:"owner"`
	Expires string `json:"expires"`
}

func NewFileLease(dir string) *FileLease {
	return &FileLease{path: filepath.Join(dir, "sync.lock"), now: time.Now}
}

func (l *FileLease) Acquire(owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	b, _ := json.Marshal(leaseFile{Owner: owner, Expires: now.Add(ttl).Format(time.RFC3339Nano)})
	tmp := l.path + "." + owner + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		logger.Error("lease_tmp_write_failed", "path", tmp, "error", err)
		return false, err
	}
	// link fails when the lock already exists
	if err := os.Link(tmp, l.path); err == nil {
		os.Remove(tmp)
		logger.Debug("lease_acquired", "path", l.path, "owner", owner)
		return true, nil
	}
	existing, err := l.read()
	if err != nil {
		os.Remove(tmp)
		return false, err
	}
	expT, _ := time.Parse(time.RFC3339Nano, existing.Expires)
	if expT.Before(now) {
		if err := os.Rename(tmp, l.path); err != nil {
			logger.Error("lease_replace_failed", "error", err)
			return false, err
		}
		logger.Info("lease_acquired_replaced", "path", l.path, "owner", owner, "previous", existing.Owner)
		return true, nil
	}
	os.Remove(tmp)
	logger.Info("lease_currently_held", "path", l.path, "owner", existing.Owner)
	return false, nil
}

func (l *FileLease) Renew(owner string, ttl time.Duration) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return errNotOwner
	}
	existing.Expires = l.now().Add(ttl).Format(time.RFC3339Nano)
	b, _ := json.Marshal(existing)
	tmp := l.path + "." + owner + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		logger.Error("lease_renew_tmp_write_failed", "error", err)
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		logger.Error("lease_renew_rename_failed", "error", err)
		return err
	}
	logger.Debug("lease_renewed", "path", l.path, "owner", owner)
	return nil
}

func (l *FileLease) Release(owner string) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		logger.Error("lease_release_not_owner", "owner", owner)
		return errNotOwner
	}
	if err := os.Remove(l.path); err != nil {
		logger.Error("lease_release_remove_failed", "error", err)
		return err
	}
	logger.Debug("lease_released", "path", l.path, "owner", owner)
	return nil
}

func (l *FileLease) read() (leaseFile, error) {
	var lf leaseFile
	data, err := os.ReadFile(l.path)
	if err != nil {
		return lf, err
	}
	if err := json.Unmarshal(data, &lf); err != nil {
		return lf, fmt.Errorf("lease file %s: %w", l.path, err)
	}
	return lf, nil
}
