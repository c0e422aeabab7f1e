package syncer

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"datimsync/pkg/snapshot"
	"datimsync/pkg/store"
)

// Cache keeps the DHIS2-derived partition of the last reconciled run per batch.
type Cache interface {
	Load(batch string) (*snapshot.Partition, bool, error)
	Save(batch string, p *snapshot.Partition) error
}

// ReportSaver is implemented by caches that also keep the last run report.
type ReportSaver interface {
	PutRunReport(b []byte) error
	LastRunReport() ([]byte, error)
}

var _ Cache = (*store.SnapshotStore)(nil)
var _ ReportSaver = (*store.SnapshotStore)(nil)

// FileCache stores one snapshot file per batch under Dir.
type FileCache struct {
	Dir string
}

func (c *FileCache) path(batch string) string {
	return filepath.Join(c.Dir, url.PathEscape(batch)+"-previous.json")
}

func (c *FileCache) Load(batch string) (*snapshot.Partition, bool, error) {
	s, err := snapshot.LoadFile(c.path(batch))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	p, ok := s.Lookup(batch)
	return p, ok, nil
}

func (c *FileCache) Save(batch string, p *snapshot.Partition) error {
	s := snapshot.New()
	s.Set(batch, p)
	return snapshot.SaveFile(c.path(batch), s)
}

func (c *FileCache) PutRunReport(b []byte) error {
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return err
	}
	tmp := filepath.Join(c.Dir, "last-run.json.tmp")
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(c.Dir, "last-run.json"))
}

func (c *FileCache) LastRunReport() ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(c.Dir, "last-run.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

// OpenCache opens the configured backend. "none" returns a nil cache and a
// nil closer.
func OpenCache(backend, path string) (Cache, io.Closer, error) {
	switch backend {
	case "", "file":
		return &FileCache{Dir: path}, nil, nil
	case "pebble":
		s, err := store.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "none":
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", backend)
}
