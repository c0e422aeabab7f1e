// Package store keeps previous-run snapshots in a pebble database.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"datimsync/pkg/snapshot"

	"github.com/cockroachdb/pebble"
)

const (
	partitionPrefix = "snap/"
	runPrefix       = "run/"
	lastRunKey      = runPrefix + "last"
)

// SnapshotStore persists one partition per batch, plus the last run report.
type SnapshotStore struct {
	db   *pebble.DB
	path string
}

// Open opens or creates the pebble database at path.
func Open(path string) (*SnapshotStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}
	return &SnapshotStore{db: db, path: path}, nil
}

func (s *SnapshotStore) Path() string { return s.path }

func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func partitionKey(batch string) []byte {
	return []byte(partitionPrefix + batch)
}

// Save stores the partition for batch, replacing the previous one.
func (s *SnapshotStore) Save(batch string, p *snapshot.Partition) error {
	if batch == "" {
		return errors.New("store: empty batch name")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode partition %s: %w", batch, err)
	}
	return s.db.Set(partitionKey(batch), b, pebble.Sync)
}

// Load returns the stored partition for batch. ok is false when none exists.
func (s *SnapshotStore) Load(batch string) (*snapshot.Partition, bool, error) {
	v, closer, err := s.db.Get(partitionKey(batch))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	p, err := snapshot.DecodePartition(v, "pebble:"+s.path+"/"+batch)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *SnapshotStore) Delete(batch string) error {
	return s.db.Delete(partitionKey(batch), pebble.Sync)
}

// Batches lists stored batch names in key order.
func (s *SnapshotStore) Batches() ([]string, error) {
	prefix := []byte(partitionPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		out = append(out, strings.TrimPrefix(string(k), partitionPrefix))
	}
	return out, iter.Error()
}

// SaveSnapshot writes every partition of snap in a single batch.
func (s *SnapshotStore) SaveSnapshot(snap *snapshot.Snapshot) error {
	wb := s.db.NewBatch()
	defer wb.Close()
	for _, name := range snap.BatchNames() {
		p, _ := snap.Lookup(name)
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode partition %s: %w", name, err)
		}
		if err := wb.Set(partitionKey(name), b, nil); err != nil {
			return err
		}
	}
	return wb.Commit(pebble.Sync)
}

// LoadSnapshot assembles every stored partition into one snapshot.
func (s *SnapshotStore) LoadSnapshot() (*snapshot.Snapshot, error) {
	names, err := s.Batches()
	if err != nil {
		return nil, err
	}
	snap := snapshot.New()
	for _, name := range names {
		p, ok, err := s.Load(name)
		if err != nil {
			return nil, err
		}
		if ok {
			snap.Set(name, p)
		}
	}
	return snap, nil
}

// PutRunReport stores the encoded report of the latest run.
func (s *SnapshotStore) PutRunReport(b []byte) error {
	return s.db.Set([]byte(lastRunKey), b, pebble.Sync)
}

// LastRunReport returns the stored report, or nil when no run was recorded.
func (s *SnapshotStore) LastRunReport() ([]byte, error) {
	v, closer, err := s.db.Get([]byte(lastRunKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
