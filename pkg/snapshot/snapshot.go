package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"datimsync/pkg/syncerr"
)

// Snapshot maps an import batch name to its partition. It is built fresh
// per run and treated as read-only once handed to the diff engine.
type Snapshot struct {
	Batches map[string]*Partition `json:"batches"`
}

func New() *Snapshot {
	return &Snapshot{Batches: map[string]*Partition{}}
}

// Partition returns the partition for batch, creating it when missing.
func (s *Snapshot) Partition(batch string) *Partition {
	if s.Batches == nil {
		s.Batches = map[string]*Partition{}
	}
	p, ok := s.Batches[batch]
	if !ok {
		p = NewPartition()
		s.Batches[batch] = p
	}
	return p
}

// Lookup returns the partition for batch without creating it.
func (s *Snapshot) Lookup(batch string) (*Partition, bool) {
	if s == nil || s.Batches == nil {
		return nil, false
	}
	p, ok := s.Batches[batch]
	return p, ok
}

func (s *Snapshot) Set(batch string, p *Partition) {
	if s.Batches == nil {
		s.Batches = map[string]*Partition{}
	}
	s.Batches[batch] = p
}

// BatchNames returns the batch names in lexical order.
func (s *Snapshot) BatchNames() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Batches))
	for b := range s.Batches {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Encode writes s as indented JSON. Map keys are emitted sorted, so equal
// snapshots always encode to identical bytes.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(s)
}

func (s *Snapshot) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a snapshot encoded by Encode.
func Decode(r io.Reader, source string) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, &syncerr.UnreadableInputError{Source: source, Err: err}
	}
	if s.Batches == nil {
		s.Batches = map[string]*Partition{}
	}
	for name, p := range s.Batches {
		if p == nil {
			p = NewPartition()
			s.Batches[name] = p
		}
		p.ensure()
	}
	return &s, nil
}

// SaveFile writes s to path through a temp file and rename.
func SaveFile(path string, s *Snapshot) error {
	b, err := s.Bytes()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFile reads a snapshot from path. A missing file returns os.ErrNotExist.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, "file:"+path)
}

// DecodePartition reads a single partition encoded with encoding/json.
// Unknown top-level fields are rejected, so a whole snapshot document is
// not mistaken for an empty partition.
func DecodePartition(b []byte, source string) (*Partition, error) {
	p := NewPartition()
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, &syncerr.UnreadableInputError{Source: source, Err: err}
	}
	p.ensure()
	return p, nil
}
