package script

import (
	"fmt"
	"sort"
	"strings"

	"datimsync/pkg/diff"
	"datimsync/pkg/models"
	"datimsync/pkg/snapshot"
)

type Options struct {
	// RetireOrphans emits a retire for concepts and mappings that exist only
	// in the old snapshot. Off by default.
	RetireOrphans bool
	// Limit caps the number of mutations; 0 means all.
	Limit int
}

// Build turns a diff result into an ordered mutation list: batches by name,
// inside a batch concepts, mappings, concept refs, mapping refs, and inside a
// resource type lexical key order.
func Build(res *diff.Result, cur, old *snapshot.Snapshot, opt Options) ([]Mutation, error) {
	var out []Mutation
	for _, batch := range res.BatchNames() {
		np, _ := cur.Lookup(batch)
		op, _ := old.Lookup(batch)
		for _, rt := range models.ResourceTypes {
			b := res.Bucket(batch, rt)
			var muts []Mutation
			for _, k := range b.ToCreate {
				m, err := mutation(batch, rt, k, OpCreate, np)
				if err != nil {
					return nil, err
				}
				muts = append(muts, m)
			}
			for _, k := range b.ToUpdate {
				m, err := mutation(batch, rt, k, OpUpdate, np)
				if err != nil {
					return nil, err
				}
				muts = append(muts, m)
			}
			if opt.RetireOrphans && (rt == models.ResourceConcept || rt == models.ResourceMapping) {
				for _, k := range b.Orphaned {
					if retired(op, rt, k) {
						continue
					}
					m, err := mutation(batch, rt, k, OpRetire, op)
					if err != nil {
						return nil, err
					}
					muts = append(muts, m)
				}
			}
			sort.SliceStable(muts, func(i, j int) bool { return muts[i].Key < muts[j].Key })
			out = append(out, muts...)
		}
	}
	if opt.Limit > 0 && len(out) > opt.Limit {
		out = out[:opt.Limit]
	}
	return out, nil
}

func mutation(batch string, rt models.ResourceType, key string, op Operation, p *snapshot.Partition) (Mutation, error) {
	m := Mutation{Batch: batch, Operation: op, ResourceType: rt, Key: key}
	if p == nil {
		return m, fmt.Errorf("batch %s: no snapshot partition for %s %s", batch, op, key)
	}
	rec, ok := p.Record(rt, key)
	if !ok {
		return m, fmt.Errorf("batch %s: %s %s not found in snapshot", batch, rt, key)
	}
	switch r := rec.(type) {
	case models.Concept:
		if op == OpRetire {
			r.Retired = true
		}
		m.Payload = conceptPayload(r, op)
	case models.Mapping:
		if op == OpRetire {
			r.Retired = true
		}
		m.Payload = mappingPayload(r, op)
	case models.Reference:
		m.Payload = referencePayload(r, op)
	}
	return m, nil
}

func retired(p *snapshot.Partition, rt models.ResourceType, key string) bool {
	if p == nil {
		return false
	}
	switch rt {
	case models.ResourceConcept:
		return p.Concepts[key].Retired
	case models.ResourceMapping:
		return p.Mappings[key].Retired
	}
	return false
}

// KeySet holds the keys already present in the target system.
type KeySet map[string]struct{}

// ExistingKeys collects every key of every partition of snap.
func ExistingKeys(snap *snapshot.Snapshot) KeySet {
	ks := KeySet{}
	for _, b := range snap.BatchNames() {
		p, _ := snap.Lookup(b)
		for _, rt := range models.ResourceTypes {
			for _, k := range p.Keys(rt) {
				ks[k] = struct{}{}
			}
		}
	}
	return ks
}

// CheckOrder verifies that muts is sorted and that no mutation appears before
// a create of a resource it depends on, unless that resource already exists.
func CheckOrder(muts []Mutation, existing KeySet) error {
	seen := KeySet{}
	for i, m := range muts {
		if i > 0 && less(m, muts[i-1]) {
			return fmt.Errorf("mutation %d (%s %s) is out of order", i, m.ResourceType, m.Key)
		}
		for _, dep := range dependencies(m) {
			_, before := seen[dep]
			_, there := existing[dep]
			if !before && !there {
				return fmt.Errorf("mutation %d (%s %s) depends on %s which is neither existing nor created earlier",
					i, m.ResourceType, m.Key, dep)
			}
		}
		seen[m.Key] = struct{}{}
	}
	return nil
}

func less(a, b Mutation) bool {
	if a.Batch != b.Batch {
		return a.Batch < b.Batch
	}
	if a.ResourceType != b.ResourceType {
		return a.ResourceType.Rank() < b.ResourceType.Rank()
	}
	return strings.Compare(a.Key, b.Key) < 0
}

func dependencies(m Mutation) []string {
	switch p := m.Payload.(type) {
	case MappingPayload:
		return []string{p.FromConceptURL, p.ToConceptURL}
	case ReferencePayload:
		if m.ResourceType == models.ResourceConceptRef {
			return p.Data.Expressions
		}
	}
	return nil
}
