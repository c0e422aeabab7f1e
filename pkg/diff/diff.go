package diff

import (
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"datimsync/pkg/models"
	"datimsync/pkg/snapshot"
)

// Bucket classifies the keys of one resource type. Every key of the new
// side lands in exactly one of ToCreate, ToUpdate or Unchanged. Orphaned
// holds keys only the old side has.
type Bucket struct {
	ToCreate  []string `json:"to_create"`
	ToUpdate  []string `json:"to_update"`
	Unchanged []string `json:"unchanged"`
	Orphaned  []string `json:"orphaned"`
}

// PartitionResult is the diff of one batch, per resource type.
type PartitionResult map[models.ResourceType]*Bucket

type Result struct {
	Batches map[string]PartitionResult `json:"batches"`
}

// Counts totals a result.
type Counts struct {
	Create    int `json:"create"`
	Update    int `json:"update"`
	Unchanged int `json:"unchanged"`
	Orphaned  int `json:"orphaned"`
}

func (c *Counts) add(b *Bucket) {
	c.Create += len(b.ToCreate)
	c.Update += len(b.ToUpdate)
	c.Unchanged += len(b.Unchanged)
	c.Orphaned += len(b.Orphaned)
}

var recordOpts = cmp.Options{
	cmpopts.EquateEmpty(),
	cmpopts.SortSlices(lessName),
	cmpopts.SortSlices(lessDescription),
}

// Equal reports whether two records are field-for-field equal. Name and
// description order is ignored and nil equals empty.
func Equal(a, b any) bool {
	return cmp.Equal(a, b, recordOpts)
}

// Explain renders the field difference between two records.
func Explain(a, b any) string {
	return cmp.Diff(a, b, recordOpts)
}

// Diff compares every batch present on either side. A nil old snapshot
// diffs against nothing.
func Diff(old, new *snapshot.Snapshot) *Result {
	res := &Result{Batches: map[string]PartitionResult{}}
	names := map[string]struct{}{}
	for _, b := range new.BatchNames() {
		names[b] = struct{}{}
	}
	for _, b := range old.BatchNames() {
		names[b] = struct{}{}
	}
	for b := range names {
		op, _ := old.Lookup(b)
		np, _ := new.Lookup(b)
		res.Batches[b] = DiffPartition(op, np)
	}
	return res
}

// DiffPartition compares two partitions of the same batch. Either may be nil.
func DiffPartition(old, new *snapshot.Partition) PartitionResult {
	if old == nil {
		old = snapshot.NewPartition()
	}
	if new == nil {
		new = snapshot.NewPartition()
	}
	out := PartitionResult{}
	for _, rt := range models.ResourceTypes {
		b := &Bucket{}
		for _, k := range new.Keys(rt) {
			nr, _ := new.Record(rt, k)
			or, ok := old.Record(rt, k)
			switch {
			case !ok:
				b.ToCreate = append(b.ToCreate, k)
			case !Equal(or, nr):
				b.ToUpdate = append(b.ToUpdate, k)
			default:
				b.Unchanged = append(b.Unchanged, k)
			}
		}
		for _, k := range old.Keys(rt) {
			if !new.Has(rt, k) {
				b.Orphaned = append(b.Orphaned, k)
			}
		}
		out[rt] = b
	}
	return out
}

// BatchNames returns the batches of r in lexical order.
func (r *Result) BatchNames() []string {
	out := make([]string, 0, len(r.Batches))
	for b := range r.Batches {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Bucket returns the bucket for batch and rt, or an empty bucket.
func (r *Result) Bucket(batch string, rt models.ResourceType) *Bucket {
	if pr, ok := r.Batches[batch]; ok {
		if b, ok := pr[rt]; ok {
			return b
		}
	}
	return &Bucket{}
}

func (r *Result) Summary() Counts {
	var c Counts
	for _, pr := range r.Batches {
		c = c.plus(pr.Summary())
	}
	return c
}

func (pr PartitionResult) Summary() Counts {
	var c Counts
	for _, b := range pr {
		c.add(b)
	}
	return c
}

func (c Counts) plus(o Counts) Counts {
	return Counts{
		Create:    c.Create + o.Create,
		Update:    c.Update + o.Update,
		Unchanged: c.Unchanged + o.Unchanged,
		Orphaned:  c.Orphaned + o.Orphaned,
	}
}

// Empty reports whether the result requires no create or update.
func (r *Result) Empty() bool {
	s := r.Summary()
	return s.Create == 0 && s.Update == 0
}

func lessName(a, b models.Name) bool {
	if a.Locale != b.Locale {
		return a.Locale < b.Locale
	}
	if a.NameType != b.NameType {
		return a.NameType < b.NameType
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	if a.LocalePreferred != b.LocalePreferred {
		return !a.LocalePreferred
	}
	return deref(a.ExternalID) < deref(b.ExternalID)
}

func lessDescription(a, b models.Description) bool {
	if a.Locale != b.Locale {
		return a.Locale < b.Locale
	}
	if a.DescriptionType != b.DescriptionType {
		return a.DescriptionType < b.DescriptionType
	}
	if a.Description != b.Description {
		return a.Description < b.Description
	}
	if a.LocalePreferred != b.LocalePreferred {
		return !a.LocalePreferred
	}
	return deref(a.ExternalID) < deref(b.ExternalID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
