package snapshot

import (
	"fmt"
	"sort"

	"datimsync/pkg/models"
)

// Partition holds the resources of one import batch, keyed per resource type.
type Partition struct {
	Concepts    map[string]models.Concept   `json:"Concept"`
	Mappings    map[string]models.Mapping   `json:"Mapping"`
	ConceptRefs map[string]models.Reference `json:"Concept_Ref"`
	MappingRefs map[string]models.Reference `json:"Mapping_Ref"`
}

func NewPartition() *Partition {
	return &Partition{
		Concepts:    map[string]models.Concept{},
		Mappings:    map[string]models.Mapping{},
		ConceptRefs: map[string]models.Reference{},
		MappingRefs: map[string]models.Reference{},
	}
}

// ensure fills maps left nil by decoding a partial document
func (p *Partition) ensure() {
	if p.Concepts == nil {
		p.Concepts = map[string]models.Concept{}
	}
	if p.Mappings == nil {
		p.Mappings = map[string]models.Mapping{}
	}
	if p.ConceptRefs == nil {
		p.ConceptRefs = map[string]models.Reference{}
	}
	if p.MappingRefs == nil {
		p.MappingRefs = map[string]models.Reference{}
	}
}

// SetConcept stores c under its key, replacing any previous record.
func (p *Partition) SetConcept(c models.Concept) string {
	k := c.Key()
	p.Concepts[k] = c
	return k
}

// AddConcept stores c only if its key is not present yet. First one wins.
func (p *Partition) AddConcept(c models.Concept) (string, bool) {
	k := c.Key()
	if _, ok := p.Concepts[k]; ok {
		return k, false
	}
	p.Concepts[k] = c
	return k, true
}

func (p *Partition) SetMapping(m models.Mapping) string {
	k := m.Key()
	p.Mappings[k] = m
	return k
}

// AddMapping stores m only if its key is not present yet. First one wins.
func (p *Partition) AddMapping(m models.Mapping) (string, bool) {
	k := m.Key()
	if _, ok := p.Mappings[k]; ok {
		return k, false
	}
	p.Mappings[k] = m
	return k, true
}

// AddReference stores r in the partition matching its kind unless the key
// already exists.
func (p *Partition) AddReference(r models.Reference) (string, bool) {
	k := r.Key()
	refs := p.refs(r.ResourceType())
	if _, ok := refs[k]; ok {
		return k, false
	}
	refs[k] = r
	return k, true
}

func (p *Partition) refs(rt models.ResourceType) map[string]models.Reference {
	if rt == models.ResourceMappingRef {
		return p.MappingRefs
	}
	return p.ConceptRefs
}

// Has reports whether key exists for resource type rt.
func (p *Partition) Has(rt models.ResourceType, key string) bool {
	var ok bool
	switch rt {
	case models.ResourceConcept:
		_, ok = p.Concepts[key]
	case models.ResourceMapping:
		_, ok = p.Mappings[key]
	case models.ResourceConceptRef:
		_, ok = p.ConceptRefs[key]
	case models.ResourceMappingRef:
		_, ok = p.MappingRefs[key]
	}
	return ok
}

// Record returns the record stored under key as a value of its concrete type.
func (p *Partition) Record(rt models.ResourceType, key string) (any, bool) {
	switch rt {
	case models.ResourceConcept:
		c, ok := p.Concepts[key]
		return c, ok
	case models.ResourceMapping:
		m, ok := p.Mappings[key]
		return m, ok
	case models.ResourceConceptRef:
		r, ok := p.ConceptRefs[key]
		return r, ok
	case models.ResourceMappingRef:
		r, ok := p.MappingRefs[key]
		return r, ok
	}
	return nil, false
}

// Keys returns the keys of resource type rt in lexical order.
func (p *Partition) Keys(rt models.ResourceType) []string {
	var out []string
	switch rt {
	case models.ResourceConcept:
		out = sortedKeys(p.Concepts)
	case models.ResourceMapping:
		out = sortedKeys(p.Mappings)
	case models.ResourceConceptRef:
		out = sortedKeys(p.ConceptRefs)
	case models.ResourceMappingRef:
		out = sortedKeys(p.MappingRefs)
	}
	return out
}

func (p *Partition) Len(rt models.ResourceType) int {
	switch rt {
	case models.ResourceConcept:
		return len(p.Concepts)
	case models.ResourceMapping:
		return len(p.Mappings)
	case models.ResourceConceptRef:
		return len(p.ConceptRefs)
	case models.ResourceMappingRef:
		return len(p.MappingRefs)
	}
	return 0
}

func (p *Partition) Total() int {
	n := 0
	for _, rt := range models.ResourceTypes {
		n += p.Len(rt)
	}
	return n
}

// CheckIntegrity verifies that every mapping endpoint and every concept
// reference target is a concept of this partition.
func (p *Partition) CheckIntegrity() error {
	for _, k := range sortedKeys(p.Mappings) {
		m := p.Mappings[k]
		if _, ok := p.Concepts[m.FromConceptURL]; !ok {
			return fmt.Errorf("mapping %s: from concept %s not in snapshot", k, m.FromConceptURL)
		}
		if _, ok := p.Concepts[m.ToConceptURL]; !ok {
			return fmt.Errorf("mapping %s: to concept %s not in snapshot", k, m.ToConceptURL)
		}
	}
	for _, k := range sortedKeys(p.ConceptRefs) {
		r := p.ConceptRefs[k]
		if _, ok := p.Concepts[r.ConceptURL]; !ok {
			return fmt.Errorf("reference %s: concept %s not in snapshot", k, r.ConceptURL)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
