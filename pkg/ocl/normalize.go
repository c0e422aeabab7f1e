package ocl

import (
	"fmt"
	"strings"

	"datimsync/pkg/keys"
	"datimsync/pkg/models"
	"datimsync/pkg/snapshot"
	"datimsync/pkg/syncerr"
)

// Stats summarizes one normalization.
type Stats struct {
	Concepts           int `json:"concepts"`
	Mappings           int `json:"mappings"`
	ConceptRefs        int `json:"concept_refs"`
	MappingRefs        int `json:"mapping_refs"`
	SkippedExpressions int `json:"skipped_expressions"`
}

// Normalize folds one or more repository exports into the partition for
// batch. Concepts returned by several exports are kept once.
func Normalize(batch string, exports ...*Export) (*snapshot.Partition, Stats, error) {
	var st Stats
	p := snapshot.NewPartition()
	for _, exp := range exports {
		for i := range exp.Concepts {
			c := exp.Concepts[i]
			if err := requireConcept(batch, i, &c); err != nil {
				return nil, st, err
			}
			if _, added := p.AddConcept(c); added {
				st.Concepts++
			}
		}
		for i := range exp.Mappings {
			m := exp.Mappings[i]
			if err := requireMapping(batch, i, &m); err != nil {
				return nil, st, err
			}
			if _, added := p.AddMapping(m); added {
				st.Mappings++
			}
		}
		if exp.Type != RepoTypeCollection {
			continue
		}
		for i, e := range exp.References {
			r, ok, err := reference(batch, i, exp, e)
			if err != nil {
				return nil, st, err
			}
			if !ok {
				st.SkippedExpressions++
				continue
			}
			if _, added := p.AddReference(r); added {
				if r.MappingURL != "" {
					st.MappingRefs++
				} else {
					st.ConceptRefs++
				}
			}
		}
	}
	return p, st, nil
}

func requireConcept(batch string, i int, c *models.Concept) error {
	field := ""
	switch {
	case c.ID == "":
		field = "id"
	case c.Owner == "":
		field = "owner"
	case c.Source == "":
		field = "source"
	case c.ConceptClass == "":
		field = "concept_class"
	}
	if field != "" {
		return &syncerr.MalformedExportError{Batch: batch, ResourceType: string(models.ResourceConcept), Key: c.ID, Field: field, Index: i}
	}
	return nil
}

func requireMapping(batch string, i int, m *models.Mapping) error {
	field := ""
	switch {
	case m.Owner == "":
		field = "owner"
	case m.Source == "":
		field = "source"
	case m.MapType == "":
		field = "map_type"
	case m.FromConceptURL == "":
		field = "from_concept_url"
	case m.ToConceptURL == "":
		field = "to_concept_url"
	}
	if field == "" {
		from, err := keys.CanonicalConceptURL(m.FromConceptURL)
		if err != nil {
			field = "from_concept_url"
		}
		to, err := keys.CanonicalConceptURL(m.ToConceptURL)
		if err != nil && field == "" {
			field = "to_concept_url"
		}
		m.FromConceptURL, m.ToConceptURL = from, to
	}
	if field != "" {
		return &syncerr.MalformedExportError{Batch: batch, ResourceType: string(models.ResourceMapping), Key: m.FromConceptURL, Field: field, Index: i}
	}
	return nil
}

// reference converts a collection expression into a reference record; ok is
// false for expressions that do not point at a single concept or mapping.
func reference(batch string, i int, exp *Export, e Expression) (models.Reference, bool, error) {
	r := models.Reference{Owner: exp.Owner, OwnerType: exp.OwnerType, Collection: exp.ID}
	if e.Expression == "" {
		return r, false, &syncerr.MalformedExportError{
			Batch: batch, ResourceType: string(models.ResourceConceptRef), Key: exp.ID, Field: "expression", Index: i,
		}
	}
	if u, err := keys.CanonicalConceptURL(e.Expression); err == nil {
		r.ConceptURL = u
		return r, true, nil
	}
	if u, err := canonicalMappingURL(e.Expression); err == nil {
		r.MappingURL = u
		return r, true, nil
	}
	return r, false, nil
}

// canonicalMappingURL strips a trailing version segment from an OCL mapping
// url: /orgs/{o}/sources/{s}/mappings/{id}/[{version}/]
func canonicalMappingURL(u string) (string, error) {
	if strings.Contains(u, "?") {
		return "", fmt.Errorf("not a mapping url: %q", u)
	}
	parts := strings.Split(strings.Trim(u, "/"), "/")
	if len(parts) < 6 || len(parts) > 7 || (parts[0] != "orgs" && parts[0] != "users") ||
		parts[2] != "sources" || parts[4] != "mappings" {
		return "", fmt.Errorf("not a mapping url: %q", u)
	}
	for _, p := range parts[:6] {
		if p == "" {
			return "", fmt.Errorf("not a mapping url: %q", u)
		}
	}
	return "/" + strings.Join(parts[:6], "/") + "/", nil
}
