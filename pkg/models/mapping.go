package models

import (
	"fmt"

	"datimsync/pkg/keys"
)

type Mapping struct {
	Owner          string `json:"owner"`
	OwnerType      string `json:"owner_type"`
	Source         string `json:"source"`
	MapType        string `json:"map_type"`
	FromConceptURL string `json:"from_concept_url"`
	ToConceptURL   string `json:"to_concept_url"`
	Retired        bool   `json:"retired,omitempty"`
}

func (m *Mapping) Key() string {
	return keys.MappingKey(m.Owner, m.Source, m.MapType, m.FromConceptURL, m.ToConceptURL)
}

func (m *Mapping) Validate() error {
	if m.Owner == "" || m.Source == "" {
		return fmt.Errorf("mapping: owner and source are required")
	}
	if m.MapType == "" {
		return fmt.Errorf("mapping %s -> %s: map_type is required", m.FromConceptURL, m.ToConceptURL)
	}
	if _, err := keys.ParseConceptKey(m.FromConceptURL); err != nil {
		return fmt.Errorf("mapping from_concept_url: %w", err)
	}
	if _, err := keys.ParseConceptKey(m.ToConceptURL); err != nil {
		return fmt.Errorf("mapping to_concept_url: %w", err)
	}
	return nil
}
