package models

import (
	"fmt"

	"datimsync/pkg/keys"
)

// Reference includes one concept or one mapping in a collection.
type Reference struct {
	Owner      string `json:"owner"`
	OwnerType  string `json:"owner_type"`
	Collection string `json:"collection"`
	ConceptURL string `json:"concept_url,omitempty"`
	MappingURL string `json:"mapping_url,omitempty"`
}

func (r *Reference) ResourceType() ResourceType {
	if r.MappingURL != "" {
		return ResourceMappingRef
	}
	return ResourceConceptRef
}

// Target is the url of the referenced concept or mapping.
func (r *Reference) Target() string {
	if r.MappingURL != "" {
		return r.MappingURL
	}
	return r.ConceptURL
}

func (r *Reference) Key() string {
	if r.MappingURL != "" {
		return keys.MappingRefKey(r.Owner, r.Collection, r.MappingURL)
	}
	return keys.ConceptRefKey(r.Owner, r.Collection, r.ConceptURL)
}

func (r *Reference) Validate() error {
	if r.Owner == "" || r.Collection == "" {
		return fmt.Errorf("reference: owner and collection are required")
	}
	if (r.ConceptURL == "") == (r.MappingURL == "") {
		return fmt.Errorf("reference in %s: exactly one of concept_url or mapping_url must be set", r.Collection)
	}
	return nil
}
