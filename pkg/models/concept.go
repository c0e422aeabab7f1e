package models

import (
	"fmt"

	"datimsync/pkg/keys"
)

type Name struct {
	Name            string  `json:"name"`
	NameType        string  `json:"name_type"`
	Locale          string  `json:"locale"`
	LocalePreferred bool    `json:"locale_preferred"`
	ExternalID      *string `json:"external_id"`
}

type Description struct {
	Description     string  `json:"description"`
	DescriptionType string  `json:"description_type"`
	Locale          string  `json:"locale"`
	LocalePreferred bool    `json:"locale_preferred"`
	ExternalID      *string `json:"external_id"`
}

type Concept struct {
	ID           string        `json:"id"`
	ConceptClass string        `json:"concept_class"`
	Datatype     string        `json:"datatype"`
	Owner        string        `json:"owner"`
	OwnerType    string        `json:"owner_type"`
	Source       string        `json:"source"`
	Retired      bool          `json:"retired"`
	ExternalID   string        `json:"external_id"`
	Names        []Name        `json:"names"`
	Descriptions []Description `json:"descriptions"`
}

func (c *Concept) Key() string {
	return keys.ConceptKey(c.Owner, c.Source, c.ID)
}

// URL is the unversioned concept url; it is the same string as the key.
func (c *Concept) URL() string {
	return c.Key()
}

// Validate checks the fields every concept needs before it can be keyed or
// imported, and that each locale has at most one preferred name.
func (c *Concept) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("concept: id is empty")
	}
	if c.Owner == "" || c.Source == "" {
		return fmt.Errorf("concept %s: owner and source are required", c.ID)
	}
	if c.ConceptClass == "" {
		return fmt.Errorf("concept %s: concept_class is required", c.ID)
	}
	if len(c.Names) == 0 {
		return fmt.Errorf("concept %s: at least one name is required", c.ID)
	}
	preferred := map[string]bool{}
	for _, n := range c.Names {
		if !n.LocalePreferred {
			continue
		}
		if preferred[n.Locale] {
			return fmt.Errorf("concept %s: more than one preferred name for locale %q", c.ID, n.Locale)
		}
		preferred[n.Locale] = true
	}
	return nil
}
