package models

import "fmt"

// ResourceType names a snapshot partition. The declaration order is the
// order in which an import executor has to apply them.
type ResourceType string

const (
	ResourceConcept    ResourceType = "Concept"
	ResourceMapping    ResourceType = "Mapping"
	ResourceConceptRef ResourceType = "Concept_Ref"
	ResourceMappingRef ResourceType = "Mapping_Ref"
)

// ResourceTypes lists every resource type in dependency order.
var ResourceTypes = []ResourceType{ResourceConcept, ResourceMapping, ResourceConceptRef, ResourceMappingRef}

// Rank returns the position of rt in the dependency order, or -1.
func (rt ResourceType) Rank() int {
	for i, t := range ResourceTypes {
		if t == rt {
			return i
		}
	}
	return -1
}

func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(s)
	if rt.Rank() < 0 {
		return "", fmt.Errorf("unknown resource type: %q", s)
	}
	return rt, nil
}

const (
	OwnerTypeOrganization = "Organization"
	OwnerTypeUser         = "User"

	ConceptClassIndicator    = "Indicator"
	ConceptClassDisaggregate = "Disaggregate"

	DatatypeNumeric = "Numeric"
	DatatypeNone    = "None"

	NameTypeFullySpecified = "Fully Specified"
	NameTypeShort          = "Short"

	DescriptionTypeDescription = "Description"

	MapTypeHasOption = "Has Option"

	LocaleEnglish = "en"
)
