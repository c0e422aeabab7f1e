package script

import (
	"datimsync/pkg/models"
)

type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpRetire Operation = "retire"
)

// ActionUpdate marks a bulk import line as an upsert of an existing resource.
const ActionUpdate = "UPDATE"

// Mutation is one entry of an import script.
type Mutation struct {
	Batch        string              `json:"batch"`
	Operation    Operation           `json:"operation"`
	ResourceType models.ResourceType `json:"resource_type"`
	Key          string              `json:"key"`
	Payload      any                 `json:"payload"`
}

// ConceptPayload is the bulk import line for a concept.
type ConceptPayload struct {
	Type   string `json:"type"`
	Action string `json:"__action,omitempty"`
	models.Concept
}

type MappingPayload struct {
	Type   string `json:"type"`
	Action string `json:"__action,omitempty"`
	models.Mapping
}

// ReferencePayload adds expressions to a collection.
type ReferencePayload struct {
	Type       string        `json:"type"`
	Action     string        `json:"__action,omitempty"`
	Owner      string        `json:"owner"`
	OwnerType  string        `json:"owner_type"`
	Collection string        `json:"collection"`
	Data       ReferenceData `json:"data"`
}

type ReferenceData struct {
	Expressions []string `json:"expressions"`
}

func conceptPayload(c models.Concept, op Operation) ConceptPayload {
	return ConceptPayload{Type: "Concept", Action: action(op), Concept: c}
}

func mappingPayload(m models.Mapping, op Operation) MappingPayload {
	return MappingPayload{Type: "Mapping", Action: action(op), Mapping: m}
}

func referencePayload(r models.Reference, op Operation) ReferencePayload {
	return ReferencePayload{
		Type: "Reference", Action: action(op),
		Owner: r.Owner, OwnerType: r.OwnerType, Collection: r.Collection,
		Data: ReferenceData{Expressions: []string{r.Target()}},
	}
}

func action(op Operation) string {
	if op == OpCreate {
		return ""
	}
	return ActionUpdate
}
