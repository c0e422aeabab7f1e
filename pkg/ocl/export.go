package ocl

import (
	"encoding/json"
	"errors"

	"datimsync/pkg/models"
	"datimsync/pkg/syncerr"
)

const (
	RepoTypeSource     = "Source"
	RepoTypeCollection = "Collection"
)

// Export is an OCL repository version export. Only the canonical fields are
// decoded; bookkeeping such as uuid, version_url or updated_on is dropped.
type Export struct {
	Type       string           `json:"type"`
	ID         string           `json:"id"`
	Owner      string           `json:"owner"`
	OwnerType  string           `json:"owner_type"`
	Concepts   []models.Concept `json:"concepts"`
	Mappings   []models.Mapping `json:"mappings"`
	References []Expression     `json:"references"`
}

// Expression is one entry of a collection's reference list.
type Expression struct {
	Expression    string `json:"expression"`
	ReferenceType string `json:"reference_type"`
}

// ParseExport decodes one repository export.
func ParseExport(b []byte, source string) (*Export, error) {
	var exp Export
	if err := json.Unmarshal(b, &exp); err != nil {
		return nil, &syncerr.UnreadableInputError{Source: source, Err: err}
	}
	if exp.Type == "" && exp.ID == "" {
		return nil, &syncerr.UnreadableInputError{Source: source, Err: errors.New("not a repository export")}
	}
	return &exp, nil
}
