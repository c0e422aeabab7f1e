package dhis2

import (
	"encoding/json"
	"errors"

	"datimsync/pkg/syncerr"
)

// Export is the dataElements document returned by the DHIS2 query. Pointer
// fields distinguish a missing field from an empty one.
type Export struct {
	DataElements []DataElement `json:"dataElements"`
}

type DataElement struct {
	ID              string            `json:"id"`
	Code            *string           `json:"code"`
	Name            string            `json:"name"`
	ShortName       string            `json:"shortName"`
	Description     string            `json:"description"`
	LastUpdated     string            `json:"lastUpdated"`
	CategoryCombo   *CategoryCombo    `json:"categoryCombo"`
	DataSetElements *[]DataSetElement `json:"dataSetElements"`
}

type CategoryCombo struct {
	ID                   string                `json:"id"`
	Code                 string                `json:"code"`
	Name                 string                `json:"name"`
	CategoryOptionCombos []CategoryOptionCombo `json:"categoryOptionCombos"`
}

type CategoryOptionCombo struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type DataSetElement struct {
	DataSet DataSet `json:"dataSet"`
}

type DataSet struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
}

// Parse decodes a DHIS2 export. Anything that is not an object with a
// dataElements array is unreadable.
func Parse(b []byte, source string) (*Export, error) {
	var raw struct {
		DataElements *[]DataElement `json:"dataElements"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, &syncerr.UnreadableInputError{Source: source, Err: err}
	}
	if raw.DataElements == nil {
		return nil, &syncerr.UnreadableInputError{Source: source, Err: errors.New("no dataElements array")}
	}
	return &Export{DataElements: *raw.DataElements}, nil
}
