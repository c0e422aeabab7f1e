package dhis2

import (
	"sort"
	"strings"
)

// ActiveDatasetsPlaceholder is replaced in query paths with the ids of the
// datasets that have an active OCL repository.
const ActiveDatasetsPlaceholder = "{{active_dataset_ids}}"

// Query names one DHIS2 API request feeding an import batch.
type Query struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// MERQueryPath is the default data element query for the MER batch.
const MERQueryPath = "/api/dataElements.json?fields=id,code,name,shortName,lastUpdated,description," +
	"categoryCombo[id,code,name,lastUpdated,created," +
	"categoryOptionCombos[id,code,name,lastUpdated,created]]," +
	"dataSetElements[*,dataSet[id,name,shortName]]&" +
	"paging=false&filter=dataSetElements.dataSet.id:in:[" + ActiveDatasetsPlaceholder + "]"

// BuildQueryPath substitutes the active dataset placeholder with the sorted,
// comma joined dataset ids.
func BuildQueryPath(path string, datasetIDs []string) string {
	if !strings.Contains(path, ActiveDatasetsPlaceholder) {
		return path
	}
	ids := append([]string(nil), datasetIDs...)
	sort.Strings(ids)
	return strings.ReplaceAll(path, ActiveDatasetsPlaceholder, strings.Join(ids, ","))
}

// DatasetIDs returns the keys of a dataset to collection table, sorted.
func DatasetIDs(repos map[string]string) []string {
	out := make([]string, 0, len(repos))
	for id := range repos {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
