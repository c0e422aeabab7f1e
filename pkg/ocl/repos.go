package ocl

import (
	"encoding/json"
	"strings"

	"datimsync/pkg/syncerr"
)

// DefaultActiveAttr is the collection extras attribute that marks a dataset
// repository as synchronized.
const DefaultActiveAttr = "datim_sync_mer"

type collection struct {
	ID         string         `json:"id"`
	ExternalID string         `json:"external_id"`
	Extras     map[string]any `json:"extras"`
}

// DatasetRepos returns dataset id -> collection id for every collection in
// the listing whose extras flag activeAttr is set. The dataset id is the
// collection's external_id.
func DatasetRepos(b []byte, activeAttr string) (map[string]string, error) {
	var cols []collection
	if err := json.Unmarshal(b, &cols); err != nil {
		return nil, &syncerr.UnreadableInputError{Source: "ocl:collections", Err: err}
	}
	out := map[string]string{}
	for _, c := range cols {
		if c.ExternalID == "" || c.ID == "" || !truthy(c.Extras[activeAttr]) {
			continue
		}
		out[c.ExternalID] = c.ID
	}
	return out, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true") || t == "1"
	case float64:
		return t != 0
	}
	return false
}

// EndpointFilename turns an OCL endpoint into the name of its cached export
// file, e.g. /orgs/PEPFAR/sources/MER/ -> ocl-orgs-PEPFAR-sources-MER-raw.json
func EndpointFilename(endpoint, suffix string) string {
	name := strings.Trim(strings.ReplaceAll(endpoint, "/", "-"), "-")
	if i := strings.IndexAny(name, "?&"); i >= 0 {
		name = strings.TrimRight(name[:i], "-")
	}
	return "ocl-" + name + suffix
}
