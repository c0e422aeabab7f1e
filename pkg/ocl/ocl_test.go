package ocl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datimsync/pkg/models"
	"datimsync/pkg/syncerr"
)

const sourceExport = `{
  "type": "Source", "id": "MER", "owner": "PEPFAR", "owner_type": "Organization",
  "concepts": [{
    "id": "TX_NEW", "uuid": "5a1", "url": "/orgs/PEPFAR/sources/MER/concepts/TX_NEW/",
    "version_url": "/orgs/PEPFAR/sources/MER/concepts/TX_NEW/5a1/",
    "concept_class": "Indicator", "datatype": "Numeric", "owner": "PEPFAR",
    "owner_type": "Organization", "source": "MER", "retired": false, "external_id": "de1",
    "created_on": "2017-01-01T00:00:00", "is_latest_version": true,
    "names": [{"uuid": "n1", "type": "ConceptName", "name": "New on ART", "name_type": "Fully Specified",
               "locale": "en", "locale_preferred": true, "external_id": null}],
    "descriptions": null
  }, {
    "id": "Age_15+", "concept_class": "Disaggregate", "datatype": "None", "owner": "PEPFAR",
    "owner_type": "Organization", "source": "MER", "names": [{"name": "15+", "name_type": "Fully Specified", "locale": "en", "locale_preferred": true}]
  }],
  "mappings": [{
    "id": "123", "url": "/orgs/PEPFAR/sources/MER/mappings/123/", "owner": "PEPFAR", "owner_type": "Organization",
    "source": "MER", "map_type": "Has Option",
    "from_concept_url": "/orgs/PEPFAR/sources/MER/concepts/TX_NEW/",
    "to_concept_url": "/orgs/PEPFAR/sources/MER/concepts/Age_15+/9f/"
  }]
}`

const collectionExport = `{
  "type": "Collection", "id": "COL1", "owner": "PEPFAR", "owner_type": "Organization",
  "concepts": [{"id": "TX_NEW", "concept_class": "Indicator", "owner": "PEPFAR", "source": "MER",
    "names": [{"name": "other copy", "locale": "en"}]}],
  "references": [
    {"expression": "/orgs/PEPFAR/sources/MER/concepts/TX_NEW/5a1/", "reference_type": "concepts"},
    {"expression": "/orgs/PEPFAR/sources/MER/concepts/Age_15+/", "reference_type": "concepts"},
    {"expression": "/orgs/PEPFAR/sources/MER/mappings/123/", "reference_type": "mappings"},
    {"expression": "/orgs/PEPFAR/sources/MER/concepts/?q=TX", "reference_type": "concepts"}
  ]
}`

func parse(t *testing.T, s string) *Export {
	t.Helper()
	exp, err := ParseExport([]byte(s), "test")
	require.NoError(t, err)
	return exp
}

func TestNormalize(t *testing.T) {
	p, st, err := Normalize("MER", parse(t, sourceExport), parse(t, collectionExport))
	require.NoError(t, err)

	assert.Equal(t, 2, p.Len(models.ResourceConcept))
	c := p.Concepts["/orgs/PEPFAR/sources/MER/concepts/TX_NEW/"]
	assert.Equal(t, "New on ART", c.Names[0].Name, "first export wins")
	assert.Equal(t, "de1", c.ExternalID)

	require.Equal(t, 1, p.Len(models.ResourceMapping))
	m := p.Mappings[p.Keys(models.ResourceMapping)[0]]
	assert.Equal(t, "/orgs/PEPFAR/sources/MER/concepts/Age_15+/", m.ToConceptURL, "version segment dropped")

	assert.Equal(t, 2, p.Len(models.ResourceConceptRef))
	assert.Equal(t, 1, p.Len(models.ResourceMappingRef))
	assert.Equal(t, Stats{Concepts: 2, Mappings: 1, ConceptRefs: 2, MappingRefs: 1, SkippedExpressions: 1}, st)
	require.NoError(t, p.CheckIntegrity())

	r := p.ConceptRefs[p.Keys(models.ResourceConceptRef)[1]]
	assert.Equal(t, "COL1", r.Collection)
	assert.Equal(t, "/orgs/PEPFAR/sources/MER/concepts/TX_NEW/", r.ConceptURL)
}

func TestNormalize_Malformed(t *testing.T) {
	exp := parse(t, `{"type":"Source","id":"MER","concepts":[{"id":"X","owner":"PEPFAR","concept_class":"Indicator"}]}`)
	_, _, err := Normalize("MER", exp)
	var me *syncerr.MalformedExportError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "source", me.Field)

	exp = parse(t, `{"type":"Source","id":"MER","mappings":[{"owner":"PEPFAR","source":"MER","map_type":"Has Option",
	  "from_concept_url":"/orgs/PEPFAR/sources/MER/concepts/A/","to_concept_url":"/orgs/PEPFAR/sources/MER/mappings/1/"}]}`)
	_, _, err = Normalize("MER", exp)
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "to_concept_url", me.Field)
}

func TestParseExport_Unreadable(t *testing.T) {
	for _, doc := range []string{"<html>", "{}", "[1,2]"} {
		_, err := ParseExport([]byte(doc), "ocl")
		assert.Equal(t, syncerr.CodeUnreadableInput, syncerr.Code(err), doc)
	}
}

func TestDatasetRepos(t *testing.T) {
	doc := `[
	  {"id": "MER-R-Facility-DoD-FY17Q1", "external_id": "dsA", "extras": {"datim_sync_mer": true}},
	  {"id": "HC-R-COP", "external_id": "dsB", "extras": {"datim_sync_mer": "True"}},
	  {"id": "Old", "external_id": "dsC", "extras": {"datim_sync_mer": false}},
	  {"id": "NoExtras", "external_id": "dsD"},
	  {"id": "NoExternal", "extras": {"datim_sync_mer": true}}
	]`
	repos, err := DatasetRepos([]byte(doc), DefaultActiveAttr)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"dsA": "MER-R-Facility-DoD-FY17Q1", "dsB": "HC-R-COP"}, repos)

	_, err = DatasetRepos([]byte(`{"results":[]}`), DefaultActiveAttr)
	assert.Error(t, err)
}

func TestEndpointFilename(t *testing.T) {
	assert.Equal(t, "ocl-orgs-PEPFAR-sources-MER-raw.json", EndpointFilename("/orgs/PEPFAR/sources/MER/", "-raw.json"))
	assert.Equal(t, "ocl-orgs-PEPFAR-collections.zip", EndpointFilename("/orgs/PEPFAR/collections/?verbose=true&limit=200", ".zip"))
}

func TestNormalize_FirstMappingWins(t *testing.T) {
	const mapping = `{"owner":"PEPFAR","owner_type":"Organization","source":"MER","map_type":"Has Option",
	  "from_concept_url":"/orgs/PEPFAR/sources/MER/concepts/TX_NEW/",
	  "to_concept_url":"/orgs/PEPFAR/sources/MER/concepts/Age_15+/","retired":%s}`
	src := parse(t, `{"type":"Source","id":"MER","owner":"PEPFAR","mappings":[`+fmt.Sprintf(mapping, "false")+`]}`)
	col := parse(t, `{"type":"Collection","id":"COL1","owner":"PEPFAR","mappings":[`+fmt.Sprintf(mapping, "true")+`]}`)

	p, st, err := Normalize("MER", src, col)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len(models.ResourceMapping))
	assert.Equal(t, 1, st.Mappings)
	assert.False(t, p.Mappings[p.Keys(models.ResourceMapping)[0]].Retired)

	p, _, err = Normalize("MER", col, src)
	require.NoError(t, err)
	assert.True(t, p.Mappings[p.Keys(models.ResourceMapping)[0]].Retired)
}
