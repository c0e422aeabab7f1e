package script

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datimsync/pkg/diff"
	"datimsync/pkg/models"
	"datimsync/pkg/snapshot"
)

func concept(id, class string) models.Concept {
	return models.Concept{
		ID: id, ConceptClass: class, Datatype: models.DatatypeNone,
		Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Source: "MER",
		Names: []models.Name{{Name: id, NameType: models.NameTypeFullySpecified, Locale: "en", LocalePreferred: true}},
	}
}

// txNew builds the TX_NEW partition: 2 concepts, 1 mapping, 2 refs.
func txNew(s *snapshot.Snapshot, batch string) {
	p := s.Partition(batch)
	ind := concept("TX_NEW", models.ConceptClassIndicator)
	dis := concept("Age_15+", models.ConceptClassDisaggregate)
	p.SetConcept(ind)
	p.AddConcept(dis)
	p.SetMapping(models.Mapping{
		Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Source: "MER",
		MapType: models.MapTypeHasOption, FromConceptURL: ind.URL(), ToConceptURL: dis.URL(),
	})
	p.AddReference(models.Reference{Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Collection: "COL1", ConceptURL: ind.URL()})
	p.AddReference(models.Reference{Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Collection: "COL1", ConceptURL: dis.URL()})
}

func TestBuild_OrderAgainstEmpty(t *testing.T) {
	cur := snapshot.New()
	txNew(cur, "MER")
	txNew(cur, "ALPHA")
	old := snapshot.New()

	muts, err := Build(diff.Diff(old, cur), cur, old, Options{})
	require.NoError(t, err)
	require.Len(t, muts, 10)
	require.NoError(t, CheckOrder(muts, ExistingKeys(old)))

	assert.Equal(t, "ALPHA", muts[0].Batch)
	assert.Equal(t, "MER", muts[5].Batch)
	want := []models.ResourceType{
		models.ResourceConcept, models.ResourceConcept, models.ResourceMapping,
		models.ResourceConceptRef, models.ResourceConceptRef,
	}
	for i, rt := range want {
		assert.Equal(t, rt, muts[i].ResourceType, i)
		assert.Equal(t, OpCreate, muts[i].Operation)
	}
	assert.Equal(t, "/orgs/PEPFAR/sources/MER/concepts/Age_15+/", muts[0].Key)
}

func TestBuild_NoChangeIsEmpty(t *testing.T) {
	a, b := snapshot.New(), snapshot.New()
	txNew(a, "MER")
	txNew(b, "MER")
	muts, err := Build(diff.Diff(a, b), b, a, Options{})
	require.NoError(t, err)
	assert.Empty(t, muts)
}

func TestBuild_UpdateCarriesFullPayload(t *testing.T) {
	old, cur := snapshot.New(), snapshot.New()
	txNew(old, "MER")
	txNew(cur, "MER")
	p := cur.Partition("MER")
	c := p.Concepts["/orgs/PEPFAR/sources/MER/concepts/TX_NEW/"]
	c.Names = []models.Name{{Name: "renamed", NameType: models.NameTypeFullySpecified, Locale: "en", LocalePreferred: true}}
	p.SetConcept(c)

	muts, err := Build(diff.Diff(old, cur), cur, old, Options{})
	require.NoError(t, err)
	require.Len(t, muts, 1)
	assert.Equal(t, OpUpdate, muts[0].Operation)
	pl, ok := muts[0].Payload.(ConceptPayload)
	require.True(t, ok)
	assert.Equal(t, ActionUpdate, pl.Action)
	assert.Equal(t, "renamed", pl.Names[0].Name)
	assert.Equal(t, models.ConceptClassIndicator, pl.ConceptClass)
}

func TestBuild_OrphansOnlyWhenOptedIn(t *testing.T) {
	old, cur := snapshot.New(), snapshot.New()
	txNew(old, "MER")
	cur.Partition("MER")

	res := diff.Diff(old, cur)
	muts, err := Build(res, cur, old, Options{})
	require.NoError(t, err)
	assert.Empty(t, muts, "orphans are never mutated by default")

	muts, err = Build(res, cur, old, Options{RetireOrphans: true})
	require.NoError(t, err)
	require.Len(t, muts, 3, "concepts and mappings only")
	for _, m := range muts {
		assert.Equal(t, OpRetire, m.Operation)
	}
	pl := muts[0].Payload.(ConceptPayload)
	assert.True(t, pl.Retired)
	assert.Equal(t, ActionUpdate, pl.Action)
}

func TestBuild_Limit(t *testing.T) {
	cur := snapshot.New()
	txNew(cur, "MER")
	muts, err := Build(diff.Diff(nil, cur), cur, nil, Options{Limit: 1})
	require.NoError(t, err)
	require.Len(t, muts, 1)
	assert.Equal(t, models.ResourceConcept, muts[0].ResourceType)
}

func TestCheckOrder_Violations(t *testing.T) {
	cur := snapshot.New()
	txNew(cur, "MER")
	muts, err := Build(diff.Diff(nil, cur), cur, nil, Options{})
	require.NoError(t, err)

	// mapping before its concepts
	swapped := []Mutation{muts[2], muts[0], muts[1]}
	assert.Error(t, CheckOrder(swapped, KeySet{}))

	// the same list is fine once the concepts already exist, ordering aside
	onlyRefs := muts[3:]
	assert.Error(t, CheckOrder(onlyRefs, KeySet{}))
	assert.NoError(t, CheckOrder(onlyRefs, ExistingKeys(cur)))
}

func TestWrite(t *testing.T) {
	cur := snapshot.New()
	txNew(cur, "MER")
	muts, err := Build(diff.Diff(nil, cur), cur, nil, Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteLines(&buf, muts))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	var ref map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[4]), &ref))
	assert.Equal(t, "Reference", ref["type"])
	assert.Equal(t, "COL1", ref["collection"])
	assert.NotContains(t, lines[0], "__action")

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestBuild_InsertionOrderIndependent(t *testing.T) {
	forward := snapshot.New()
	txNew(forward, "MER")
	txNew(forward, "ALPHA")

	backward := snapshot.New()
	p := backward.Partition("MER")
	ind := concept("TX_NEW", models.ConceptClassIndicator)
	dis := concept("Age_15+", models.ConceptClassDisaggregate)
	p.AddReference(models.Reference{Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Collection: "COL1", ConceptURL: dis.URL()})
	p.AddReference(models.Reference{Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Collection: "COL1", ConceptURL: ind.URL()})
	p.SetMapping(models.Mapping{
		Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Source: "MER",
		MapType: models.MapTypeHasOption, FromConceptURL: ind.URL(), ToConceptURL: dis.URL(),
	})
	p.AddConcept(dis)
	p.SetConcept(ind)
	txNew(backward, "ALPHA")

	old := snapshot.New()
	a, err := Build(diff.Diff(old, forward), forward, old, Options{})
	require.NoError(t, err)
	b, err := Build(diff.Diff(old, backward), backward, old, Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var wa, wb bytes.Buffer
	require.NoError(t, WriteJSON(&wa, a))
	require.NoError(t, WriteJSON(&wb, b))
	assert.Equal(t, wa.String(), wb.String())
}
